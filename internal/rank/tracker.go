package rank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rankpilot/rankpilot/internal/models"

	"gorm.io/gorm"
)

// Delta describes a keyword's position movement over a comparison window.
// Positive deltas are improvements: a lower numeric position is a better
// rank, so delta = previous - current.
type Delta struct {
	KeywordID uint64 // Keyword the delta belongs to.
	DomainID  uint64 // Owning domain.
	Phrase    string // Keyword phrase.
	Current   int    // Latest observed position.
	Previous  int    // Position at the comparison point.
	Delta     int    // previous - current; positive means improvement.
}

// Tracker computes keyword position deltas from stored rank results.
type Tracker struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewTracker constructs a Tracker. A nil nowFn defaults to the wall clock.
func NewTracker(db *gorm.DB, nowFn func() time.Time) *Tracker {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Tracker{db: db, nowFn: nowFn}
}

// ComputeDeltas compares each active keyword's latest result against the
// most recent result older than periodDays. Keywords lacking either a
// latest result or a qualifying comparison point are skipped.
func (t *Tracker) ComputeDeltas(ctx context.Context, userID uint64, periodDays int) ([]Delta, error) {
	if periodDays <= 0 {
		return nil, fmt.Errorf("rank: periodDays must be positive, got %d", periodDays)
	}

	var keywords []models.Keyword
	if errFind := t.db.WithContext(ctx).
		Joins("JOIN domains ON domains.id = keywords.domain_id").
		Where("domains.user_id = ? AND keywords.is_active = ?", userID, true).
		Order("keywords.id ASC").
		Find(&keywords).Error; errFind != nil {
		return nil, fmt.Errorf("rank: load keywords: %w", errFind)
	}

	cutoff := t.nowFn().UTC().AddDate(0, 0, -periodDays)
	deltas := make([]Delta, 0, len(keywords))
	for _, keyword := range keywords {
		latest, errLatest := t.latestResult(ctx, keyword.ID, time.Time{})
		if errLatest != nil {
			return nil, errLatest
		}
		if latest == nil || latest.Position == 0 {
			continue
		}
		previous, errPrevious := t.latestResult(ctx, keyword.ID, cutoff)
		if errPrevious != nil {
			return nil, errPrevious
		}
		if previous == nil || previous.Position == 0 {
			continue
		}
		deltas = append(deltas, Delta{
			KeywordID: keyword.ID,
			DomainID:  keyword.DomainID,
			Phrase:    keyword.Phrase,
			Current:   latest.Position,
			Previous:  previous.Position,
			Delta:     previous.Position - latest.Position,
		})
	}
	return deltas, nil
}

// Winners returns deltas with improved positions, best movement first.
func Winners(deltas []Delta) []Delta {
	out := make([]Delta, 0, len(deltas))
	for _, d := range deltas {
		if d.Delta > 0 {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Delta > out[j].Delta })
	return out
}

// Losers returns deltas with worsened positions, worst movement first.
func Losers(deltas []Delta) []Delta {
	out := make([]Delta, 0, len(deltas))
	for _, d := range deltas {
		if d.Delta < 0 {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Delta < out[j].Delta })
	return out
}

// latestResult loads the keyword's newest result, optionally restricted
// to results checked before the given time.
func (t *Tracker) latestResult(ctx context.Context, keywordID uint64, before time.Time) (*models.RankResult, error) {
	query := t.db.WithContext(ctx).Where("keyword_id = ?", keywordID)
	if !before.IsZero() {
		query = query.Where("checked_at < ?", before)
	}
	var row models.RankResult
	errFind := query.Order("checked_at DESC, id DESC").Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("rank: load result: %w", errFind)
	}
	return &row, nil
}
