package rank

import (
	"context"
	"testing"
	"time"

	"github.com/rankpilot/rankpilot/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, errDB := db.DB()
	if errDB != nil {
		t.Fatalf("db handle: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := db.AutoMigrate(
		&models.User{},
		&models.Domain{},
		&models.Keyword{},
		&models.RankResult{},
	); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func seedKeyword(t *testing.T, db *gorm.DB, userID uint64, phrase string) models.Keyword {
	t.Helper()
	domain := models.Domain{UserID: userID, Host: phrase + ".example.com", Status: models.DomainStatusActive}
	if errCreate := db.Create(&domain).Error; errCreate != nil {
		t.Fatalf("seed domain: %v", errCreate)
	}
	keyword := models.Keyword{DomainID: domain.ID, Phrase: phrase, IsActive: true}
	if errCreate := db.Create(&keyword).Error; errCreate != nil {
		t.Fatalf("seed keyword: %v", errCreate)
	}
	return keyword
}

func seedResult(t *testing.T, db *gorm.DB, keywordID uint64, position int, checkedAt time.Time) {
	t.Helper()
	row := models.RankResult{KeywordID: keywordID, Position: position, ProviderCode: "dataforseo", CheckedAt: checkedAt}
	if errCreate := db.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed result: %v", errCreate)
	}
}

func TestComputeDeltasSign(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(db, func() time.Time { return now })

	winner := seedKeyword(t, db, 1, "winner")
	seedResult(t, db, winner.ID, 20, now.AddDate(0, 0, -10))
	seedResult(t, db, winner.ID, 5, now.AddDate(0, 0, -1))

	loser := seedKeyword(t, db, 1, "loser")
	seedResult(t, db, loser.ID, 4, now.AddDate(0, 0, -10))
	seedResult(t, db, loser.ID, 9, now.AddDate(0, 0, -1))

	deltas, errCompute := tracker.ComputeDeltas(context.Background(), 1, 7)
	if errCompute != nil {
		t.Fatalf("compute: %v", errCompute)
	}
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(deltas))
	}

	byPhrase := map[string]Delta{}
	for _, d := range deltas {
		byPhrase[d.Phrase] = d
	}
	if d := byPhrase["winner"]; d.Delta != 15 || d.Current != 5 || d.Previous != 20 {
		t.Fatalf("unexpected winner delta: %+v", d)
	}
	if d := byPhrase["loser"]; d.Delta != -5 {
		t.Fatalf("unexpected loser delta: %+v", d)
	}
}

func TestComputeDeltasSkipsWithoutComparisonPoint(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(db, func() time.Time { return now })

	fresh := seedKeyword(t, db, 1, "fresh")
	seedResult(t, db, fresh.ID, 7, now.AddDate(0, 0, -1))

	unranked := seedKeyword(t, db, 1, "unranked")
	seedResult(t, db, unranked.ID, 10, now.AddDate(0, 0, -10))
	seedResult(t, db, unranked.ID, 0, now.AddDate(0, 0, -1))

	seedKeyword(t, db, 1, "bare")

	deltas, errCompute := tracker.ComputeDeltas(context.Background(), 1, 7)
	if errCompute != nil {
		t.Fatalf("compute: %v", errCompute)
	}
	if len(deltas) != 0 {
		t.Fatalf("keywords without a comparison point must be skipped, got %+v", deltas)
	}
}

func TestComputeDeltasScopedToUser(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(db, func() time.Time { return now })

	mine := seedKeyword(t, db, 1, "mine")
	seedResult(t, db, mine.ID, 10, now.AddDate(0, 0, -10))
	seedResult(t, db, mine.ID, 8, now.AddDate(0, 0, -1))

	theirs := seedKeyword(t, db, 2, "theirs")
	seedResult(t, db, theirs.ID, 10, now.AddDate(0, 0, -10))
	seedResult(t, db, theirs.ID, 1, now.AddDate(0, 0, -1))

	deltas, errCompute := tracker.ComputeDeltas(context.Background(), 1, 7)
	if errCompute != nil {
		t.Fatalf("compute: %v", errCompute)
	}
	if len(deltas) != 1 || deltas[0].Phrase != "mine" {
		t.Fatalf("expected only the user's keywords, got %+v", deltas)
	}
}

func TestWinnersAndLosersOrdering(t *testing.T) {
	deltas := []Delta{
		{Phrase: "small win", Delta: 2},
		{Phrase: "flat", Delta: 0},
		{Phrase: "big win", Delta: 9},
		{Phrase: "small loss", Delta: -1},
		{Phrase: "big loss", Delta: -7},
	}

	winners := Winners(deltas)
	if len(winners) != 2 || winners[0].Phrase != "big win" || winners[1].Phrase != "small win" {
		t.Fatalf("unexpected winners: %+v", winners)
	}

	losers := Losers(deltas)
	if len(losers) != 2 || losers[0].Phrase != "big loss" || losers[1].Phrase != "small loss" {
		t.Fatalf("unexpected losers: %+v", losers)
	}
}

func TestComputeDeltasRejectsNonPositivePeriod(t *testing.T) {
	db := openTestDB(t)
	tracker := NewTracker(db, nil)
	if _, errCompute := tracker.ComputeDeltas(context.Background(), 1, 0); errCompute == nil {
		t.Fatal("expected error for zero period")
	}
}
