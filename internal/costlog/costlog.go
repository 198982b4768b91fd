package costlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rankpilot/rankpilot/internal/models"
	"github.com/rankpilot/rankpilot/internal/provider"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// defaultUnitName labels estimates that carry no unit name.
const defaultUnitName = "requests"

// Logger records estimated cost per executed task for later aggregation.
// One row per task; batched operations log once with aggregated totals
// after all items execute, never one row per sub-item.
type Logger struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewLogger constructs a Logger. A nil nowFn defaults to the wall clock.
func NewLogger(db *gorm.DB, nowFn func() time.Time) *Logger {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Logger{db: db, nowFn: nowFn}
}

// Log writes one cost entry drawn from the estimate, defaulting units to
// 0 and the unit name to requests when absent.
func (l *Logger) Log(ctx context.Context, userID uint64, domainID *uint64, taskType, providerCode string, estimate provider.Estimate, logContext map[string]any) error {
	if l == nil || l.db == nil {
		return errors.New("costlog: not initialized")
	}

	unitName := strings.TrimSpace(estimate.UnitName)
	if unitName == "" {
		unitName = defaultUnitName
	}
	units := estimate.Units
	if units < 0 {
		units = 0
	}

	var contextJSON datatypes.JSON
	if len(logContext) > 0 {
		encoded, errMarshal := json.Marshal(logContext)
		if errMarshal != nil {
			return fmt.Errorf("costlog: marshal context: %w", errMarshal)
		}
		contextJSON = datatypes.JSON(encoded)
	}

	entry := models.CostLogEntry{
		UserID:             userID,
		DomainID:           domainID,
		TaskType:           taskType,
		ProviderCode:       providerCode,
		Units:              units,
		UnitName:           unitName,
		EstimatedCostCents: estimate.Cents,
		Context:            contextJSON,
		CreatedAt:          l.nowFn().UTC(),
	}
	if errCreate := l.db.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		return fmt.Errorf("costlog: write entry: %w", errCreate)
	}
	return nil
}
