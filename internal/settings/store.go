package settings

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rankpilot/rankpilot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// snapshotTTL bounds how stale DB-backed settings reads may be.
const snapshotTTL = 30 * time.Second

var (
	storeMu  sync.RWMutex
	storeDB  *gorm.DB
	snapshot map[string]json.RawMessage
	loadedAt time.Time
)

// Bind attaches the settings store to a database connection. Call once
// during startup before any DBConfigValue reads.
func Bind(db *gorm.DB) {
	storeMu.Lock()
	defer storeMu.Unlock()
	storeDB = db
	snapshot = nil
	loadedAt = time.Time{}
}

// DBConfigValue returns the raw JSON value for a setting key. Values are
// served from a short-lived snapshot; staleness within the TTL is
// acceptable for all consumers.
func DBConfigValue(key string) (json.RawMessage, bool) {
	storeMu.RLock()
	fresh := snapshot != nil && time.Since(loadedAt) < snapshotTTL
	if fresh {
		value, ok := snapshot[key]
		storeMu.RUnlock()
		return value, ok
	}
	storeMu.RUnlock()

	storeMu.Lock()
	defer storeMu.Unlock()
	if snapshot == nil || time.Since(loadedAt) >= snapshotTTL {
		if errReload := reloadLocked(); errReload != nil {
			if snapshot == nil {
				return nil, false
			}
		}
	}
	value, ok := snapshot[key]
	return value, ok
}

// Set upserts a setting value and refreshes the snapshot.
func Set(key string, value any) error {
	storeMu.Lock()
	defer storeMu.Unlock()
	if storeDB == nil {
		return errors.New("settings: store not bound")
	}

	encoded, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return errMarshal
	}
	row := models.Setting{Key: key, Value: encoded}
	if errUpsert := storeDB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return errUpsert
	}
	return reloadLocked()
}

// reloadLocked refreshes the snapshot; callers hold the write lock.
func reloadLocked() error {
	if storeDB == nil {
		return errors.New("settings: store not bound")
	}
	var rows []models.Setting
	if errFind := storeDB.Find(&rows).Error; errFind != nil {
		return errFind
	}
	next := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		next[row.Key] = json.RawMessage(row.Value)
	}
	snapshot = next
	loadedAt = time.Now()
	return nil
}

// DefaultPlanCodeValue returns the configured default plan code.
func DefaultPlanCodeValue() string {
	if raw, ok := DBConfigValue(DefaultPlanCodeKey); ok {
		var code string
		if errUnmarshal := json.Unmarshal(raw, &code); errUnmarshal == nil && code != "" {
			return code
		}
	}
	return DefaultPlanCode
}
