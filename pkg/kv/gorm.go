package kv

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// Entry is one persisted key-value pair.
type Entry struct {
	Key       string    `gorm:"column:entry_key;primaryKey;size:255"`
	Value     []byte    `gorm:"column:entry_value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName pins the table name independent of naming strategy.
func (Entry) TableName() string { return "kv_entries" }

const usageExpr = "COALESCE(SUM(LENGTH(entry_key) + LENGTH(entry_value)), 0)"

// GormStore implements Store on a single GORM table.
type GormStore struct {
	db    *gorm.DB
	quota int64
	notifier
}

// NewGormStore creates a GORM-backed store. A quota of zero or less
// disables the limit.
func NewGormStore(db *gorm.DB, quota int64) *GormStore {
	return &GormStore{db: db, quota: quota}
}

// Migrate creates the entry table.
func (s *GormStore) Migrate(ctx context.Context) error {
	return core.Storage("migrate", s.db.WithContext(ctx).AutoMigrate(&Entry{}))
}

// Get returns the values for keys, or every entry when keys is empty.
func (s *GormStore) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	var rows []Entry
	q := s.db.WithContext(ctx)
	if len(keys) > 0 {
		q = q.Where("entry_key IN ?", keys)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, core.Storage("get", err)
	}

	out := make(map[string][]byte, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// Set upserts entries in one transaction after checking the quota.
func (s *GormStore) Set(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	keys := sortedKeys(entries)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.quota > 0 {
			used, err := usedBytes(tx)
			if err != nil {
				return err
			}
			var existing []Entry
			if err := tx.Where("entry_key IN ?", keys).Find(&existing).Error; err != nil {
				return err
			}
			for _, e := range existing {
				used -= entrySize(e.Key, e.Value)
			}
			for k, v := range entries {
				used += entrySize(k, v)
			}
			if used > s.quota {
				return core.ErrQuotaExceeded
			}
		}

		rows := make([]Entry, 0, len(entries))
		for _, k := range keys {
			rows = append(rows, Entry{Key: k, Value: entries[k]})
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entry_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return core.Storage("set", err)
	}

	s.notify(Change{Keys: keys})
	return nil
}

// Remove deletes the given keys.
func (s *GormStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("entry_key IN ?", keys).Delete(&Entry{}).Error; err != nil {
		return core.Storage("remove", err)
	}
	s.notify(Change{Keys: keys})
	return nil
}

// Clear deletes every entry.
func (s *GormStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&Entry{}).Error; err != nil {
		return core.Storage("clear", err)
	}
	s.notify(Change{Cleared: true})
	return nil
}

// Subscribe registers a change listener. Only writes made through this
// instance are observed.
func (s *GormStore) Subscribe(fn func(Change)) func() {
	return s.subscribe(fn)
}

// Usage sums the accounted size of all rows.
func (s *GormStore) Usage(ctx context.Context) (Usage, error) {
	used, err := usedBytes(s.db.WithContext(ctx))
	if err != nil {
		return Usage{}, core.Storage("usage", err)
	}
	return Usage{BytesUsed: used, Quota: s.quota}, nil
}

func usedBytes(tx *gorm.DB) (int64, error) {
	var used int64
	row := tx.Model(&Entry{}).Select(usageExpr).Row()
	if err := row.Scan(&used); err != nil {
		return 0, err
	}
	return used, nil
}
