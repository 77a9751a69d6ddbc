package analytics

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Event is one raw, sanitized analytics record.
type Event struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"`
	Category   string         `gorm:"size:64;index:idx_analytics_events_name,priority:1"`
	Name       string         `gorm:"size:64;index:idx_analytics_events_name,priority:2"`
	Properties map[string]any `gorm:"serializer:json;type:text"`
	Timestamp  time.Time      `gorm:"column:occurred_at;index"`
}

// TableName pins the events table name.
func (Event) TableName() string { return "analytics_events" }

// Summary is the count of one category/name pair inside one bucket.
type Summary struct {
	Period      Period    `gorm:"primaryKey;size:8"`
	Bucket      string    `gorm:"primaryKey;size:16"`
	Category    string    `gorm:"primaryKey;size:64"`
	Name        string    `gorm:"primaryKey;size:64"`
	BucketStart time.Time `gorm:"index"`
	Count       int64
	UpdatedAt   time.Time
}

// TableName pins the summaries table name.
func (Summary) TableName() string { return "analytics_summaries" }

// Storage persists raw events and their roll-ups.
type Storage interface {
	Migrate(ctx context.Context) error
	InsertEvent(ctx context.Context, e *Event) error
	// Events returns every raw event at or after since, oldest first.
	Events(ctx context.Context, since time.Time) ([]Event, error)
	// ReplaceSummaries deletes every summary row of the given period and
	// buckets, then inserts rows, in one transaction.
	ReplaceSummaries(ctx context.Context, period Period, buckets []string, rows []Summary) error
	Summaries(ctx context.Context, period Period, since time.Time) ([]Summary, error)
	// DeleteBefore removes raw events older than cutoff and summaries whose
	// bucket started before it. It returns the number of raw events removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// GormStorage implements Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a GORM-backed analytics store.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// Migrate creates the analytics tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Event{}, &Summary{})
}

// InsertEvent stores e.
func (s *GormStorage) InsertEvent(ctx context.Context, e *Event) error {
	return s.db.WithContext(ctx).Create(e).Error
}

// Events returns raw events recorded at or after since.
func (s *GormStorage) Events(ctx context.Context, since time.Time) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("occurred_at >= ?", since).
		Order("occurred_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

// ReplaceSummaries swaps the rows of the given buckets.
func (s *GormStorage) ReplaceSummaries(ctx context.Context, period Period, buckets []string, rows []Summary) error {
	if len(buckets) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("period = ? AND bucket IN ?", period, buckets).Delete(&Summary{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&rows, 100).Error
	})
}

// Summaries returns the rows of period whose bucket started at or after since.
func (s *GormStorage) Summaries(ctx context.Context, period Period, since time.Time) ([]Summary, error) {
	var rows []Summary
	err := s.db.WithContext(ctx).
		Where("period = ? AND bucket_start >= ?", period, since).
		Order("bucket_start ASC, category ASC, name ASC").
		Find(&rows).Error
	return rows, err
}

// DeleteBefore purges old raw events and summaries.
func (s *GormStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("occurred_at < ?", cutoff).Delete(&Event{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return tx.Where("bucket_start < ?", cutoff).Delete(&Summary{}).Error
	})
	return removed, err
}
