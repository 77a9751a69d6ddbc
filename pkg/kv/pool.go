package kv

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Pool sizes the database/sql pool under a GormStore. Zero fields keep the
// driver's default.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// ServerPool suits a networked database shared by one process. Batch
// concurrency never exceeds 10, so neither does the pool.
var ServerPool = Pool{MaxOpen: 10, MaxIdle: 4, MaxLifetime: 5 * time.Minute, MaxIdleTime: time.Minute}

// SingleConn pins the pool to one connection. SQLite needs it for a single
// writer and for ":memory:" databases to be shared.
var SingleConn = Pool{MaxOpen: 1, MaxIdle: 1}

// Apply configures db's pool.
func (p Pool) Apply(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("kv: underlying sql.DB: %w", err)
	}
	if p.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(p.MaxOpen)
	}
	if p.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(p.MaxIdle)
	}
	if p.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(p.MaxLifetime)
	}
	if p.MaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(p.MaxIdleTime)
	}
	return nil
}

// OpenGormStore applies pool to db and returns a migrated store over it.
func OpenGormStore(ctx context.Context, db *gorm.DB, quota int64, pool Pool) (*GormStore, error) {
	if err := pool.Apply(db); err != nil {
		return nil, err
	}
	s := NewGormStore(db, quota)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
