package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openRawSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestPool_Apply(t *testing.T) {
	db := openRawSQLite(t)
	require.NoError(t, ServerPool.Apply(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)

	// Zero fields leave the current value alone.
	require.NoError(t, Pool{MaxIdle: 2}.Apply(db))
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestOpenGormStore(t *testing.T) {
	ctx := context.Background()
	db := openRawSQLite(t)

	s, err := OpenGormStore(ctx, db, DefaultQuota, SingleConn)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, s.Set(ctx, map[string][]byte{"k": []byte(`"v"`)}))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"v"`, string(got["k"]))
}
