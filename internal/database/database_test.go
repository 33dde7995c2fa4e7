package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chanarr/chanarr/internal/config"
)

func memoryConfig(logLevel string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		LogLevel:        logLevel,
	}
}

func openMemoryDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(memoryConfig("silent"), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewSQLite(t *testing.T) {
	db, err := New(memoryConfig("warn"), nil, nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, "sqlite", db.Driver())
}

func TestNewUnsupportedDriver(t *testing.T) {
	db, err := New(config.DatabaseConfig{Driver: "oracle", DSN: ":memory:"}, nil, nil)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestPingRespectsDeadline(t *testing.T) {
	db := openMemoryDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, db.Ping(ctx))
}

func TestPingAfterClose(t *testing.T) {
	db := openMemoryDB(t)

	require.NoError(t, db.Close())
	assert.Error(t, db.Ping(context.Background()))
}

func TestStatsKeys(t *testing.T) {
	db := openMemoryDB(t)

	stats, err := db.Stats()
	require.NoError(t, err)

	for _, key := range []string{
		"max_open_connections", "open_connections", "in_use", "idle",
		"wait_count", "wait_duration",
	} {
		assert.Contains(t, stats, key)
	}
}

func TestWithContextKeepsConfig(t *testing.T) {
	db := openMemoryDB(t)

	bound := db.WithContext(context.Background())
	require.NotNil(t, bound)
	assert.Equal(t, db.Driver(), bound.Driver())
}

func TestTransactionCommitAndRollback(t *testing.T) {
	db, err := New(memoryConfig("silent"), nil, &Options{PrepareStmt: false})
	require.NoError(t, err)
	defer db.Close()

	type txItem struct {
		ID    uint   `gorm:"primarykey"`
		Value string `gorm:"not null"`
	}
	require.NoError(t, db.DB.AutoMigrate(&txItem{}))

	ctx := context.Background()

	err = db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&txItem{Value: "kept"}).Error
	})
	require.NoError(t, err)

	rollbackErr := errors.New("abort")
	err = db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&txItem{Value: "discarded"}).Error; err != nil {
			return err
		}
		return rollbackErr
	})
	require.ErrorIs(t, err, rollbackErr)

	var count int64
	require.NoError(t, db.DB.Model(&txItem{}).Where("value = ?", "kept").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, db.DB.Model(&txItem{}).Where("value = ?", "discarded").Count(&count).Error)
	assert.Zero(t, count)
}

func TestSQLitePragmasApplied(t *testing.T) {
	db := openMemoryDB(t)

	// In-memory databases report "memory" journal mode; WAL only applies
	// to file-backed databases.
	var journalMode string
	require.NoError(t, db.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error)
	assert.Equal(t, "memory", journalMode)

	var foreignKeys int
	require.NoError(t, db.DB.Raw("PRAGMA foreign_keys").Scan(&foreignKeys).Error)
	assert.Equal(t, 1, foreignKeys)
}

func TestGormLogLevelMapping(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"silent":  logger.Silent,
		"error":   logger.Error,
		"warn":    logger.Warn,
		"info":    logger.Info,
		"unknown": logger.Warn,
		"":        logger.Warn,
	}
	for level, want := range cases {
		assert.Equal(t, want, gormLogLevel(level), "level %q", level)
	}
}

func TestTrimSQLTruncatesLongStatements(t *testing.T) {
	short := "SELECT 1"
	assert.Equal(t, short, trimSQL(short))

	long := "SELECT * FROM channels WHERE " + string(make([]byte, maxSQLLogLength))
	trimmed := trimSQL(long)
	assert.Len(t, trimmed, maxSQLLogLength+len("... (truncated)"))
	assert.Contains(t, trimmed, "... (truncated)")
}

func TestClassifyDBError(t *testing.T) {
	cases := map[string]string{
		"database is locked (5) (SQLITE_BUSY)": "SQLITE_BUSY",
		"context canceled":                     "CONTEXT_CANCELED",
		"context deadline exceeded":            "TIMEOUT",
		"record not found":                     "NOT_FOUND",
		"syntax error near SELECT":             "OTHER",
	}
	for input, want := range cases {
		assert.Equal(t, want, classifyDBError(input), "input %q", input)
	}
}
