// Package database manages the GORM connection for chanarr. SQLite is the
// default driver; PostgreSQL and MySQL are supported through the same
// configuration.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chanarr/chanarr/internal/config"
)

// SQLite pool sizing: WAL mode allows concurrent readers but a single
// writer, so a small pool keeps lock contention down while leaving slots
// for job workers and UI reads.
const (
	sqliteMaxOpenConns = 6
	sqliteMaxIdleConns = 3
)

// DB wraps the GORM handle together with its configuration and logger.
type DB struct {
	*gorm.DB
	cfg  config.DatabaseConfig
	slog *slog.Logger
}

// Options tunes connection behavior.
type Options struct {
	// PrepareStmt enables prepared statement caching. Disable for SQLite
	// when tests wrap everything in transactions.
	PrepareStmt bool
}

// New opens a database connection for the configured driver. Pass nil opts
// for defaults (PrepareStmt on).
func New(cfg config.DatabaseConfig, log *slog.Logger, opts *Options) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts == nil {
		opts = &Options{PrepareStmt: true}
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("getting dialector: %w", err)
	}

	bridge := &gormLogBridge{slog: log, min: gormLogLevel(cfg.LogLevel)}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 bridge,
		SkipDefaultTransaction: true,
		PrepareStmt:            opts.PrepareStmt,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pool, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	bridge.AttachPool(pool)

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if cfg.Driver == "sqlite" {
		maxOpen, maxIdle = sqliteMaxOpenConns, sqliteMaxIdleConns
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxIdle)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	d := &DB{DB: gdb, cfg: cfg, slog: log}
	if cfg.Driver == "sqlite" {
		d.logSQLiteConfig()
		return d, nil
	}
	log.Info("database connection pool configured",
		slog.Int("max_open_conns", maxOpen),
		slog.Int("max_idle_conns", maxIdle))
	return d, nil
}

// sqlitePragmaQuery is appended to the DSN so the pure Go driver applies
// the pragmas to every pooled connection, not just the first.
const sqlitePragmaQuery = "_pragma=busy_timeout(30000)" +
	"&_pragma=journal_mode(WAL)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=foreign_keys(ON)" +
	"&_pragma=cache_size(-64000)" +
	"&_pragma=mmap_size(268435456)" +
	"&_pragma=temp_store(MEMORY)" +
	"&_pragma=wal_autocheckpoint(1000)"

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		sep := "?"
		if strings.Contains(cfg.DSN, "?") {
			sep = "&"
		}
		return sqlite.Open(cfg.DSN + sep + sqlitePragmaQuery), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func gormLogLevel(level string) logger.LogLevel {
	levels := map[string]logger.LogLevel{
		"silent": logger.Silent, "error": logger.Error, "info": logger.Info,
	}
	if l, ok := levels[level]; ok {
		return l
	}
	return logger.Warn
}

// gormLogBridge adapts GORM's logger.Interface onto slog.
type gormLogBridge struct {
	slog *slog.Logger
	min  logger.LogLevel

	pool         *sql.DB
	statsMu      sync.Mutex
	lastStatsLog time.Time
}

// AttachPool enables pool stats logging when lock contention is detected.
func (b *gormLogBridge) AttachPool(pool *sql.DB) {
	b.pool = pool
}

func (b *gormLogBridge) LogMode(level logger.LogLevel) logger.Interface {
	clone := &gormLogBridge{slog: b.slog, min: level, pool: b.pool}
	clone.lastStatsLog = b.lastStatsLog
	return clone
}

func (b *gormLogBridge) printf(ctx context.Context, min logger.LogLevel, level slog.Level, msg string, args []interface{}) {
	if b.min >= min {
		b.slog.Log(ctx, level, fmt.Sprintf(msg, args...))
	}
}

func (b *gormLogBridge) Info(ctx context.Context, msg string, args ...interface{}) {
	b.printf(ctx, logger.Info, slog.LevelInfo, msg, args)
}

func (b *gormLogBridge) Warn(ctx context.Context, msg string, args ...interface{}) {
	b.printf(ctx, logger.Warn, slog.LevelWarn, msg, args)
}

func (b *gormLogBridge) Error(ctx context.Context, msg string, args ...interface{}) {
	b.printf(ctx, logger.Error, slog.LevelError, msg, args)
}

const (
	slowQueryThreshold = time.Second
	// Interpolated SQL for batch inserts can run to megabytes; logs carry
	// only a prefix.
	maxSQLLogLength = 200
)

func trimSQL(sql string) string {
	if len(sql) > maxSQLLogLength {
		sql = sql[:maxSQLLogLength] + "... (truncated)"
	}
	return sql
}

// classifyDBError buckets common failure modes for log filtering.
func classifyDBError(errStr string) string {
	switch {
	case strings.Contains(errStr, "database is locked"):
		return "SQLITE_BUSY"
	case strings.Contains(errStr, "context canceled"):
		return "CONTEXT_CANCELED"
	case strings.Contains(errStr, "context deadline exceeded"):
		return "TIMEOUT"
	case strings.Contains(errStr, "record not found"):
		return "NOT_FOUND"
	default:
		return "OTHER"
	}
}

func (b *gormLogBridge) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if b.min <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	isError := err != nil
	isSlow := elapsed > slowQueryThreshold

	// fc() interpolates the full SQL string, which is expensive; skip it
	// entirely when slog would discard the record anyway.
	var willLog bool
	switch {
	case isError && b.min >= logger.Error:
		willLog = true
	case isSlow && b.min >= logger.Warn:
		willLog = b.slog.Enabled(ctx, slog.LevelWarn)
	case b.min >= logger.Info:
		willLog = b.slog.Enabled(ctx, slog.LevelDebug)
	}
	if !willLog {
		return
	}

	sqlStr, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", trimSQL(sqlStr)),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}

	switch {
	case isError:
		errStr := err.Error()
		errType := classifyDBError(errStr)
		if errType == "SQLITE_BUSY" {
			b.logStatsOnContention()
		}
		attrs = append(attrs,
			slog.String("error_type", errType),
			slog.String("error", errStr),
		)
		b.slog.LogAttrs(ctx, slog.LevelError, "database error", attrs...)
	case isSlow:
		b.slog.LogAttrs(ctx, slog.LevelWarn, "slow query", attrs...)
	default:
		b.slog.LogAttrs(ctx, slog.LevelDebug, "database query", attrs...)
	}
}

// poolAttrs flattens sql.DBStats into log attributes shared by every pool
// stats log site.
func poolAttrs(s sql.DBStats) []slog.Attr {
	return []slog.Attr{
		slog.Int("max_open_conns", s.MaxOpenConnections),
		slog.Int("open_conns", s.OpenConnections),
		slog.Int("in_use", s.InUse),
		slog.Int("idle", s.Idle),
		slog.Int64("wait_count", s.WaitCount),
		slog.String("wait_duration", s.WaitDuration.String()),
		slog.Int64("max_idle_closed", s.MaxIdleClosed),
		slog.Int64("max_idle_time_closed", s.MaxIdleTimeClosed),
		slog.Int64("max_lifetime_closed", s.MaxLifetimeClosed),
	}
}

// logStatsOnContention logs pool stats when SQLITE_BUSY shows up, at most
// once per minute.
func (b *gormLogBridge) logStatsOnContention() {
	if b.pool == nil {
		return
	}

	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	if time.Since(b.lastStatsLog) < time.Minute {
		return
	}
	b.lastStatsLog = time.Now()

	b.slog.LogAttrs(context.Background(), slog.LevelWarn,
		"SQLite connection pool stats (on lock contention)", poolAttrs(b.pool.Stats())...)
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	pool, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return pool.Close()
}

// Ping verifies the connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	pool, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return pool.PingContext(ctx)
}

// WithContext returns a DB bound to ctx.
func (d *DB) WithContext(ctx context.Context) *DB {
	return &DB{DB: d.DB.WithContext(ctx), cfg: d.cfg, slog: d.slog}
}

// Transaction runs fn inside a transaction, rolling back when fn errors.
func (d *DB) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.DB.WithContext(ctx).Transaction(fn)
}

// Driver returns the configured driver name.
func (d *DB) Driver() string {
	return d.cfg.Driver
}

// StartStatsMonitor periodically logs pool stats for SQLite until ctx is
// cancelled.
func (d *DB) StartStatsMonitor(ctx context.Context) {
	if d.cfg.Driver != "sqlite" {
		return
	}

	go func() {
		tick := time.NewTicker(30 * time.Minute)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				d.LogStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	d.slog.Debug("SQLite stats monitor started (logs every 30m)")
}

// LogStats logs current connection pool statistics.
func (d *DB) LogStats() {
	pool, err := d.DB.DB()
	if err != nil {
		return
	}
	d.slog.LogAttrs(context.Background(), slog.LevelInfo,
		"SQLite connection pool stats (periodic)", poolAttrs(pool.Stats())...)
}

// Stats returns connection pool statistics keyed for the health endpoint.
func (d *DB) Stats() (map[string]interface{}, error) {
	pool, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	s := pool.Stats()
	out := map[string]interface{}{
		"max_open_connections": s.MaxOpenConnections,
		"open_connections":     s.OpenConnections,
	}
	for _, a := range poolAttrs(s)[2:] {
		out[a.Key] = a.Value.Any()
	}
	return out, nil
}

// sqlitePragmaNames are read back after connect so a misapplied DSN is
// visible in the logs.
var sqlitePragmaNames = []string{
	"journal_mode", "synchronous", "busy_timeout", "cache_size",
	"mmap_size", "temp_store", "wal_autocheckpoint",
}

func (d *DB) logSQLiteConfig() {
	pool, err := d.DB.DB()
	if err != nil {
		d.slog.Warn("failed to get sql.DB for SQLite config logging", slog.String("error", err.Error()))
		return
	}

	attrs := make([]slog.Attr, 0, len(sqlitePragmaNames))
	for _, name := range sqlitePragmaNames {
		var value string
		if err := d.DB.Raw("PRAGMA " + name).Scan(&value).Error; err != nil {
			continue
		}
		attrs = append(attrs, slog.String(name, value))
	}
	d.slog.LogAttrs(context.Background(), slog.LevelInfo, "SQLite configuration", attrs...)

	d.slog.LogAttrs(context.Background(), slog.LevelInfo,
		"SQLite connection pool", poolAttrs(pool.Stats())...)
}
