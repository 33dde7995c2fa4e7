// Package migrations provides versioned schema migrations on top of GORM.
// Applied versions are tracked in a schema_migrations table so Up is safe
// to run on every startup.
package migrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Migration is a single versioned schema change. Down may be nil for
// migrations that cannot be rolled back.
type Migration struct {
	Version     string
	Description string

	Up   func(tx *gorm.DB) error
	Down func(tx *gorm.DB) error
}

// MigrationRecord is a row in the schema_migrations tracking table.
type MigrationRecord struct {
	ID uint `gorm:"primarykey"`

	Version     string    `gorm:"uniqueIndex;not null"`
	Description string    `gorm:"not null"`
	AppliedAt   time.Time `gorm:"not null"`
}

func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// MigrationStatus reports whether a registered migration has been applied.
type MigrationStatus struct {
	Version     string
	Description string
	Applied     bool
	AppliedAt   *time.Time
}

// Migrator applies registered migrations against a database.
type Migrator struct {
	db       *gorm.DB
	log      *slog.Logger
	registry []Migration
}

// NewMigrator creates a Migrator with an empty registry.
func NewMigrator(db *gorm.DB, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}
	return &Migrator{db: db, log: log}
}

// RegisterAll adds migrations to the registry. The registry is sorted by
// version before any operation runs, so registration order is irrelevant.
func (m *Migrator) RegisterAll(migrations []Migration) {
	m.registry = append(m.registry, migrations...)
}

// Init creates the migration tracking table if it does not exist yet.
func (m *Migrator) Init(ctx context.Context) error {
	return m.db.WithContext(ctx).AutoMigrate(&MigrationRecord{})
}

// prepare initializes the tracking table and returns applied records keyed
// by version, with the registry sorted.
func (m *Migrator) prepare(ctx context.Context) (map[string]MigrationRecord, error) {
	if err := m.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing migrations table: %w", err)
	}

	sort.Slice(m.registry, func(i, j int) bool {
		return m.registry[i].Version < m.registry[j].Version
	})

	var records []MigrationRecord
	if err := m.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("getting applied migrations: %w", err)
	}

	applied := make(map[string]MigrationRecord, len(records))
	for _, record := range records {
		applied[record.Version] = record
	}
	return applied, nil
}

// Up applies all pending migrations in version order.
func (m *Migrator) Up(ctx context.Context) error {
	applied, err := m.prepare(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.registry {
		if _, done := applied[mig.Version]; done {
			continue
		}

		m.log.InfoContext(ctx, "applying migration",
			slog.String("version", mig.Version),
			slog.String("description", mig.Description),
		)

		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mig.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				Version:     mig.Version,
				Description: mig.Description,
				AppliedAt:   time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", mig.Version, err)
		}

		m.log.InfoContext(ctx, "migration applied", slog.String("version", mig.Version))
	}

	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("initializing migrations table: %w", err)
	}

	var record MigrationRecord
	if err := m.db.WithContext(ctx).Order("version DESC").First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m.log.InfoContext(ctx, "no migrations to rollback")
			return nil
		}
		return fmt.Errorf("getting last migration: %w", err)
	}

	mig, ok := m.find(record.Version)
	if !ok {
		return fmt.Errorf("migration definition not found for version %s", record.Version)
	}
	if mig.Down == nil {
		return fmt.Errorf("migration %s does not support rollback", record.Version)
	}

	m.log.InfoContext(ctx, "rolling back migration",
		slog.String("version", mig.Version),
		slog.String("description", mig.Description),
	)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mig.Down(tx); err != nil {
			return err
		}
		return tx.Where("version = ?", mig.Version).Delete(&MigrationRecord{}).Error
	})
	if err != nil {
		return fmt.Errorf("rolling back migration %s: %w", mig.Version, err)
	}

	m.log.InfoContext(ctx, "migration rolled back", slog.String("version", mig.Version))
	return nil
}

func (m *Migrator) find(version string) (Migration, bool) {
	for _, mig := range m.registry {
		if mig.Version == version {
			return mig, true
		}
	}
	return Migration{}, false
}

// Status reports every registered migration with its applied timestamp.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.prepare(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(m.registry))
	for _, mig := range m.registry {
		status := MigrationStatus{
			Version:     mig.Version,
			Description: mig.Description,
		}
		if record, ok := applied[mig.Version]; ok {
			status.Applied = true
			status.AppliedAt = &record.AppliedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Pending returns registered migrations that have not been applied yet,
// in version order.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.prepare(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]Migration, 0)
	for _, mig := range m.registry {
		if _, done := applied[mig.Version]; !done {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}
