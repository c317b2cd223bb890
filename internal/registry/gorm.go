package registry

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	filesource "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"fixengine/internal/config"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// gormStore is the alternate sql Store backend (spec.md/SPEC_FULL.md
// §2: "deployments that already run Postgres/SQLite for their control
// plane"), adapted from pkg/controlplane/_ref/gorm.go's GORMStore: same
// dialector-by-driver-name selection, same "Silent" logger default. Unlike
// the teacher's AutoMigrate-only approach, the Postgres path here runs
// versioned golang-migrate migrations (embedded via go:embed) since a
// production Postgres fleet expects reviewable migration files rather
// than a schema that changes shape under AutoMigrate on every deploy.
type gormStore struct {
	db *gorm.DB
}

func openGorm(cfg config.RegistryConfig) (Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("registry: unknown sql driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: open sql store: %w", err)
	}

	if cfg.Driver == "postgres" {
		if err := runPostgresMigrations(db, cfg.MigrationsPath); err != nil {
			return nil, err
		}
	} else {
		// No golang-migrate driver is wired for SQLite here (the pure-Go
		// modernc/glebarez driver this repo uses has no corresponding
		// migrate source in the examples this was built from), so the
		// single-table schema is kept in sync via AutoMigrate instead,
		// same as the teacher's own SQLite path in GORMStore.New.
		if err := db.AutoMigrate(&sessionRow{}); err != nil {
			return nil, fmt.Errorf("registry: automigrate sqlite schema: %w", err)
		}
	}

	return &gormStore{db: db}, nil
}

// runPostgresMigrations applies the embedded migrations by default, or the
// operator-supplied directory at migrationsPath when set (e.g. to run a
// fleet's own reviewed copy instead of the one baked into this binary).
func runPostgresMigrations(db *gorm.DB, migrationsPath string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("registry: underlying sql.DB: %w", err)
	}
	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("registry: migrate postgres driver: %w", err)
	}

	var (
		src     source.Driver
		srcName string
	)
	if migrationsPath != "" {
		src, err = filesource.New("file://" + migrationsPath)
		srcName = "file"
	} else {
		src, err = iofs.New(postgresMigrations, "migrations/postgres")
		srcName = "iofs"
	}
	if err != nil {
		return fmt.Errorf("registry: migrate source: %w", err)
	}

	m, err := migrate.NewWithInstance(srcName, src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("registry: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("registry: run migrations: %w", err)
	}
	return nil
}

func (s *gormStore) Put(ctx context.Context, rec SessionRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return fmt.Errorf("registry: encode session record: %w", err)
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

func (s *gormStore) Get(ctx context.Context, sessionID string) (SessionRecord, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).First(&row, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, err
	}
	return fromRow(row)
}

func (s *gormStore) List(ctx context.Context) ([]SessionRecord, error) {
	var rows []sessionRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	recs := make([]SessionRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *gormStore) Delete(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Delete(&sessionRow{}, "session_id = ?", sessionID).Error
}

func (s *gormStore) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
