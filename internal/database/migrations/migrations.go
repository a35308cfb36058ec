package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"ms-checkout/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var files embed.FS

// Runner applies the embedded schema migrations to a Postgres database.
type Runner struct {
	db       *sql.DB
	logger   *logger.Logger
	migrator *migrate.Migrate
}

func NewRunner(db *sql.DB, log *logger.Logger) *Runner {
	return &Runner{db: db, logger: log}
}

func (r *Runner) initialize() error {
	if r.migrator != nil {
		return nil
	}

	source, err := iofs.New(files, "sql")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	r.migrator = migrator
	return nil
}

// Up runs all pending migrations. A dirty version left by a crashed run is an error;
// fix it with Force after checking the schema by hand.
func (r *Runner) Up() error {
	if err := r.initialize(); err != nil {
		return err
	}

	if _, dirty, err := r.migrator.Version(); err == nil && dirty {
		return errors.New("database schema is dirty, force a version before migrating")
	}

	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	r.logVersion()
	return nil
}

// Down rolls back all migrations.
func (r *Runner) Down() error {
	if err := r.initialize(); err != nil {
		return err
	}
	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	r.logVersion()
	return nil
}

// To migrates up or down to version.
func (r *Runner) To(version uint) error {
	if err := r.initialize(); err != nil {
		return err
	}
	if err := r.migrator.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	r.logVersion()
	return nil
}

// Force sets the recorded version without running anything and clears the dirty flag.
func (r *Runner) Force(version int) error {
	if err := r.initialize(); err != nil {
		return err
	}
	return r.migrator.Force(version)
}

func (r *Runner) Version() (uint, bool, error) {
	if err := r.initialize(); err != nil {
		return 0, false, err
	}
	version, dirty, err := r.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (r *Runner) logVersion() {
	version, dirty, err := r.Version()
	if err != nil {
		r.logger.Warn("MIGRATE", fmt.Sprintf("Could not read schema version: %v", err))
		return
	}
	r.logger.Info("MIGRATE", fmt.Sprintf("Current schema version: %d (dirty: %t)", version, dirty))
}

// Close releases the migrator. The *sql.DB passed to NewRunner is closed with it.
func (r *Runner) Close() error {
	if r.migrator == nil {
		return nil
	}
	sourceErr, databaseErr := r.migrator.Close()
	if sourceErr != nil {
		return fmt.Errorf("error closing migrator source: %w", sourceErr)
	}
	if databaseErr != nil {
		return fmt.Errorf("error closing migrator database: %w", databaseErr)
	}
	return nil
}
