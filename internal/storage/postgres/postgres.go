// Package postgres implements every internal/storage interface against
// PostgreSQL, grounded on the teacher's storageref/postgres package layout
// (one file per domain) but using jmoiron/sqlx's Named/Get/Select helpers
// rather than raw database/sql, since sqlx is declared in the teacher's own
// go.mod. Each domain gets its own dedicated store type sharing a *sqlx.DB
// handle: the storage interfaces reuse identical method names (Create, Get,
// Update, List, ...) across domains, so no single type could implement more
// than one of them.
package postgres

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/epam/rule-engine/internal/storage"
)

// Open connects to Postgres and wraps it in a Stores bundle.
func Open(dsn string) (*Stores, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return NewStores(db), nil
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending migration embedded under migrations/.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres: driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("postgres: migrate up: %w", err)
	}
	return nil
}

// Stores bundles one Postgres-backed instance of every domain store, all
// sharing the same connection pool.
type Stores struct {
	Tenant             *TenantStore
	Customer           *CustomerStore
	Rule               *RuleStore
	RuleSource         *RuleSourceStore
	Ruleset            *RulesetStore
	License            *LicenseStore
	TenantLicenseLink  *TenantLicenseLinkStore
	Job                *JobStore
	BatchResult        *BatchResultStore
	ScheduledJob       *ScheduledJobStore
	ResourceException  *ResourceExceptionStore
}

// NewStores constructs a full Stores bundle over an existing *sqlx.DB handle.
func NewStores(db *sqlx.DB) *Stores {
	return &Stores{
		Tenant:            NewTenantStore(db),
		Customer:          NewCustomerStore(db),
		Rule:              NewRuleStore(db),
		RuleSource:        NewRuleSourceStore(db),
		Ruleset:           NewRulesetStore(db),
		License:           NewLicenseStore(db),
		TenantLicenseLink: NewTenantLicenseLinkStore(db),
		Job:               NewJobStore(db),
		BatchResult:       NewBatchResultStore(db),
		ScheduledJob:      NewScheduledJobStore(db),
		ResourceException: NewResourceExceptionStore(db),
	}
}

var (
	_ storage.TenantStore            = (*TenantStore)(nil)
	_ storage.CustomerStore          = (*CustomerStore)(nil)
	_ storage.RuleStore              = (*RuleStore)(nil)
	_ storage.RuleSourceStore        = (*RuleSourceStore)(nil)
	_ storage.RulesetStore           = (*RulesetStore)(nil)
	_ storage.LicenseStore           = (*LicenseStore)(nil)
	_ storage.TenantLicenseLinkStore = (*TenantLicenseLinkStore)(nil)
	_ storage.JobStore               = (*JobStore)(nil)
	_ storage.BatchResultStore       = (*BatchResultStore)(nil)
	_ storage.ScheduledJobStore      = (*ScheduledJobStore)(nil)
	_ storage.ResourceExceptionStore = (*ResourceExceptionStore)(nil)
)
