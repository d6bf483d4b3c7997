package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/epam/rule-engine/internal/domain/license"
	"github.com/epam/rule-engine/internal/storage"
)

// LicenseStore is a sqlx-backed storage.LicenseStore. It keeps the entitlement
// record as a single JSONB "meta bag" column, mirroring the original's
// Application-document shape rather than normalizing Allowance/EventDriven/
// Customers into separate tables.
type LicenseStore struct{ db *sqlx.DB }

func NewLicenseStore(db *sqlx.DB) *LicenseStore { return &LicenseStore{db: db} }

type licenseRow struct {
	LicenseKey  string       `db:"license_key"`
	Customer    string       `db:"customer"`
	Description string       `db:"description"`
	Expiration  sql.NullTime `db:"expiration"`
	LatestSync  sql.NullTime `db:"latest_sync"`
	Data        []byte       `db:"data"`
	EventDriven bool         `db:"event_driven"`
}

type licenseData struct {
	Allowance  license.Allowance                  `json:"allowance"`
	EventDrvn  license.EventDriven                `json:"event_driven"`
	Customers  map[string]license.CustomerScope   `json:"customers"`
	RulesetIDs []string                           `json:"ruleset_ids"`
}

func toLicenseRow(l license.License) (licenseRow, error) {
	data, err := json.Marshal(licenseData{
		Allowance:  l.Allowance,
		EventDrvn:  l.EventDriven,
		Customers:  l.Customers,
		RulesetIDs: l.RulesetIDs,
	})
	if err != nil {
		return licenseRow{}, err
	}
	return licenseRow{
		LicenseKey:  l.LicenseKey,
		Customer:    l.Customer,
		Description: l.Description,
		Expiration:  toNullTime(l.Expiration),
		LatestSync:  toNullTime(l.LatestSync),
		Data:        data,
		EventDriven: l.EventDriven.Active,
	}, nil
}

func (row licenseRow) toDomain() (license.License, error) {
	var data licenseData
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &data); err != nil {
			return license.License{}, err
		}
	}
	return license.License{
		LicenseKey:  row.LicenseKey,
		Customer:    row.Customer,
		Description: row.Description,
		Expiration:  row.Expiration.Time,
		LatestSync:  row.LatestSync.Time,
		Allowance:   data.Allowance,
		EventDriven: data.EventDrvn,
		Customers:   data.Customers,
		RulesetIDs:  data.RulesetIDs,
	}, nil
}

func (s *LicenseStore) Create(ctx context.Context, l license.License) error {
	row, err := toLicenseRow(l)
	if err != nil {
		return fmt.Errorf("postgres: encode license: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO licenses (license_key, customer, description, expiration, latest_sync, data, event_driven)
		VALUES (:license_key, :customer, :description, :expiration, :latest_sync, :data, :event_driven)
		ON CONFLICT (license_key) DO UPDATE SET
			customer = EXCLUDED.customer, description = EXCLUDED.description, expiration = EXCLUDED.expiration,
			latest_sync = EXCLUDED.latest_sync, data = EXCLUDED.data, event_driven = EXCLUDED.event_driven
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: create license: %w", err)
	}
	return nil
}

func (s *LicenseStore) Update(ctx context.Context, l license.License) error {
	return s.Create(ctx, l)
}

func (s *LicenseStore) Delete(ctx context.Context, licenseKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM licenses WHERE license_key = $1`, licenseKey)
	if err != nil {
		return fmt.Errorf("postgres: delete license: %w", err)
	}
	return nil
}

func (s *LicenseStore) Get(ctx context.Context, licenseKey string) (license.License, bool, error) {
	var row licenseRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM licenses WHERE license_key = $1`, licenseKey)
	if err == sql.ErrNoRows {
		return license.License{}, false, nil
	}
	if err != nil {
		return license.License{}, false, fmt.Errorf("postgres: get license: %w", err)
	}
	l, err := row.toDomain()
	return l, true, err
}

// ListByCustomer mirrors the original attachment-scope lookup (§4.5): a
// license is returned for customer c when c appears as a key in its
// Customers scope bag, not by its owning Customer field, so the filter runs
// against the JSONB data column rather than the indexed customer column.
func (s *LicenseStore) ListByCustomer(ctx context.Context, customer string) ([]license.License, error) {
	var rows []licenseRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM licenses WHERE data -> 'customers' ? $1 ORDER BY license_key
	`, customer)
	if err != nil {
		return nil, fmt.Errorf("postgres: list licenses by customer: %w", err)
	}
	out := make([]license.License, 0, len(rows))
	for _, row := range rows {
		l, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *LicenseStore) ListEventDriven(ctx context.Context) ([]license.License, error) {
	var rows []licenseRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM licenses WHERE event_driven ORDER BY license_key`); err != nil {
		return nil, fmt.Errorf("postgres: list event-driven licenses: %w", err)
	}
	out := make([]license.License, 0, len(rows))
	for _, row := range rows {
		l, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// TenantLicenseLinkStore is a sqlx-backed storage.TenantLicenseLinkStore.
type TenantLicenseLinkStore struct{ db *sqlx.DB }

func NewTenantLicenseLinkStore(db *sqlx.DB) *TenantLicenseLinkStore {
	return &TenantLicenseLinkStore{db: db}
}

type tenantLicenseLinkRow struct {
	Scope      string `db:"scope"`
	LicenseKey string `db:"license_key"`
}

// LinksForTenant returns the tenant's links ordered specific-tenant-scope →
// all-cloud-scope → all-scope, matching the original's LinkedParentsIterator
// traversal order, via an explicit CASE rank rather than relying on insertion order.
func (s *TenantLicenseLinkStore) LinksForTenant(ctx context.Context, tenantID string) ([]storage.TenantLicenseLink, error) {
	var rows []tenantLicenseLinkRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT scope, license_key FROM tenant_license_links
		WHERE tenant_id = $1
		ORDER BY CASE scope WHEN 'tenant' THEN 0 WHEN 'cloud' THEN 1 ELSE 2 END
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tenant license links: %w", err)
	}
	out := make([]storage.TenantLicenseLink, 0, len(rows))
	for _, row := range rows {
		out = append(out, storage.TenantLicenseLink{
			Scope:      storage.LinkedLicenseScope(row.Scope),
			LicenseKey: row.LicenseKey,
		})
	}
	return out, nil
}
