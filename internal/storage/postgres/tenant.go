package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/epam/rule-engine/internal/domain/tenant"
)

// TenantStore is a sqlx-backed storage.TenantStore.
type TenantStore struct{ db *sqlx.DB }

func NewTenantStore(db *sqlx.DB) *TenantStore { return &TenantStore{db: db} }

type tenantRow struct {
	ID          string       `db:"id"`
	Customer    string       `db:"customer"`
	Cloud       string       `db:"cloud"`
	NativeID    string       `db:"native_id"`
	Regions     []byte       `db:"regions"`
	Active      bool         `db:"active"`
	ActivatedAt sql.NullTime `db:"activated_at"`
	CreatedAt   sql.NullTime `db:"created_at"`
}

func toTenantRow(t tenant.Tenant) (tenantRow, error) {
	regions, err := json.Marshal(t.Regions)
	if err != nil {
		return tenantRow{}, err
	}
	return tenantRow{
		ID:          t.ID,
		Customer:    t.Customer,
		Cloud:       string(t.Cloud),
		NativeID:    t.NativeID,
		Regions:     regions,
		Active:      t.Active,
		ActivatedAt: toNullTime(t.ActivatedAt),
		CreatedAt:   toNullTime(t.CreatedAt),
	}, nil
}

func (r tenantRow) toDomain() (tenant.Tenant, error) {
	var regions []string
	if len(r.Regions) > 0 {
		if err := json.Unmarshal(r.Regions, &regions); err != nil {
			return tenant.Tenant{}, err
		}
	}
	return tenant.Tenant{
		ID:          r.ID,
		Customer:    r.Customer,
		Cloud:       tenant.Cloud(r.Cloud),
		NativeID:    r.NativeID,
		Regions:     regions,
		Active:      r.Active,
		ActivatedAt: r.ActivatedAt.Time,
		CreatedAt:   r.CreatedAt.Time,
	}, nil
}

func (s *TenantStore) Create(ctx context.Context, t tenant.Tenant) error {
	row, err := toTenantRow(t)
	if err != nil {
		return fmt.Errorf("postgres: encode tenant: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO tenants (id, customer, cloud, native_id, regions, active, activated_at, created_at)
		VALUES (:id, :customer, :cloud, :native_id, :regions, :active, :activated_at, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			customer = EXCLUDED.customer, cloud = EXCLUDED.cloud, native_id = EXCLUDED.native_id,
			regions = EXCLUDED.regions, active = EXCLUDED.active, activated_at = EXCLUDED.activated_at
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: create tenant: %w", err)
	}
	return nil
}

func (s *TenantStore) Get(ctx context.Context, id string) (tenant.Tenant, bool, error) {
	var row tenantRow
	err := s.db.GetContext(ctx, &row, `SELECT id, customer, cloud, native_id, regions, active, activated_at, created_at FROM tenants WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return tenant.Tenant{}, false, nil
	}
	if err != nil {
		return tenant.Tenant{}, false, fmt.Errorf("postgres: get tenant: %w", err)
	}
	t, err := row.toDomain()
	return t, true, err
}

func (s *TenantStore) Update(ctx context.Context, t tenant.Tenant) error {
	return s.Create(ctx, t)
}

func (s *TenantStore) GetByNativeID(ctx context.Context, cloud tenant.Cloud, nativeID string) (tenant.Tenant, bool, error) {
	var row tenantRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, customer, cloud, native_id, regions, active, activated_at, created_at
		FROM tenants WHERE cloud = $1 AND native_id = $2
	`, string(cloud), nativeID)
	if err == sql.ErrNoRows {
		return tenant.Tenant{}, false, nil
	}
	if err != nil {
		return tenant.Tenant{}, false, fmt.Errorf("postgres: get tenant by native id: %w", err)
	}
	t, err := row.toDomain()
	return t, true, err
}

func (s *TenantStore) List(ctx context.Context, customer string, limit int) ([]tenant.Tenant, error) {
	limit = clampListLimit(limit)
	var rows []tenantRow
	var err error
	if customer == "" {
		err = s.db.SelectContext(ctx, &rows, `SELECT id, customer, cloud, native_id, regions, active, activated_at, created_at FROM tenants ORDER BY id LIMIT $1`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT id, customer, cloud, native_id, regions, active, activated_at, created_at FROM tenants WHERE customer = $1 ORDER BY id LIMIT $2`, customer, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list tenants: %w", err)
	}
	out := make([]tenant.Tenant, 0, len(rows))
	for _, r := range rows {
		t, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
