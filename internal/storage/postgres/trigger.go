package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/epam/rule-engine/internal/domain/trigger"
)

// ScheduledJobStore is a sqlx-backed storage.ScheduledJobStore.
type ScheduledJobStore struct{ db *sqlx.DB }

func NewScheduledJobStore(db *sqlx.DB) *ScheduledJobStore { return &ScheduledJobStore{db: db} }

type scheduledJobRow struct {
	ID       string `db:"id"`
	Customer string `db:"customer"`
	Tenant   string `db:"tenant"`
	Schedule string `db:"schedule"`
	Regions  []byte `db:"regions"`
	Rulesets []byte `db:"rulesets"`
	Enabled  bool   `db:"enabled"`
}

func toScheduledJobRow(sj trigger.ScheduledJob) (scheduledJobRow, error) {
	regions, err := json.Marshal(sj.Regions)
	if err != nil {
		return scheduledJobRow{}, err
	}
	rulesets, err := json.Marshal(sj.Rulesets)
	if err != nil {
		return scheduledJobRow{}, err
	}
	return scheduledJobRow{
		ID: sj.ID, Customer: sj.Customer, Tenant: sj.Tenant, Schedule: sj.Schedule,
		Regions: regions, Rulesets: rulesets, Enabled: sj.Enabled,
	}, nil
}

func (row scheduledJobRow) toDomain() (trigger.ScheduledJob, error) {
	var regions []string
	if len(row.Regions) > 0 {
		if err := json.Unmarshal(row.Regions, &regions); err != nil {
			return trigger.ScheduledJob{}, err
		}
	}
	var rulesets []string
	if len(row.Rulesets) > 0 {
		if err := json.Unmarshal(row.Rulesets, &rulesets); err != nil {
			return trigger.ScheduledJob{}, err
		}
	}
	return trigger.ScheduledJob{
		ID: row.ID, Customer: row.Customer, Tenant: row.Tenant, Schedule: row.Schedule,
		Regions: regions, Rulesets: rulesets, Enabled: row.Enabled,
	}, nil
}

func (s *ScheduledJobStore) Create(ctx context.Context, sj trigger.ScheduledJob) error {
	row, err := toScheduledJobRow(sj)
	if err != nil {
		return fmt.Errorf("postgres: encode scheduled job: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO scheduled_jobs (id, customer, tenant, schedule, regions, rulesets, enabled)
		VALUES (:id, :customer, :tenant, :schedule, :regions, :rulesets, :enabled)
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: create scheduled job: %w", err)
	}
	return nil
}

func (s *ScheduledJobStore) Update(ctx context.Context, sj trigger.ScheduledJob) error {
	row, err := toScheduledJobRow(sj)
	if err != nil {
		return fmt.Errorf("postgres: encode scheduled job: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		UPDATE scheduled_jobs SET schedule=:schedule, regions=:regions, rulesets=:rulesets, enabled=:enabled
		WHERE id = :id
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: update scheduled job: %w", err)
	}
	return nil
}

func (s *ScheduledJobStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete scheduled job: %w", err)
	}
	return nil
}

func (s *ScheduledJobStore) Get(ctx context.Context, id string) (trigger.ScheduledJob, bool, error) {
	var row scheduledJobRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM scheduled_jobs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return trigger.ScheduledJob{}, false, nil
	}
	if err != nil {
		return trigger.ScheduledJob{}, false, fmt.Errorf("postgres: get scheduled job: %w", err)
	}
	sj, err := row.toDomain()
	return sj, true, err
}

func (s *ScheduledJobStore) ListEnabled(ctx context.Context) ([]trigger.ScheduledJob, error) {
	var rows []scheduledJobRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM scheduled_jobs WHERE enabled ORDER BY id`); err != nil {
		return nil, fmt.Errorf("postgres: list enabled scheduled jobs: %w", err)
	}
	out := make([]trigger.ScheduledJob, 0, len(rows))
	for _, row := range rows {
		sj, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, sj)
	}
	return out, nil
}

// ResourceExceptionStore is a sqlx-backed storage.ResourceExceptionStore.
type ResourceExceptionStore struct{ db *sqlx.DB }

func NewResourceExceptionStore(db *sqlx.DB) *ResourceExceptionStore {
	return &ResourceExceptionStore{db: db}
}

type resourceExceptionRow struct {
	ID           string       `db:"id"`
	Customer     string       `db:"customer"`
	Tenant       string       `db:"tenant"`
	ResourceID   string       `db:"resource_id"`
	Location     string       `db:"location"`
	ResourceType string       `db:"resource_type"`
	ARN          string       `db:"arn"`
	TagFilters   []byte       `db:"tag_filters"`
	CreatedAt    sql.NullTime `db:"created_at"`
	UpdatedAt    sql.NullTime `db:"updated_at"`
	ExpiresAt    sql.NullTime `db:"expires_at"`
}

func toResourceExceptionRow(re trigger.ResourceException) (resourceExceptionRow, error) {
	tagFilters, err := json.Marshal(re.TagFilters)
	if err != nil {
		return resourceExceptionRow{}, err
	}
	return resourceExceptionRow{
		ID: re.ID, Customer: re.Customer, Tenant: re.Tenant, ResourceID: re.ResourceID,
		Location: re.Location, ResourceType: re.ResourceType, ARN: re.ARN, TagFilters: tagFilters,
		CreatedAt: toNullTime(re.CreatedAt), UpdatedAt: toNullTime(re.UpdatedAt), ExpiresAt: toNullTime(re.ExpiresAt),
	}, nil
}

func (row resourceExceptionRow) toDomain() (trigger.ResourceException, error) {
	var tagFilters []string
	if len(row.TagFilters) > 0 {
		if err := json.Unmarshal(row.TagFilters, &tagFilters); err != nil {
			return trigger.ResourceException{}, err
		}
	}
	return trigger.ResourceException{
		ID: row.ID, Customer: row.Customer, Tenant: row.Tenant, ResourceID: row.ResourceID,
		Location: row.Location, ResourceType: row.ResourceType, ARN: row.ARN, TagFilters: tagFilters,
		CreatedAt: row.CreatedAt.Time, UpdatedAt: row.UpdatedAt.Time, ExpiresAt: row.ExpiresAt.Time,
	}, nil
}

func (s *ResourceExceptionStore) Create(ctx context.Context, re trigger.ResourceException) error {
	row, err := toResourceExceptionRow(re)
	if err != nil {
		return fmt.Errorf("postgres: encode resource exception: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO resource_exceptions (id, customer, tenant, resource_id, location, resource_type, arn,
			tag_filters, created_at, updated_at, expires_at)
		VALUES (:id, :customer, :tenant, :resource_id, :location, :resource_type, :arn,
			:tag_filters, :created_at, :updated_at, :expires_at)
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: create resource exception: %w", err)
	}
	return nil
}

func (s *ResourceExceptionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resource_exceptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete resource exception: %w", err)
	}
	return nil
}

// ListByTenant applies the TTL filter in SQL (expires_at IS NULL or in the
// future) rather than fetching every row and filtering in Go.
func (s *ResourceExceptionStore) ListByTenant(ctx context.Context, customer, tenantID string, now time.Time) ([]trigger.ResourceException, error) {
	var rows []resourceExceptionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM resource_exceptions
		WHERE customer = $1 AND tenant = $2 AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY id
	`, customer, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resource exceptions: %w", err)
	}
	out := make([]trigger.ResourceException, 0, len(rows))
	for _, row := range rows {
		re, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}
