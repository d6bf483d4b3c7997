package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/epam/rule-engine/internal/domain/job"
)

// JobStore is a sqlx-backed storage.JobStore.
type JobStore struct{ db *sqlx.DB }

func NewJobStore(db *sqlx.DB) *JobStore { return &JobStore{db: db} }

type jobRow struct {
	ID                string         `db:"id"`
	Tenant            string         `db:"tenant"`
	Customer          string         `db:"customer"`
	Owner             string         `db:"owner"`
	SubmittedAt       sql.NullTime   `db:"submitted_at"`
	CreatedAt         sql.NullTime   `db:"created_at"`
	StartedAt         sql.NullTime   `db:"started_at"`
	StoppedAt         sql.NullTime   `db:"stopped_at"`
	Status            string         `db:"status"`
	Rulesets          []byte         `db:"rulesets"`
	Regions           []byte         `db:"regions"`
	ScheduledRuleName string         `db:"scheduled_rule_name"`
	ScanType          string         `db:"scan_type"`
	LicenseKeys       []byte         `db:"license_keys"`
	NativeID          sql.NullString `db:"native_id"`
	JobQueue          string         `db:"job_queue"`
	JobDefinition     string         `db:"job_definition"`
}

func toJobRow(j job.Job) (jobRow, error) {
	rulesets, err := json.Marshal(j.Rulesets)
	if err != nil {
		return jobRow{}, err
	}
	regions, err := json.Marshal(j.Regions)
	if err != nil {
		return jobRow{}, err
	}
	licenseKeys, err := json.Marshal(j.LicenseKeys)
	if err != nil {
		return jobRow{}, err
	}
	return jobRow{
		ID: j.ID, Tenant: j.Tenant, Customer: j.Customer, Owner: j.Owner,
		SubmittedAt: toNullTime(j.SubmittedAt), CreatedAt: toNullTime(j.CreatedAt),
		StartedAt: toNullTime(j.StartedAt), StoppedAt: toNullTime(j.StoppedAt),
		Status: string(j.Status), Rulesets: rulesets, Regions: regions,
		ScheduledRuleName: j.ScheduledRuleName, ScanType: string(j.ScanType),
		LicenseKeys: licenseKeys, NativeID: toNullString(j.NativeID),
		JobQueue: j.JobQueue, JobDefinition: j.JobDefinition,
	}, nil
}

func (row jobRow) toDomain() (job.Job, error) {
	var rulesets job.RulesetView
	if len(row.Rulesets) > 0 {
		if err := json.Unmarshal(row.Rulesets, &rulesets); err != nil {
			return job.Job{}, err
		}
	}
	var regions []string
	if len(row.Regions) > 0 {
		if err := json.Unmarshal(row.Regions, &regions); err != nil {
			return job.Job{}, err
		}
	}
	var licenseKeys []string
	if len(row.LicenseKeys) > 0 {
		if err := json.Unmarshal(row.LicenseKeys, &licenseKeys); err != nil {
			return job.Job{}, err
		}
	}
	return job.Job{
		ID: row.ID, Tenant: row.Tenant, Customer: row.Customer, Owner: row.Owner,
		SubmittedAt: row.SubmittedAt.Time, CreatedAt: row.CreatedAt.Time,
		StartedAt: row.StartedAt.Time, StoppedAt: row.StoppedAt.Time,
		Status: job.Status(row.Status), Rulesets: rulesets, Regions: regions,
		ScheduledRuleName: row.ScheduledRuleName, ScanType: job.ScanType(row.ScanType),
		LicenseKeys: licenseKeys, NativeID: row.NativeID.String,
		JobQueue: row.JobQueue, JobDefinition: row.JobDefinition,
	}, nil
}

func (s *JobStore) Create(ctx context.Context, j job.Job) error {
	row, err := toJobRow(j)
	if err != nil {
		return fmt.Errorf("postgres: encode job: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO jobs (id, tenant, customer, owner, submitted_at, created_at, started_at, stopped_at,
			status, rulesets, regions, scheduled_rule_name, scan_type, license_keys, native_id, job_queue, job_definition)
		VALUES (:id, :tenant, :customer, :owner, :submitted_at, :created_at, :started_at, :stopped_at,
			:status, :rulesets, :regions, :scheduled_rule_name, :scan_type, :license_keys, :native_id, :job_queue, :job_definition)
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: create job: %w", err)
	}
	return nil
}

func (s *JobStore) Update(ctx context.Context, j job.Job) error {
	row, err := toJobRow(j)
	if err != nil {
		return fmt.Errorf("postgres: encode job: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		UPDATE jobs SET started_at=:started_at, stopped_at=:stopped_at, status=:status,
			rulesets=:rulesets, license_keys=:license_keys, native_id=:native_id
		WHERE id = :id
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: update job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (job.Job, bool, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return job.Job{}, false, nil
	}
	if err != nil {
		return job.Job{}, false, fmt.Errorf("postgres: get job: %w", err)
	}
	j, err := row.toDomain()
	return j, true, err
}

func (s *JobStore) GetByNativeID(ctx context.Context, nativeID string) (job.Job, bool, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE native_id = $1`, nativeID)
	if err == sql.ErrNoRows {
		return job.Job{}, false, nil
	}
	if err != nil {
		return job.Job{}, false, fmt.Errorf("postgres: get job by native id: %w", err)
	}
	j, err := row.toDomain()
	return j, true, err
}

func (s *JobStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]job.Job, error) {
	limit = clampListLimit(limit)
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM jobs WHERE tenant = $1 ORDER BY submitted_at LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list jobs: %w", err)
	}
	out := make([]job.Job, 0, len(rows))
	for _, row := range rows {
		j, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// BatchResultStore is a sqlx-backed storage.BatchResultStore.
type BatchResultStore struct{ db *sqlx.DB }

func NewBatchResultStore(db *sqlx.DB) *BatchResultStore { return &BatchResultStore{db: db} }

type batchResultRow struct {
	ID              string         `db:"id"`
	Tenant          string         `db:"tenant"`
	Customer        string         `db:"customer"`
	CloudIdentifier string         `db:"cloud_identifier"`
	WindowStart     sql.NullTime   `db:"window_start"`
	WindowEnd       sql.NullTime   `db:"window_end"`
	SubmittedAt     sql.NullTime   `db:"submitted_at"`
	CreatedAt       sql.NullTime   `db:"created_at"`
	StartedAt       sql.NullTime   `db:"started_at"`
	StoppedAt       sql.NullTime   `db:"stopped_at"`
	Status          string         `db:"status"`
	RegionRules     []byte         `db:"region_rules"`
	DedupeKey       sql.NullString `db:"dedupe_key"`
}

func toBatchResultRow(br job.BatchResult) (batchResultRow, error) {
	regionRules, err := json.Marshal(br.RegionRules)
	if err != nil {
		return batchResultRow{}, err
	}
	return batchResultRow{
		ID: br.ID, Tenant: br.Tenant, Customer: br.Customer, CloudIdentifier: br.CloudIdentifier,
		WindowStart: toNullTime(br.WindowStart), WindowEnd: toNullTime(br.WindowEnd),
		SubmittedAt: toNullTime(br.SubmittedAt), CreatedAt: toNullTime(br.CreatedAt),
		StartedAt: toNullTime(br.StartedAt), StoppedAt: toNullTime(br.StoppedAt),
		Status: string(br.Status), RegionRules: regionRules, DedupeKey: toNullString(br.DedupeKey),
	}, nil
}

func (row batchResultRow) toDomain() (job.BatchResult, error) {
	var regionRules map[string][]string
	if len(row.RegionRules) > 0 {
		if err := json.Unmarshal(row.RegionRules, &regionRules); err != nil {
			return job.BatchResult{}, err
		}
	}
	return job.BatchResult{
		ID: row.ID, Tenant: row.Tenant, Customer: row.Customer, CloudIdentifier: row.CloudIdentifier,
		WindowStart: row.WindowStart.Time, WindowEnd: row.WindowEnd.Time,
		SubmittedAt: row.SubmittedAt.Time, CreatedAt: row.CreatedAt.Time,
		StartedAt: row.StartedAt.Time, StoppedAt: row.StoppedAt.Time,
		Status: job.Status(row.Status), RegionRules: regionRules, DedupeKey: row.DedupeKey.String,
	}, nil
}

func (s *BatchResultStore) Create(ctx context.Context, br job.BatchResult) error {
	row, err := toBatchResultRow(br)
	if err != nil {
		return fmt.Errorf("postgres: encode batch result: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO batch_results (id, tenant, customer, cloud_identifier, window_start, window_end,
			submitted_at, created_at, started_at, stopped_at, status, region_rules, dedupe_key)
		VALUES (:id, :tenant, :customer, :cloud_identifier, :window_start, :window_end,
			:submitted_at, :created_at, :started_at, :stopped_at, :status, :region_rules, :dedupe_key)
		ON CONFLICT (dedupe_key) DO NOTHING
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: create batch result: %w", err)
	}
	return nil
}

func (s *BatchResultStore) Update(ctx context.Context, br job.BatchResult) error {
	row, err := toBatchResultRow(br)
	if err != nil {
		return fmt.Errorf("postgres: encode batch result: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		UPDATE batch_results SET started_at=:started_at, stopped_at=:stopped_at, status=:status
		WHERE id = :id
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: update batch result: %w", err)
	}
	return nil
}

func (s *BatchResultStore) Get(ctx context.Context, id string) (job.BatchResult, bool, error) {
	var row batchResultRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM batch_results WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return job.BatchResult{}, false, nil
	}
	if err != nil {
		return job.BatchResult{}, false, fmt.Errorf("postgres: get batch result: %w", err)
	}
	br, err := row.toDomain()
	return br, true, err
}

func (s *BatchResultStore) FindByDedupeKey(ctx context.Context, dedupeKey string) (job.BatchResult, bool, error) {
	var row batchResultRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM batch_results WHERE dedupe_key = $1`, dedupeKey)
	if err == sql.ErrNoRows {
		return job.BatchResult{}, false, nil
	}
	if err != nil {
		return job.BatchResult{}, false, fmt.Errorf("postgres: find batch result by dedupe key: %w", err)
	}
	br, err := row.toDomain()
	return br, true, err
}
