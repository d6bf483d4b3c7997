package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/epam/rule-engine/internal/domain/rule"
)

// RuleStore is a sqlx-backed storage.RuleStore.
type RuleStore struct{ db *sqlx.DB }

func NewRuleStore(db *sqlx.DB) *RuleStore { return &RuleStore{db: db} }

type ruleRow struct {
	Name           string `db:"name"`
	RuleSourceID   string `db:"rule_source_id"`
	Cloud          string `db:"cloud"`
	ResourceType   string `db:"resource_type"`
	Severity       string `db:"severity"`
	Description    string `db:"description"`
	Remediation    string `db:"remediation"`
	Impact         string `db:"impact"`
	Standards      []byte `db:"standards"`
	MITRE          []byte `db:"mitre"`
	Article        string       `db:"article"`
	ServiceSection string       `db:"service_section"`
	CommitHash     string       `db:"commit_hash"`
	UpdatedAt      sql.NullTime `db:"updated_at"`
	SourcePath     string       `db:"source_path"`
}

func toRuleRow(r rule.Rule) (ruleRow, error) {
	standards, err := json.Marshal(r.Standards)
	if err != nil {
		return ruleRow{}, err
	}
	mitre, err := json.Marshal(r.MITRE)
	if err != nil {
		return ruleRow{}, err
	}
	return ruleRow{
		Name: r.Name, RuleSourceID: r.RuleSourceID, Cloud: string(r.Cloud), ResourceType: r.ResourceType,
		Severity: string(r.Severity), Description: r.Description, Remediation: r.Remediation, Impact: r.Impact,
		Standards: standards, MITRE: mitre, Article: r.Article, ServiceSection: r.ServiceSection,
		CommitHash: r.CommitHash, UpdatedAt: toNullTime(r.UpdatedAt), SourcePath: r.SourcePath,
	}, nil
}

func (row ruleRow) toDomain() (rule.Rule, error) {
	var standards map[string]map[string][]string
	if len(row.Standards) > 0 {
		if err := json.Unmarshal(row.Standards, &standards); err != nil {
			return rule.Rule{}, err
		}
	}
	var mitre []string
	if len(row.MITRE) > 0 {
		if err := json.Unmarshal(row.MITRE, &mitre); err != nil {
			return rule.Rule{}, err
		}
	}
	return rule.Rule{
		Name: row.Name, RuleSourceID: row.RuleSourceID, Cloud: row.Cloud, ResourceType: row.ResourceType,
		Severity: row.Severity, Description: row.Description, Remediation: row.Remediation, Impact: row.Impact,
		Standards: standards, MITRE: mitre, Article: row.Article, ServiceSection: row.ServiceSection,
		CommitHash: row.CommitHash, UpdatedAt: row.UpdatedAt.Time, SourcePath: row.SourcePath,
	}, nil
}

func (s *RuleStore) Upsert(ctx context.Context, r rule.Rule) error {
	row, err := toRuleRow(r)
	if err != nil {
		return fmt.Errorf("postgres: encode rule: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO rules (name, rule_source_id, cloud, resource_type, severity, description, remediation, impact, standards, mitre, article, service_section, commit_hash, updated_at, source_path)
		VALUES (:name, :rule_source_id, :cloud, :resource_type, :severity, :description, :remediation, :impact, :standards, :mitre, :article, :service_section, :commit_hash, :updated_at, :source_path)
		ON CONFLICT (name, rule_source_id) DO UPDATE SET
			cloud = EXCLUDED.cloud, resource_type = EXCLUDED.resource_type, severity = EXCLUDED.severity,
			description = EXCLUDED.description, remediation = EXCLUDED.remediation, impact = EXCLUDED.impact,
			standards = EXCLUDED.standards, mitre = EXCLUDED.mitre, article = EXCLUDED.article,
			service_section = EXCLUDED.service_section, commit_hash = EXCLUDED.commit_hash,
			updated_at = EXCLUDED.updated_at, source_path = EXCLUDED.source_path
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: upsert rule: %w", err)
	}
	return nil
}

func (s *RuleStore) Delete(ctx context.Context, name, ruleSourceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE name = $1 AND rule_source_id = $2`, name, ruleSourceID)
	if err != nil {
		return fmt.Errorf("postgres: delete rule: %w", err)
	}
	return nil
}

func (s *RuleStore) Get(ctx context.Context, name, ruleSourceID string) (rule.Rule, bool, error) {
	var row ruleRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM rules WHERE name = $1 AND rule_source_id = $2`, name, ruleSourceID)
	if err == sql.ErrNoRows {
		return rule.Rule{}, false, nil
	}
	if err != nil {
		return rule.Rule{}, false, fmt.Errorf("postgres: get rule: %w", err)
	}
	r, err := row.toDomain()
	return r, true, err
}

func (s *RuleStore) ListByRuleSource(ctx context.Context, ruleSourceID string) ([]rule.Rule, error) {
	var rows []ruleRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM rules WHERE rule_source_id = $1 ORDER BY name`, ruleSourceID); err != nil {
		return nil, fmt.Errorf("postgres: list rules: %w", err)
	}
	out := make([]rule.Rule, 0, len(rows))
	for _, row := range rows {
		r, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// RuleSourceStore is a sqlx-backed storage.RuleSourceStore.
type RuleSourceStore struct{ db *sqlx.DB }

func NewRuleSourceStore(db *sqlx.DB) *RuleSourceStore { return &RuleSourceStore{db: db} }

type ruleSourceRow struct {
	ID          string `db:"id"`
	Customer    string `db:"customer"`
	GitURL      string `db:"git_url"`
	ProjectID   string `db:"project_id"`
	Ref         string `db:"ref"`
	PathPrefix  string `db:"path_prefix"`
	Type        string `db:"type"`
	LatestSync  []byte `db:"latest_sync"`
	Description string `db:"description"`
	SecretName  string `db:"secret_name"`
}

func toRuleSourceRow(rs rule.RuleSource) (ruleSourceRow, error) {
	latestSync, err := json.Marshal(rs.LatestSync)
	if err != nil {
		return ruleSourceRow{}, err
	}
	return ruleSourceRow{
		ID: rs.ID, Customer: rs.Customer, GitURL: rs.GitURL, ProjectID: rs.ProjectID, Ref: rs.Ref,
		PathPrefix: rs.PathPrefix, Type: string(rs.Type), LatestSync: latestSync,
		Description: rs.Description, SecretName: rs.SecretName,
	}, nil
}

func (row ruleSourceRow) toDomain() (rule.RuleSource, error) {
	var latestSync rule.LatestSync
	if len(row.LatestSync) > 0 {
		if err := json.Unmarshal(row.LatestSync, &latestSync); err != nil {
			return rule.RuleSource{}, err
		}
	}
	return rule.RuleSource{
		ID: row.ID, Customer: row.Customer, GitURL: row.GitURL, ProjectID: row.ProjectID, Ref: row.Ref,
		PathPrefix: row.PathPrefix, Type: rule.RuleSourceType(row.Type), LatestSync: latestSync,
		Description: row.Description, SecretName: row.SecretName,
	}, nil
}

func (s *RuleSourceStore) Create(ctx context.Context, rs rule.RuleSource) error {
	row, err := toRuleSourceRow(rs)
	if err != nil {
		return fmt.Errorf("postgres: encode rule source: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO rule_sources (id, customer, git_url, project_id, ref, path_prefix, type, latest_sync, description, secret_name)
		VALUES (:id, :customer, :git_url, :project_id, :ref, :path_prefix, :type, :latest_sync, :description, :secret_name)
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: create rule source: %w", err)
	}
	return nil
}

func (s *RuleSourceStore) Update(ctx context.Context, rs rule.RuleSource) error {
	row, err := toRuleSourceRow(rs)
	if err != nil {
		return fmt.Errorf("postgres: encode rule source: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		UPDATE rule_sources SET customer=:customer, git_url=:git_url, project_id=:project_id, ref=:ref,
			path_prefix=:path_prefix, type=:type, latest_sync=:latest_sync, description=:description, secret_name=:secret_name
		WHERE id = :id
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: update rule source: %w", err)
	}
	return nil
}

func (s *RuleSourceStore) Get(ctx context.Context, id string) (rule.RuleSource, bool, error) {
	var row ruleSourceRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM rule_sources WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return rule.RuleSource{}, false, nil
	}
	if err != nil {
		return rule.RuleSource{}, false, fmt.Errorf("postgres: get rule source: %w", err)
	}
	rs, err := row.toDomain()
	return rs, true, err
}

func (s *RuleSourceStore) ListByCustomer(ctx context.Context, customer string, limit int) ([]rule.RuleSource, error) {
	limit = clampListLimit(limit)
	var rows []ruleSourceRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM rule_sources WHERE customer = $1 ORDER BY id LIMIT $2`, customer, limit); err != nil {
		return nil, fmt.Errorf("postgres: list rule sources: %w", err)
	}
	out := make([]rule.RuleSource, 0, len(rows))
	for _, row := range rows {
		rs, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, nil
}

// RulesetStore is a sqlx-backed storage.RulesetStore.
type RulesetStore struct{ db *sqlx.DB }

func NewRulesetStore(db *sqlx.DB) *RulesetStore { return &RulesetStore{db: db} }

type rulesetRow struct {
	Name          string `db:"name"`
	Version       string `db:"version"`
	Cloud         string `db:"cloud"`
	Customer      string `db:"customer"`
	RuleNames     []byte `db:"rule_names"`
	Licensed      bool   `db:"licensed"`
	LicenseKeys   []byte `db:"license_keys"`
	StorageBucket string `db:"storage_bucket"`
	StorageKey    string `db:"storage_key"`
	LMID          string `db:"lm_id"`
}

func toRulesetRow(rs rule.Ruleset) (rulesetRow, error) {
	names := rs.RuleNameSlice()
	ruleNames, err := json.Marshal(names)
	if err != nil {
		return rulesetRow{}, err
	}
	licenseKeys, err := json.Marshal(rs.LicenseKeys)
	if err != nil {
		return rulesetRow{}, err
	}
	return rulesetRow{
		Name: rs.Name, Version: rs.Version, Cloud: string(rs.Cloud), Customer: rs.Customer,
		RuleNames: ruleNames, Licensed: rs.Licensed, LicenseKeys: licenseKeys,
		StorageBucket: rs.StorageBucket, StorageKey: rs.StorageKey,
	}, nil
}

func (row rulesetRow) toDomain() (rule.Ruleset, error) {
	var names []string
	if len(row.RuleNames) > 0 {
		if err := json.Unmarshal(row.RuleNames, &names); err != nil {
			return rule.Ruleset{}, err
		}
	}
	nameSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		nameSet[n] = struct{}{}
	}
	var licenseKeys []string
	if len(row.LicenseKeys) > 0 {
		if err := json.Unmarshal(row.LicenseKeys, &licenseKeys); err != nil {
			return rule.Ruleset{}, err
		}
	}
	return rule.Ruleset{
		Name: row.Name, Version: row.Version, Cloud: row.Cloud, Customer: row.Customer,
		RuleNames: nameSet, Licensed: row.Licensed, LicenseKeys: licenseKeys,
		StorageBucket: row.StorageBucket, StorageKey: row.StorageKey,
	}, nil
}

func (s *RulesetStore) Create(ctx context.Context, rs rule.Ruleset) error {
	row, err := toRulesetRow(rs)
	if err != nil {
		return fmt.Errorf("postgres: encode ruleset: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO rulesets (name, version, cloud, customer, rule_names, licensed, license_keys, storage_bucket, storage_key)
		VALUES (:name, :version, :cloud, :customer, :rule_names, :licensed, :license_keys, :storage_bucket, :storage_key)
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: create ruleset: %w", err)
	}
	return nil
}

func (s *RulesetStore) Get(ctx context.Context, customer, name, version string) (rule.Ruleset, bool, error) {
	var row rulesetRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM rulesets WHERE customer=$1 AND name=$2 AND version=$3`, customer, name, version)
	if err == sql.ErrNoRows {
		return rule.Ruleset{}, false, nil
	}
	if err != nil {
		return rule.Ruleset{}, false, fmt.Errorf("postgres: get ruleset: %w", err)
	}
	rs, err := row.toDomain()
	return rs, true, err
}

func (s *RulesetStore) ByLicenseManagerID(ctx context.Context, id string) (rule.Ruleset, bool, error) {
	var row rulesetRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM rulesets WHERE lm_id=$1`, id)
	if err == sql.ErrNoRows {
		return rule.Ruleset{}, false, nil
	}
	if err != nil {
		return rule.Ruleset{}, false, fmt.Errorf("postgres: get ruleset by lm id: %w", err)
	}
	rs, err := row.toDomain()
	return rs, true, err
}

func (s *RulesetStore) Update(ctx context.Context, rs rule.Ruleset) error {
	row, err := toRulesetRow(rs)
	if err != nil {
		return fmt.Errorf("postgres: encode ruleset: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		UPDATE rulesets SET rule_names=:rule_names, licensed=:licensed, license_keys=:license_keys,
			storage_bucket=:storage_bucket, storage_key=:storage_key
		WHERE customer=:customer AND name=:name AND version=:version
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: update ruleset: %w", err)
	}
	return nil
}

func (s *RulesetStore) Delete(ctx context.Context, customer, name, version string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rulesets WHERE customer=$1 AND name=$2 AND version=$3`, customer, name, version)
	if err != nil {
		return fmt.Errorf("postgres: delete ruleset: %w", err)
	}
	return nil
}

func (s *RulesetStore) ListByCustomer(ctx context.Context, customer string, limit int) ([]rule.Ruleset, error) {
	limit = clampListLimit(limit)
	var rows []rulesetRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM rulesets WHERE customer=$1 ORDER BY name LIMIT $2`, customer, limit); err != nil {
		return nil, fmt.Errorf("postgres: list rulesets: %w", err)
	}
	out := make([]rule.Ruleset, 0, len(rows))
	for _, row := range rows {
		rs, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, nil
}
