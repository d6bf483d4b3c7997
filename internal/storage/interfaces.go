// Package storage declares one Store interface per domain entity, mirroring
// the repository-per-domain layout of the teacher's internal/app/storage.
package storage

import (
	"context"
	"time"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/domain/license"
	"github.com/epam/rule-engine/internal/domain/rule"
	"github.com/epam/rule-engine/internal/domain/tenant"
	"github.com/epam/rule-engine/internal/domain/trigger"
)

// TenantStore persists Tenant records.
type TenantStore interface {
	Create(ctx context.Context, t tenant.Tenant) error
	Get(ctx context.Context, id string) (tenant.Tenant, bool, error)
	Update(ctx context.Context, t tenant.Tenant) error
	List(ctx context.Context, customer string, limit int) ([]tenant.Tenant, error)
	// GetByNativeID resolves a tenant by its cloud account/subscription/
	// project id, used by the event router to map an inbound CloudTrail or
	// Maestro record's native identifier back to a Tenant (§4.4).
	GetByNativeID(ctx context.Context, cloud tenant.Cloud, nativeID string) (tenant.Tenant, bool, error)
}

// CustomerStore persists Customer records.
type CustomerStore interface {
	Create(ctx context.Context, c tenant.Customer) error
	Get(ctx context.Context, name string) (tenant.Customer, bool, error)
	List(ctx context.Context, limit int) ([]tenant.Customer, error)
}

// RuleStore persists Rule records, keyed by (name, rule-source-id).
type RuleStore interface {
	Upsert(ctx context.Context, r rule.Rule) error
	Delete(ctx context.Context, name, ruleSourceID string) error
	Get(ctx context.Context, name, ruleSourceID string) (rule.Rule, bool, error)
	ListByRuleSource(ctx context.Context, ruleSourceID string) ([]rule.Rule, error)
}

// RuleSourceStore persists RuleSource records.
type RuleSourceStore interface {
	Create(ctx context.Context, rs rule.RuleSource) error
	Update(ctx context.Context, rs rule.RuleSource) error
	Get(ctx context.Context, id string) (rule.RuleSource, bool, error)
	ListByCustomer(ctx context.Context, customer string, limit int) ([]rule.RuleSource, error)
}

// RulesetStore persists Ruleset records, keyed by (customer, name, version).
type RulesetStore interface {
	Create(ctx context.Context, rs rule.Ruleset) error
	Get(ctx context.Context, customer, name, version string) (rule.Ruleset, bool, error)
	ByLicenseManagerID(ctx context.Context, id string) (rule.Ruleset, bool, error)
	Update(ctx context.Context, rs rule.Ruleset) error
	Delete(ctx context.Context, customer, name, version string) error
	ListByCustomer(ctx context.Context, customer string, limit int) ([]rule.Ruleset, error)
}

// LicenseStore persists License records.
type LicenseStore interface {
	Create(ctx context.Context, l license.License) error
	Update(ctx context.Context, l license.License) error
	Delete(ctx context.Context, licenseKey string) error
	Get(ctx context.Context, licenseKey string) (license.License, bool, error)
	ListByCustomer(ctx context.Context, customer string) ([]license.License, error)
	ListEventDriven(ctx context.Context) ([]license.License, error)
}

// LinkedLicenseScope is one "CUSTODIAN_LICENSES" parent link between a
// tenant (or its cloud, or its customer) and a license key, ordered by
// specificity per §4.5's selection rule.
type LinkedLicenseScope string

const (
	ScopeSpecificTenant LinkedLicenseScope = "tenant"
	ScopeAllCloud       LinkedLicenseScope = "cloud"
	ScopeAll            LinkedLicenseScope = "all"
)

// TenantLicenseLink is a single linked-parent record.
type TenantLicenseLink struct {
	Scope      LinkedLicenseScope
	LicenseKey string
}

// TenantLicenseLinkStore resolves the parent-link chain used by tenant →
// license selection (§4.1, §4.5), grounded on the original's
// LinkedParentsIterator/ParentService pairing.
type TenantLicenseLinkStore interface {
	// LinksForTenant returns the tenant's CUSTODIAN_LICENSES links in
	// specific-tenant-scope → all-cloud-scope → all-scope order.
	LinksForTenant(ctx context.Context, tenantID string) ([]TenantLicenseLink, error)
}

// JobStore persists Job records.
type JobStore interface {
	Create(ctx context.Context, j job.Job) error
	Update(ctx context.Context, j job.Job) error
	Get(ctx context.Context, id string) (job.Job, bool, error)
	GetByNativeID(ctx context.Context, nativeID string) (job.Job, bool, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]job.Job, error)
}

// BatchResultStore persists BatchResult records.
type BatchResultStore interface {
	Create(ctx context.Context, br job.BatchResult) error
	Update(ctx context.Context, br job.BatchResult) error
	Get(ctx context.Context, id string) (job.BatchResult, bool, error)
	// FindByDedupeKey supports the idempotent-creation requirement of §5:
	// BatchResult creation is keyed on (tenant, region, event-hash).
	FindByDedupeKey(ctx context.Context, dedupeKey string) (job.BatchResult, bool, error)
}

// ScheduledJobStore persists ScheduledJob records (cron Trigger Layer, §4.4).
type ScheduledJobStore interface {
	Create(ctx context.Context, sj trigger.ScheduledJob) error
	Update(ctx context.Context, sj trigger.ScheduledJob) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (trigger.ScheduledJob, bool, error)
	ListEnabled(ctx context.Context) ([]trigger.ScheduledJob, error)
}

// ResourceExceptionStore persists ResourceException records.
type ResourceExceptionStore interface {
	Create(ctx context.Context, re trigger.ResourceException) error
	Delete(ctx context.Context, id string) error
	ListByTenant(ctx context.Context, customer, tenantID string, now time.Time) ([]trigger.ResourceException, error)
}
