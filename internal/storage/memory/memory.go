// Package memory provides in-memory implementations of every interface in
// internal/storage, used by tests and as the default Stores backing when no
// database is configured. Grounded on the teacher's own in-memory fake
// style for collaborator tests (map-plus-mutex structs, no mocking library).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/domain/license"
	"github.com/epam/rule-engine/internal/domain/rule"
	"github.com/epam/rule-engine/internal/domain/tenant"
	"github.com/epam/rule-engine/internal/domain/trigger"
	"github.com/epam/rule-engine/internal/storage"
)

// TenantStore is an in-memory storage.TenantStore.
type TenantStore struct {
	mu   sync.RWMutex
	byID map[string]tenant.Tenant
}

func NewTenantStore() *TenantStore { return &TenantStore{byID: make(map[string]tenant.Tenant)} }

func (s *TenantStore) Create(_ context.Context, t tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[t.ID] = t
	return nil
}

func (s *TenantStore) Get(_ context.Context, id string) (tenant.Tenant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	return t, ok, nil
}

func (s *TenantStore) Update(_ context.Context, t tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[t.ID] = t
	return nil
}

func (s *TenantStore) List(_ context.Context, customer string, limit int) ([]tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tenant.Tenant
	for _, t := range s.byID {
		if customer == "" || t.Customer == customer {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return clampTenants(out, limit), nil
}

func (s *TenantStore) GetByNativeID(_ context.Context, cloud tenant.Cloud, nativeID string) (tenant.Tenant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.byID {
		if t.Cloud == cloud && t.NativeID == nativeID {
			return t, true, nil
		}
	}
	return tenant.Tenant{}, false, nil
}

func clampTenants(in []tenant.Tenant, limit int) []tenant.Tenant {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

// CustomerStore is an in-memory storage.CustomerStore.
type CustomerStore struct {
	mu     sync.RWMutex
	byName map[string]tenant.Customer
}

func NewCustomerStore() *CustomerStore {
	return &CustomerStore{byName: make(map[string]tenant.Customer)}
}

func (s *CustomerStore) Create(_ context.Context, c tenant.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[c.Name] = c
	return nil
}

func (s *CustomerStore) Get(_ context.Context, name string) (tenant.Customer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byName[name]
	return c, ok, nil
}

func (s *CustomerStore) List(_ context.Context, limit int) ([]tenant.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tenant.Customer
	for _, c := range s.byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type ruleKey struct{ name, ruleSourceID string }

// RuleStore is an in-memory storage.RuleStore.
type RuleStore struct {
	mu   sync.RWMutex
	data map[ruleKey]rule.Rule
}

func NewRuleStore() *RuleStore { return &RuleStore{data: make(map[ruleKey]rule.Rule)} }

func (s *RuleStore) Upsert(_ context.Context, r rule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[ruleKey{r.Name, r.RuleSourceID}] = r
	return nil
}

func (s *RuleStore) Delete(_ context.Context, name, ruleSourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, ruleKey{name, ruleSourceID})
	return nil
}

func (s *RuleStore) Get(_ context.Context, name, ruleSourceID string) (rule.Rule, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[ruleKey{name, ruleSourceID}]
	return r, ok, nil
}

func (s *RuleStore) ListByRuleSource(_ context.Context, ruleSourceID string) ([]rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rule.Rule
	for k, r := range s.data {
		if k.ruleSourceID == ruleSourceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RuleSourceStore is an in-memory storage.RuleSourceStore.
type RuleSourceStore struct {
	mu   sync.RWMutex
	byID map[string]rule.RuleSource
}

func NewRuleSourceStore() *RuleSourceStore {
	return &RuleSourceStore{byID: make(map[string]rule.RuleSource)}
}

func (s *RuleSourceStore) Create(_ context.Context, rs rule.RuleSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[rs.ID] = rs
	return nil
}

func (s *RuleSourceStore) Update(_ context.Context, rs rule.RuleSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[rs.ID] = rs
	return nil
}

func (s *RuleSourceStore) Get(_ context.Context, id string) (rule.RuleSource, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.byID[id]
	return rs, ok, nil
}

func (s *RuleSourceStore) ListByCustomer(_ context.Context, customer string, limit int) ([]rule.RuleSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rule.RuleSource
	for _, rs := range s.byID {
		if rs.Customer == customer {
			out = append(out, rs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type rulesetKey struct{ customer, name, version string }

// RulesetStore is an in-memory storage.RulesetStore.
type RulesetStore struct {
	mu       sync.RWMutex
	data     map[rulesetKey]rule.Ruleset
	byLMID   map[string]rulesetKey
}

func NewRulesetStore() *RulesetStore {
	return &RulesetStore{data: make(map[rulesetKey]rule.Ruleset), byLMID: make(map[string]rulesetKey)}
}

func (s *RulesetStore) Create(_ context.Context, rs rule.Ruleset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rulesetKey{rs.Customer, rs.Name, rs.Version}
	s.data[key] = rs
	return nil
}

func (s *RulesetStore) Get(_ context.Context, customer, name, version string) (rule.Ruleset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.data[rulesetKey{customer, name, version}]
	return rs, ok, nil
}

func (s *RulesetStore) ByLicenseManagerID(_ context.Context, id string) (rule.Ruleset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byLMID[id]
	if !ok {
		return rule.Ruleset{}, false, nil
	}
	rs, ok := s.data[key]
	return rs, ok, nil
}

func (s *RulesetStore) Update(_ context.Context, rs rule.Ruleset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rulesetKey{rs.Customer, rs.Name, rs.Version}] = rs
	return nil
}

func (s *RulesetStore) Delete(_ context.Context, customer, name, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, rulesetKey{customer, name, version})
	return nil
}

func (s *RulesetStore) ListByCustomer(_ context.Context, customer string, limit int) ([]rule.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rule.Ruleset
	for k, rs := range s.data {
		if k.customer == customer {
			out = append(out, rs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LicenseStore is an in-memory storage.LicenseStore.
type LicenseStore struct {
	mu   sync.RWMutex
	byKey map[string]license.License
}

func NewLicenseStore() *LicenseStore {
	return &LicenseStore{byKey: make(map[string]license.License)}
}

func (s *LicenseStore) Create(_ context.Context, l license.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[l.LicenseKey] = l
	return nil
}

func (s *LicenseStore) Update(_ context.Context, l license.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[l.LicenseKey] = l
	return nil
}

func (s *LicenseStore) Delete(_ context.Context, licenseKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, licenseKey)
	return nil
}

func (s *LicenseStore) Get(_ context.Context, licenseKey string) (license.License, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byKey[licenseKey]
	return l, ok, nil
}

func (s *LicenseStore) ListByCustomer(_ context.Context, customer string) ([]license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []license.License
	for _, l := range s.byKey {
		if _, ok := l.Customers[customer]; ok {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LicenseKey < out[j].LicenseKey })
	return out, nil
}

func (s *LicenseStore) ListEventDriven(_ context.Context) ([]license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []license.License
	for _, l := range s.byKey {
		if l.EventDriven.Active {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LicenseKey < out[j].LicenseKey })
	return out, nil
}

// TenantLicenseLinkStore is an in-memory storage.TenantLicenseLinkStore.
type TenantLicenseLinkStore struct {
	mu    sync.RWMutex
	links map[string][]storage.TenantLicenseLink
}

func NewTenantLicenseLinkStore() *TenantLicenseLinkStore {
	return &TenantLicenseLinkStore{links: make(map[string][]storage.TenantLicenseLink)}
}

// SetLinks is a test/seed helper, not part of the storage.TenantLicenseLinkStore contract.
func (s *TenantLicenseLinkStore) SetLinks(tenantID string, links []storage.TenantLicenseLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[tenantID] = links
}

func (s *TenantLicenseLinkStore) LinksForTenant(_ context.Context, tenantID string) ([]storage.TenantLicenseLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.links[tenantID], nil
}

// JobStore is an in-memory storage.JobStore.
type JobStore struct {
	mu         sync.RWMutex
	byID       map[string]job.Job
	byNativeID map[string]string
}

func NewJobStore() *JobStore {
	return &JobStore{byID: make(map[string]job.Job), byNativeID: make(map[string]string)}
}

func (s *JobStore) Create(_ context.Context, j job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[j.ID] = j
	if j.NativeID != "" {
		s.byNativeID[j.NativeID] = j.ID
	}
	return nil
}

func (s *JobStore) Update(_ context.Context, j job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[j.ID] = j
	if j.NativeID != "" {
		s.byNativeID[j.NativeID] = j.ID
	}
	return nil
}

func (s *JobStore) Get(_ context.Context, id string) (job.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byID[id]
	return j, ok, nil
}

func (s *JobStore) GetByNativeID(_ context.Context, nativeID string) (job.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNativeID[nativeID]
	if !ok {
		return job.Job{}, false, nil
	}
	j, ok := s.byID[id]
	return j, ok, nil
}

func (s *JobStore) ListByTenant(_ context.Context, tenantID string, limit int) ([]job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []job.Job
	for _, j := range s.byID {
		if j.Tenant == tenantID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// BatchResultStore is an in-memory storage.BatchResultStore.
type BatchResultStore struct {
	mu          sync.RWMutex
	byID        map[string]job.BatchResult
	byDedupeKey map[string]string
}

func NewBatchResultStore() *BatchResultStore {
	return &BatchResultStore{byID: make(map[string]job.BatchResult), byDedupeKey: make(map[string]string)}
}

func (s *BatchResultStore) Create(_ context.Context, br job.BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[br.ID] = br
	if br.DedupeKey != "" {
		s.byDedupeKey[br.DedupeKey] = br.ID
	}
	return nil
}

func (s *BatchResultStore) Update(_ context.Context, br job.BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[br.ID] = br
	return nil
}

func (s *BatchResultStore) Get(_ context.Context, id string) (job.BatchResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	br, ok := s.byID[id]
	return br, ok, nil
}

func (s *BatchResultStore) FindByDedupeKey(_ context.Context, dedupeKey string) (job.BatchResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDedupeKey[dedupeKey]
	if !ok {
		return job.BatchResult{}, false, nil
	}
	br, ok := s.byID[id]
	return br, ok, nil
}

// ScheduledJobStore is an in-memory storage.ScheduledJobStore.
type ScheduledJobStore struct {
	mu   sync.RWMutex
	byID map[string]trigger.ScheduledJob
}

func NewScheduledJobStore() *ScheduledJobStore {
	return &ScheduledJobStore{byID: make(map[string]trigger.ScheduledJob)}
}

func (s *ScheduledJobStore) Create(_ context.Context, sj trigger.ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sj.ID] = sj
	return nil
}

func (s *ScheduledJobStore) Update(_ context.Context, sj trigger.ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sj.ID] = sj
	return nil
}

func (s *ScheduledJobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *ScheduledJobStore) Get(_ context.Context, id string) (trigger.ScheduledJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sj, ok := s.byID[id]
	return sj, ok, nil
}

func (s *ScheduledJobStore) ListEnabled(_ context.Context) ([]trigger.ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []trigger.ScheduledJob
	for _, sj := range s.byID {
		if sj.Enabled {
			out = append(out, sj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ResourceExceptionStore is an in-memory storage.ResourceExceptionStore.
type ResourceExceptionStore struct {
	mu   sync.RWMutex
	byID map[string]trigger.ResourceException
}

func NewResourceExceptionStore() *ResourceExceptionStore {
	return &ResourceExceptionStore{byID: make(map[string]trigger.ResourceException)}
}

func (s *ResourceExceptionStore) Create(_ context.Context, re trigger.ResourceException) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[re.ID] = re
	return nil
}

func (s *ResourceExceptionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *ResourceExceptionStore) ListByTenant(_ context.Context, customer, tenantID string, now time.Time) ([]trigger.ResourceException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []trigger.ResourceException
	for _, re := range s.byID {
		if re.Customer == customer && re.Tenant == tenantID && !re.IsExpired(now) {
			out = append(out, re)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Stores bundles one in-memory instance of every store, satisfying
// whatever aggregate interface internal/app wires against.
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

// NewStores constructs a full in-memory Stores bundle.
func NewStores() *Stores {
	return &Stores{
		Tenant:            NewTenantStore(),
		Customer:          NewCustomerStore(),
		Rule:              NewRuleStore(),
		RuleSource:        NewRuleSourceStore(),
		Ruleset:           NewRulesetStore(),
		License:           NewLicenseStore(),
		TenantLicenseLink: NewTenantLicenseLinkStore(),
		Job:               NewJobStore(),
		BatchResult:       NewBatchResultStore(),
		ScheduledJob:      NewScheduledJobStore(),
		ResourceException: NewResourceExceptionStore(),
	}
}

var (
	_ storage.TenantStore             = (*TenantStore)(nil)
	_ storage.CustomerStore           = (*CustomerStore)(nil)
	_ storage.RuleStore               = (*RuleStore)(nil)
	_ storage.RuleSourceStore         = (*RuleSourceStore)(nil)
	_ storage.RulesetStore            = (*RulesetStore)(nil)
	_ storage.LicenseStore            = (*LicenseStore)(nil)
	_ storage.TenantLicenseLinkStore  = (*TenantLicenseLinkStore)(nil)
	_ storage.JobStore                = (*JobStore)(nil)
	_ storage.BatchResultStore        = (*BatchResultStore)(nil)
	_ storage.ScheduledJobStore       = (*ScheduledJobStore)(nil)
	_ storage.ResourceExceptionStore  = (*ResourceExceptionStore)(nil)
)
