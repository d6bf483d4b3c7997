// Package orchestrator implements the Job Orchestrator (§4.1): admission,
// license accounting, worker dispatch, and lifecycle update.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/domain/license"
	"github.com/epam/rule-engine/internal/domain/rule"
	"github.com/epam/rule-engine/internal/domain/tenant"
	svcerrors "github.com/epam/rule-engine/internal/platform/errors"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/platform/metrics"
	"github.com/epam/rule-engine/internal/platform/system"
	"github.com/epam/rule-engine/internal/services/licenseclient"
	"github.com/epam/rule-engine/internal/storage"
)

// Engine is the out-of-scope policy-engine collaborator: the orchestrator
// hands it a freshly admitted Job (or event-driven BatchResult) and never
// hears back synchronously.
type Engine interface {
	Submit(ctx context.Context, j job.Job) error
	SubmitBatch(ctx context.Context, br job.BatchResult) error
}

// CredentialStore is the out-of-scope temporary-credential collaborator
// referenced by §6: the orchestrator releases a job's scoped credentials
// once it reaches a terminal state.
type CredentialStore interface {
	Release(ctx context.Context, jobID string) error
}

// Orchestrator wires the admission/dispatch/lifecycle-update path together.
type Orchestrator struct {
	tenants    storage.TenantStore
	rulesets   storage.RulesetStore
	jobs       storage.JobStore
	batches    storage.BatchResultStore
	lookup     licenseclient.LicenseLookup
	lm         licenseclient.LicenseClient
	engine     Engine
	creds      CredentialStore
	logger     *logging.Logger
	now        func() time.Time
	newJobID   func() string
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithClock overrides the time source (tests only).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides job id generation (tests only).
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newJobID = gen }
}

// New constructs an Orchestrator from its collaborators.
func New(
	tenants storage.TenantStore,
	rulesets storage.RulesetStore,
	jobs storage.JobStore,
	batches storage.BatchResultStore,
	lookup licenseclient.LicenseLookup,
	lm licenseclient.LicenseClient,
	engine Engine,
	creds CredentialStore,
	logger *logging.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		tenants: tenants, rulesets: rulesets, jobs: jobs, batches: batches,
		lookup: lookup, lm: lm, engine: engine, creds: creds, logger: logger,
		now: time.Now, newJobID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitRequest is the caller-supplied half of SubmitJob's input.
type SubmitRequest struct {
	Tenant     string
	Rulesets   []string // requested ruleset names; empty means "all licensed"
	Regions    []string
	LicenseKey string // optional explicit override of license selection
}

// SubmitJob admits a scan request per §4.1: resolves the applicable license,
// expands rulesets, checks quota, registers the job with the License
// Manager, persists it SUBMITTED, and dispatches it to the Engine.
func (o *Orchestrator) SubmitJob(ctx context.Context, req SubmitRequest) (job.Job, error) {
	start := o.now()
	outcome := "success"
	defer func() {
		metrics.JobsSubmitted.WithLabelValues(outcome).Inc()
		metrics.JobAdmissionDuration.WithLabelValues(outcome).Observe(o.now().Sub(start).Seconds())
	}()

	t, ok, err := o.tenants.Get(ctx, req.Tenant)
	if err != nil {
		outcome = "failure"
		return job.Job{}, err
	}
	if !ok {
		outcome = "failure"
		return job.Job{}, svcerrors.NotFound("tenant", req.Tenant)
	}

	var lic license.License
	if req.LicenseKey != "" {
		lic, err = o.mustGetLicense(ctx, req.LicenseKey)
	} else {
		lic, err = licenseclient.SelectLicense(ctx, o.lookup, t.Customer, t.ID, o.now())
	}
	if err != nil {
		outcome = "failure"
		return job.Job{}, err
	}

	requested, licensed, err := o.expandRulesets(ctx, t, lic, req.Rulesets)
	if err != nil {
		outcome = "failure"
		return job.Job{}, err
	}
	if len(licensed) == 0 {
		outcome = "failure"
		return job.Job{}, svcerrors.New(svcerrors.CodeInvalidInput, "no rulesets remain after license filtering", 400)
	}

	rulesetMap := map[string][]string{"requested": requested, "licensed": licensed}
	jobID := o.newJobID()

	allowed, err := o.lm.CheckPermission(ctx, t.Customer, []string{t.ID}, lic.LicenseKey)
	if err != nil {
		outcome = "failure"
		return job.Job{}, err
	}
	if !contains(allowed, t.ID) {
		outcome = "failure"
		return job.Job{}, svcerrors.QuotaExceeded(t.Customer, t.ID)
	}

	if err := o.lm.PostJob(ctx, jobID, t.Customer, t.ID, rulesetMap); err != nil {
		outcome = "failure"
		return job.Job{}, err
	}

	j := job.Job{
		ID:          jobID,
		Tenant:      t.ID,
		Customer:    t.Customer,
		SubmittedAt: o.now(),
		Status:      job.StatusSubmitted,
		Rulesets:    job.RulesetView{Requested: requested, Licensed: licensed},
		Regions:     req.Regions,
		ScanType:    job.ScanTypeManual,
		LicenseKeys: []string{lic.LicenseKey},
	}
	if err := o.jobs.Create(ctx, j); err != nil {
		outcome = "failure"
		return job.Job{}, err
	}

	if err := o.engine.Submit(ctx, j); err != nil {
		// Dispatch failure after persistence is reported but the Job record
		// stands: the worker runtime's own callback path is authoritative
		// for status from here on (§4.1).
		o.logger.WithError(err).WithFields(map[string]interface{}{"job_id": jobID}).Warn("engine dispatch failed")
	}
	return j, nil
}

// AdmitBatchResult creates (or returns the already-existing) event-driven
// BatchResult for one routed group of vendor events, per §4.4's "hand off
// to §4.1" instruction: idempotent on dedupeKey, license-gated the same way
// as SubmitJob, then dispatched to the Engine.
func (o *Orchestrator) AdmitBatchResult(ctx context.Context, tenantID, customer, cloudIdentifier string, regionRules map[string][]string, dedupeKey string) (job.BatchResult, error) {
	if dedupeKey != "" {
		if existing, ok, err := o.batches.FindByDedupeKey(ctx, dedupeKey); err != nil {
			return job.BatchResult{}, err
		} else if ok {
			return existing, nil
		}
	}

	if _, err := licenseclient.SelectLicense(ctx, o.lookup, customer, tenantID, o.now()); err != nil {
		return job.BatchResult{}, err
	}

	now := o.now()
	br := job.BatchResult{
		ID:              o.newJobID(),
		Tenant:          tenantID,
		Customer:        customer,
		CloudIdentifier: cloudIdentifier,
		WindowStart:     now,
		WindowEnd:       now,
		SubmittedAt:     now,
		Status:          job.StatusSubmitted,
		RegionRules:     regionRules,
		DedupeKey:       dedupeKey,
	}
	if err := o.batches.Create(ctx, br); err != nil {
		return job.BatchResult{}, err
	}
	if err := o.engine.SubmitBatch(ctx, br); err != nil {
		o.logger.WithError(err).WithFields(map[string]interface{}{"batch_result_id": br.ID}).Warn("engine batch dispatch failed")
	}
	return br, nil
}

func (o *Orchestrator) mustGetLicense(ctx context.Context, licenseKey string) (license.License, error) {
	lic, ok, err := o.lookup.GetLicense(ctx, licenseKey)
	if err != nil {
		return license.License{}, err
	}
	if !ok || lic.IsExpired(o.now()) {
		return license.License{}, svcerrors.New(svcerrors.CodeNoLicense, "license not found or expired", 403)
	}
	return lic, nil
}

// expandRulesets resolves the requested ruleset names against the tenant's
// cloud rulesets for the owning customer; an empty request expands to every
// ruleset the license covers.
func (o *Orchestrator) expandRulesets(ctx context.Context, t tenant.Tenant, lic license.License, requested []string) (reqOut, licensedOut []string, err error) {
	// A customer's full ruleset catalog, not a paginated slice, must be
	// considered here: licensing decisions can't silently drop rulesets past
	// a default page size.
	all, err := o.rulesets.ListByCustomer(ctx, t.Customer, system.MaxListLimit)
	if err != nil {
		return nil, nil, err
	}

	covered := make(map[string]rule.Ruleset, len(all))
	for _, rs := range all {
		if rs.Cloud != t.Cloud {
			continue
		}
		if rs.Licensed && !licenseCoversRuleset(lic, rs) {
			continue
		}
		covered[rs.Name] = rs
	}

	if len(requested) == 0 {
		names := make([]string, 0, len(covered))
		for name := range covered {
			names = append(names, name)
		}
		return names, names, nil
	}

	licensedSubset := make([]string, 0, len(requested))
	for _, name := range requested {
		if _, ok := covered[name]; ok {
			licensedSubset = append(licensedSubset, name)
		}
	}
	return requested, licensedSubset, nil
}

func licenseCoversRuleset(lic license.License, rs rule.Ruleset) bool {
	for _, key := range rs.LicenseKeys {
		if key == lic.LicenseKey {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// WorkerEvent is the inbound worker-runtime callback payload consumed by
// UpdateJobFromWorker (§4.1), matching the shape of an Engine status report.
type WorkerEvent struct {
	NativeID      string
	Status        job.Status
	CreatedAt     time.Time
	StartedAt     time.Time
	StoppedAt     time.Time
	JobQueue      string
	JobDefinition string
	Regions       []string
	Rulesets      []string
	// BatchResultIDs, when non-empty, marks this as a multi-account
	// event-driven report: the same status applies to every named
	// BatchResult (§4.1's multi-account variant).
	BatchResultIDs []string
}

// WorkerEnv carries the defensive-path fields used to materialize a Job the
// orchestrator never itself created (a worker-runtime restart racing ahead
// of the SubmitJob write, for example).
type WorkerEnv struct {
	Tenant            string
	Customer          string
	ScheduledRuleName string
	SubmittedAt       time.Time
}

// UpdateJobFromWorker applies a worker-runtime status report (§4.1). If the
// referenced job doesn't exist yet, it's created defensively from env. Field
// updates are idempotent (set-if-empty) except status, which always
// advances per the state machine.
func (o *Orchestrator) UpdateJobFromWorker(ctx context.Context, ev WorkerEvent, env WorkerEnv) error {
	if len(ev.BatchResultIDs) > 0 {
		return o.updateBatchResults(ctx, ev)
	}

	j, ok, err := o.jobs.GetByNativeID(ctx, ev.NativeID)
	if err != nil {
		return err
	}
	if !ok {
		j = job.Job{
			ID:                uuid.NewString(),
			NativeID:          ev.NativeID,
			Tenant:            env.Tenant,
			Customer:          env.Customer,
			ScheduledRuleName: env.ScheduledRuleName,
			SubmittedAt:       env.SubmittedAt,
			Status:            job.StatusSubmitted,
			ScanType:          job.ScanTypeReactive,
		}
	}

	applyIfZero(&j.CreatedAt, ev.CreatedAt)
	applyIfZero(&j.StartedAt, ev.StartedAt)
	applyIfZero(&j.StoppedAt, ev.StoppedAt)
	if j.JobQueue == "" {
		j.JobQueue = ev.JobQueue
	}
	if j.JobDefinition == "" {
		j.JobDefinition = ev.JobDefinition
	}
	if len(j.Regions) == 0 {
		j.Regions = ev.Regions
	}
	if len(j.Rulesets.Requested) == 0 {
		j.Rulesets.Requested = ev.Rulesets
	}

	prevStatus := j.Status
	if j.ApplyStatus(ev.Status) {
		metrics.JobStatusTransitions.WithLabelValues(string(ev.Status)).Inc()
		o.logger.LogJobTransition(ctx, string(prevStatus), string(ev.Status))
	}

	if !ok {
		if err := o.jobs.Create(ctx, j); err != nil {
			return err
		}
	} else if err := o.jobs.Update(ctx, j); err != nil {
		return err
	}

	if j.Status.IsTerminal() {
		if o.creds != nil {
			if err := o.creds.Release(ctx, j.ID); err != nil {
				o.logger.WithError(err).WithFields(map[string]interface{}{"job_id": j.ID}).Warn("credential release failed")
			}
		}
		if len(j.LicenseKeys) > 0 {
			// LM is authoritative for accounting only; unavailability here
			// is tolerated, never fails the job (§4.1 failure semantics).
			if err := o.lm.UpdateJob(ctx, j.ID, j.CreatedAt, j.StartedAt, j.StoppedAt, j.Status); err != nil {
				o.logger.WithError(err).WithFields(map[string]interface{}{"job_id": j.ID}).Warn("license manager update tolerated")
			}
		}
	}
	return nil
}

// updateBatchResults fans a single worker report out across every
// BatchResult named in the event (§4.1's multi-account variant): the same
// status, subject to each BatchResult's own forward-only state machine, is
// applied independently to every named record.
func (o *Orchestrator) updateBatchResults(ctx context.Context, ev WorkerEvent) error {
	for _, id := range ev.BatchResultIDs {
		br, ok, err := o.batches.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !br.ApplyStatus(ev.Status) {
			continue
		}
		applyIfZero(&br.StartedAt, ev.StartedAt)
		applyIfZero(&br.StoppedAt, ev.StoppedAt)
		if err := o.batches.Update(ctx, br); err != nil {
			return fmt.Errorf("update batch result %s: %w", id, err)
		}
	}
	return nil
}

func applyIfZero(field *time.Time, value time.Time) {
	if field.IsZero() && !value.IsZero() {
		*field = value
	}
}
