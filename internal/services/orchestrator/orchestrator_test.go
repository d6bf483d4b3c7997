package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/domain/license"
	"github.com/epam/rule-engine/internal/domain/rule"
	"github.com/epam/rule-engine/internal/domain/tenant"
	svcerrors "github.com/epam/rule-engine/internal/platform/errors"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/services/licenseclient"
	"github.com/epam/rule-engine/internal/storage"
	"github.com/epam/rule-engine/internal/storage/memory"
)

type fakeLicenseClient struct {
	allowed    []string
	postErr    error
	updateErr  error
	postCalls  []string
	updateJobs []string
}

func (f *fakeLicenseClient) CheckPermission(ctx context.Context, customer string, tenants []string, licenseKey string) ([]string, error) {
	if f.allowed != nil {
		return f.allowed, nil
	}
	return tenants, nil
}

func (f *fakeLicenseClient) PostJob(ctx context.Context, jobID, customer, tenant string, rulesetMap map[string][]string) error {
	f.postCalls = append(f.postCalls, jobID)
	return f.postErr
}

func (f *fakeLicenseClient) UpdateJob(ctx context.Context, jobID string, created, started, stopped time.Time, status job.Status) error {
	f.updateJobs = append(f.updateJobs, jobID)
	return f.updateErr
}

type fakeEngine struct {
	submitted      []job.Job
	submittedBatch []job.BatchResult
	submitErr      error
}

func (f *fakeEngine) Submit(ctx context.Context, j job.Job) error {
	f.submitted = append(f.submitted, j)
	return f.submitErr
}

func (f *fakeEngine) SubmitBatch(ctx context.Context, br job.BatchResult) error {
	f.submittedBatch = append(f.submittedBatch, br)
	return f.submitErr
}

type fakeCreds struct {
	released []string
}

func (f *fakeCreds) Release(ctx context.Context, jobID string) error {
	f.released = append(f.released, jobID)
	return nil
}

const testTenant = "t-1"
const testCustomer = "ACME"
const testLicense = "lic-1"

func newTestOrchestrator(t *testing.T) (*Orchestrator, *memory.JobStore, *memory.BatchResultStore, *fakeEngine, *fakeCreds) {
	t.Helper()
	tenants := memory.NewTenantStore()
	require.NoError(t, tenants.Create(context.Background(), tenant.Tenant{
		ID: testTenant, Customer: testCustomer, Cloud: tenant.CloudAWS, NativeID: "111111111111", Active: true,
	}))

	rulesets := memory.NewRulesetStore()
	require.NoError(t, rulesets.Create(context.Background(), rule.Ruleset{
		Name: "full-coverage", Version: "1.0", Cloud: tenant.CloudAWS, Customer: testCustomer,
		Licensed: true, LicenseKeys: []string{testLicense},
	}))

	licenses := memory.NewLicenseStore()
	require.NoError(t, licenses.Create(context.Background(), license.License{
		LicenseKey: testLicense, Customer: testCustomer, Expiration: time.Now().Add(24 * time.Hour),
		Customers: map[string]license.CustomerScope{
			testCustomer: {AttachmentModel: license.AttachmentPermitted},
		},
	}))

	links := memory.NewTenantLicenseLinkStore()
	links.SetLinks(testTenant, []storage.TenantLicenseLink{
		{Scope: storage.ScopeSpecificTenant, LicenseKey: testLicense},
	})

	jobs := memory.NewJobStore()
	batches := memory.NewBatchResultStore()
	engine := &fakeEngine{}
	creds := &fakeCreds{}
	lm := &fakeLicenseClient{}
	lookup := licenseclient.StoreLookup{Links: links, Licenses: licenses}

	o := New(tenants, rulesets, jobs, batches, lookup, lm, engine, creds, logging.New("orchestrator-test", "error", "text"),
		WithIDGenerator(func() string { return "job-fixed" }))
	return o, jobs, batches, engine, creds
}

func TestSubmitJobAdmitsAndDispatches(t *testing.T) {
	o, jobs, _, engine, _ := newTestOrchestrator(t)

	j, err := o.SubmitJob(context.Background(), SubmitRequest{Tenant: testTenant, Regions: []string{"eu-central-1"}})
	require.NoError(t, err)
	assert.Equal(t, job.StatusSubmitted, j.Status)
	assert.Equal(t, []string{"full-coverage"}, j.Rulesets.Licensed)

	stored, ok, err := jobs.Get(context.Background(), j.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, j.ID, stored.ID)
	require.Len(t, engine.submitted, 1)
}

func TestSubmitJobRejectsUnknownTenant(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t)

	_, err := o.SubmitJob(context.Background(), SubmitRequest{Tenant: "missing"})
	require.Error(t, err)
	assert.Equal(t, svcerrors.CodeNotFound, svcerrors.CodeOf(err))
}

func TestSubmitJobTolerateEngineDispatchFailure(t *testing.T) {
	o, jobs, _, engine, _ := newTestOrchestrator(t)
	engine.submitErr = assert.AnError

	j, err := o.SubmitJob(context.Background(), SubmitRequest{Tenant: testTenant})
	require.NoError(t, err)

	stored, ok, err := jobs.Get(context.Background(), j.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, job.StatusSubmitted, stored.Status)
}

func TestUpdateJobFromWorkerCreatesDefensivelyOnMiss(t *testing.T) {
	o, jobs, _, _, _ := newTestOrchestrator(t)

	err := o.UpdateJobFromWorker(context.Background(), WorkerEvent{
		NativeID: "native-1",
		Status:   job.StatusRunning,
	}, WorkerEnv{Tenant: testTenant, Customer: testCustomer, SubmittedAt: time.Now()})
	require.NoError(t, err)

	stored, ok, err := jobs.GetByNativeID(context.Background(), "native-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, job.StatusRunning, stored.Status)
}

func TestUpdateJobFromWorkerReleasesCredentialsOnTerminalStatus(t *testing.T) {
	o, jobs, _, _, creds := newTestOrchestrator(t)

	j, err := o.SubmitJob(context.Background(), SubmitRequest{Tenant: testTenant})
	require.NoError(t, err)
	j.NativeID = "native-2"
	require.NoError(t, jobs.Update(context.Background(), j))

	err = o.UpdateJobFromWorker(context.Background(), WorkerEvent{
		NativeID: "native-2",
		Status:   job.StatusSucceeded,
	}, WorkerEnv{})
	require.NoError(t, err)

	require.Len(t, creds.released, 1)
	assert.Equal(t, j.ID, creds.released[0])
}

func TestUpdateJobFromWorkerIgnoresBackwardTransition(t *testing.T) {
	o, jobs, _, _, _ := newTestOrchestrator(t)

	err := o.UpdateJobFromWorker(context.Background(), WorkerEvent{NativeID: "native-3", Status: job.StatusSucceeded}, WorkerEnv{Tenant: testTenant, Customer: testCustomer})
	require.NoError(t, err)

	err = o.UpdateJobFromWorker(context.Background(), WorkerEvent{NativeID: "native-3", Status: job.StatusRunning}, WorkerEnv{})
	require.NoError(t, err)

	stored, ok, err := jobs.GetByNativeID(context.Background(), "native-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, job.StatusSucceeded, stored.Status)
}

func TestAdmitBatchResultIsIdempotentOnDedupeKey(t *testing.T) {
	o, _, batches, engine, _ := newTestOrchestrator(t)

	regionRules := map[string][]string{"eu-central-1": {"ec2-public-access"}}
	first, err := o.AdmitBatchResult(context.Background(), testTenant, testCustomer, "111111111111", regionRules, "dedupe-1")
	require.NoError(t, err)

	second, err := o.AdmitBatchResult(context.Background(), testTenant, testCustomer, "111111111111", regionRules, "dedupe-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.Len(t, engine.submittedBatch, 1)

	stored, ok, err := batches.FindByDedupeKey(context.Background(), "dedupe-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, stored.ID)
}
