package eventrouter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/domain/tenant"
	"github.com/epam/rule-engine/internal/domain/trigger"
	"github.com/epam/rule-engine/internal/platform/logging"
)

type fakeTenants struct {
	byNative map[string]tenant.Tenant
}

func (f *fakeTenants) GetByNativeID(ctx context.Context, cloud tenant.Cloud, nativeID string) (tenant.Tenant, bool, error) {
	t, ok := f.byNative[string(cloud)+"|"+nativeID]
	return t, ok, nil
}

type admittedCall struct {
	tenantID, customer, cloudIdentifier string
	regionRules                         map[string][]string
	dedupeKey                           string
}

type fakeEngine struct {
	calls []admittedCall
}

func (f *fakeEngine) AdmitBatchResult(ctx context.Context, tenantID, customer, cloudIdentifier string, regionRules map[string][]string, dedupeKey string) (job.BatchResult, error) {
	f.calls = append(f.calls, admittedCall{tenantID, customer, cloudIdentifier, regionRules, dedupeKey})
	return job.BatchResult{ID: "br-" + tenantID, Tenant: tenantID, Customer: customer, CloudIdentifier: cloudIdentifier, RegionRules: regionRules, DedupeKey: dedupeKey}, nil
}

func newTestRouter(tenants *fakeTenants, engine *fakeEngine, selfID string) *Router {
	mappings := Mappings{
		CloudTrail: CloudTrailMapping{
			"ec2.amazonaws.com": {
				"RunInstances": {"ec2-public-access"},
			},
		},
		MaestroActions: map[string]MaestroActionMapping{
			"AZURE": {
				"INSTANCE": {
					"create": {{EventSource: "Microsoft.Compute", EventName: "virtualMachines/write"}},
				},
			},
		},
		CloudEvents: map[string]CloudTrailMapping{
			"AZURE": {
				"Microsoft.Compute": {
					"virtualMachines/write": {"azure-vm-public-ip"},
				},
			},
		},
	}
	return New(mappings, tenants, engine, selfID, logging.New("eventrouter-test", "error", "text"))
}

func TestRouteCloudTrailGroupsByTenantAndRegion(t *testing.T) {
	tenants := &fakeTenants{byNative: map[string]tenant.Tenant{
		"AWS|111111111111": {ID: "t-1", Customer: "ACME", Cloud: tenant.CloudAWS, NativeID: "111111111111"},
	}}
	engine := &fakeEngine{}
	r := newTestRouter(tenants, engine, "999999999999")

	events := []trigger.CloudTrailEvent{
		{Account: "111111111111", Region: "eu-central-1", Source: "ec2.amazonaws.com", EventName: "RunInstances", RawHash: "h1"},
		{Account: "111111111111", Region: "eu-central-1", Source: "ec2.amazonaws.com", EventName: "RunInstances", RawHash: "h1"}, // duplicate, same hash
		{Account: "999999999999", Region: "eu-central-1", Source: "ec2.amazonaws.com", EventName: "RunInstances", RawHash: "h2"}, // self-account
		{Account: "222222222222", Region: "eu-central-1", Source: "ec2.amazonaws.com", EventName: "RunInstances", RawHash: "h3"}, // unknown tenant
	}

	results, err := r.RouteCloudTrail(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "t-1", results[0].Tenant)
	assert.Equal(t, "ACME", results[0].Customer)
	assert.Equal(t, []string{"ec2-public-access"}, results[0].RegionRules["eu-central-1"])
	require.Len(t, engine.calls, 1)
}

func TestRouteCloudTrailDropsUnroutedEvents(t *testing.T) {
	tenants := &fakeTenants{byNative: map[string]tenant.Tenant{}}
	engine := &fakeEngine{}
	r := newTestRouter(tenants, engine, "999999999999")

	events := []trigger.CloudTrailEvent{
		{Account: "111111111111", Region: "eu-central-1", Source: "s3.amazonaws.com", EventName: "PutBucketAcl", RawHash: "h1"}, // no rule mapping
		{Account: "", Region: "eu-central-1", Source: "ec2.amazonaws.com", EventName: "RunInstances", RawHash: "h2"},           // no account
	}

	results, err := r.RouteCloudTrail(context.Background(), events)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, engine.calls)
}

func TestRouteMaestroResolvesThroughActionIndirection(t *testing.T) {
	tenants := &fakeTenants{byNative: map[string]tenant.Tenant{
		"AZURE|sub-1": {ID: "t-az", Customer: "ACME", Cloud: tenant.CloudAzure, NativeID: "sub-1"},
	}}
	engine := &fakeEngine{}
	r := newTestRouter(tenants, engine, "")

	events := []trigger.MaestroEvent{
		{
			Cloud: "AZURE", TenantName: "sub-1", Region: "westeurope",
			Group: "MANAGEMENT", SubGroup: "INSTANCE", Action: "create",
			RawHash: "m1",
		},
	}

	results, err := r.RouteMaestro(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "t-az", results[0].Tenant)
	assert.Equal(t, []string{"azure-vm-public-ip"}, results[0].RegionRules["westeurope"])
}

func TestRouteMaestroFiltersNonManagementInstanceGroups(t *testing.T) {
	tenants := &fakeTenants{byNative: map[string]tenant.Tenant{
		"AZURE|sub-1": {ID: "t-az", Customer: "ACME", Cloud: tenant.CloudAzure, NativeID: "sub-1"},
	}}
	engine := &fakeEngine{}
	r := newTestRouter(tenants, engine, "")

	events := []trigger.MaestroEvent{
		{Cloud: "AZURE", TenantName: "sub-1", Region: "westeurope", Group: "AUDIT", SubGroup: "INSTANCE", Action: "create", RawHash: "m1"},
		{Cloud: "AWS", TenantName: "sub-1", Region: "westeurope", Group: "MANAGEMENT", SubGroup: "INSTANCE", Action: "create", RawHash: "m2"},
	}

	results, err := r.RouteMaestro(context.Background(), events)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAdmitGroupsIsDeterministicallyOrdered(t *testing.T) {
	tenants := &fakeTenants{byNative: map[string]tenant.Tenant{
		"AWS|111111111111": {ID: "t-1", Customer: "ACME", Cloud: tenant.CloudAWS, NativeID: "111111111111"},
		"AWS|222222222222": {ID: "t-2", Customer: "ACME", Cloud: tenant.CloudAWS, NativeID: "222222222222"},
	}}
	engine := &fakeEngine{}
	r := newTestRouter(tenants, engine, "")

	events := []trigger.CloudTrailEvent{
		{Account: "222222222222", Region: "eu-central-1", Source: "ec2.amazonaws.com", EventName: "RunInstances", RawHash: "h2"},
		{Account: "111111111111", Region: "eu-central-1", Source: "ec2.amazonaws.com", EventName: "RunInstances", RawHash: "h1"},
	}

	results, err := r.RouteCloudTrail(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "t-1", results[0].Tenant)
	assert.Equal(t, "t-2", results[1].Tenant)
}
