package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/epam/rule-engine/internal/app"
	"github.com/epam/rule-engine/internal/domain/license"
	"github.com/epam/rule-engine/internal/domain/rule"
	"github.com/epam/rule-engine/internal/domain/tenant"
	"github.com/epam/rule-engine/internal/platform/config"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/storage"
	"github.com/epam/rule-engine/internal/storage/memory"
)

// newTestApplication builds a fully in-memory, fully no-op Application: no
// configured object store, engine, SIEM destination, trigger registrar, or
// License Manager, so wiring it never reaches outside the process. A tenant
// with one active, unrestricted license is seeded so the jobs handler has a
// path to admit through.
func newTestApplication(t *testing.T) *app.Application {
	t.Helper()

	cfg := config.New()
	cfg.ObjectStore.Bucket = ""

	ctx := context.Background()
	mem := memory.NewStores()

	require.NoError(t, mem.Tenant.Create(ctx, tenant.Tenant{
		ID: "t-1", Customer: "ACME", Cloud: tenant.CloudAWS, NativeID: "111111111111", Active: true,
	}))
	require.NoError(t, mem.Ruleset.Create(ctx, rule.Ruleset{
		Customer: "ACME", Name: "aws-full", Version: "1.0", Cloud: tenant.CloudAWS, Licensed: false,
	}))
	require.NoError(t, mem.License.Create(ctx, license.License{
		LicenseKey: "lic-1",
		Customer:   "ACME",
		Expiration: time.Now().Add(24 * time.Hour),
		Customers: map[string]license.CustomerScope{
			"ACME": {AttachmentModel: license.AttachmentProhibited},
		},
	}))
	mem.TenantLicenseLink.SetLinks("t-1", []storage.TenantLicenseLink{
		{Scope: storage.ScopeAll, LicenseKey: "lic-1"},
	})

	application, err := app.New(ctx, cfg, app.Stores{
		Tenant:            mem.Tenant,
		Customer:          mem.Customer,
		Rule:              mem.Rule,
		RuleSource:        mem.RuleSource,
		Ruleset:           mem.Ruleset,
		License:           mem.License,
		TenantLicenseLink: mem.TenantLicenseLink,
		Job:               mem.Job,
		BatchResult:       mem.BatchResult,
		ScheduledJob:      mem.ScheduledJob,
		ResourceException: mem.ResourceException,
	}, logging.New("httpapi-test", "error", "text"))
	require.NoError(t, err)
	return application
}
