package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/domain/tenant"
	"github.com/epam/rule-engine/internal/domain/trigger"
)

func scheduledJobFixture(id string, enabled bool) trigger.ScheduledJob {
	return trigger.ScheduledJob{ID: id, Customer: "epam", Tenant: "t-1", Schedule: "0 * * * *", Enabled: enabled}
}

func TestTenantStoreCreateThenGet(t *testing.T) {
	s := NewTenantStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, tenant.Tenant{ID: "t-1", Customer: "epam"}))

	got, ok, err := s.Get(ctx, "t-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "epam", got.Customer)
}

func TestJobStoreGetByNativeIDResolvesThroughIndex(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, job.Job{ID: "j-1", NativeID: "native-1", Status: job.StatusSubmitted}))

	got, ok, err := s.GetByNativeID(ctx, "native-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "j-1", got.ID)
}

func TestBatchResultStoreFindByDedupeKeyIsIdempotentLookup(t *testing.T) {
	s := NewBatchResultStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, job.BatchResult{ID: "br-1", DedupeKey: "T|us-east-1|hash1"}))

	got, ok, err := s.FindByDedupeKey(ctx, "T|us-east-1|hash1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "br-1", got.ID)

	_, ok, err = s.FindByDedupeKey(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduledJobStoreListEnabledExcludesDisabled(t *testing.T) {
	s := NewScheduledJobStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, scheduledJobFixture("sj-1", true)))
	require.NoError(t, s.Create(ctx, scheduledJobFixture("sj-2", false)))

	enabled, err := s.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "sj-1", enabled[0].ID)
}
