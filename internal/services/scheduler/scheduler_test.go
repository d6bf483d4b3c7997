package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/epam/rule-engine/internal/platform/errors"
	"github.com/epam/rule-engine/internal/domain/trigger"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/storage/memory"
)

type stubRegistrar struct {
	registered    []string
	updated       []string
	deregistered  []string
	updateErr     error
	deregisterErr error
}

func (f *stubRegistrar) Register(ctx context.Context, sj trigger.ScheduledJob) error {
	f.registered = append(f.registered, sj.ID)
	return nil
}

func (f *stubRegistrar) Update(ctx context.Context, sj trigger.ScheduledJob) error {
	f.updated = append(f.updated, sj.ID)
	return f.updateErr
}

func (f *stubRegistrar) Deregister(ctx context.Context, id string) error {
	f.deregistered = append(f.deregistered, id)
	return f.deregisterErr
}

func newTestScheduler(t *testing.T) (*Scheduler, *memory.ScheduledJobStore, *stubRegistrar) {
	t.Helper()
	jobs := memory.NewScheduledJobStore()
	reg := &stubRegistrar{}
	s := New(jobs, reg, logging.New("scheduler-test", "error", "text"))
	return s, jobs, reg
}

func TestRegisterJobValidatesSchedule(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	_, err := s.RegisterJob(context.Background(), RegisterRequest{
		Tenant: "t-1", Customer: "ACME", Name: "daily", Schedule: "not a cron expr",
	})
	require.Error(t, err)
	assert.Equal(t, svcerrors.CodeInvalidInput, svcerrors.CodeOf(err))
}

func TestRegisterJobPersistsAndRegisters(t *testing.T) {
	s, jobs, reg := newTestScheduler(t)

	sj, err := s.RegisterJob(context.Background(), RegisterRequest{
		Tenant: "t-1", Customer: "ACME", Name: "daily", Schedule: "0 2 * * *", Regions: []string{"eu-central-1"},
	})
	require.NoError(t, err)
	assert.True(t, sj.Enabled)

	stored, ok, err := jobs.Get(context.Background(), sj.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0 2 * * *", stored.Schedule)
	require.Len(t, reg.registered, 1)
}

func TestRegisterJobRejectsDuplicateID(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	req := RegisterRequest{Tenant: "t-1", Customer: "ACME", Name: "daily", Schedule: "0 2 * * *"}

	_, err := s.RegisterJob(context.Background(), req)
	require.NoError(t, err)

	_, err = s.RegisterJob(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, svcerrors.CodeConflict, svcerrors.CodeOf(err))
}

func TestUpdateJobRevertsOnRegistrarFailure(t *testing.T) {
	s, jobs, reg := newTestScheduler(t)

	sj, err := s.RegisterJob(context.Background(), RegisterRequest{Tenant: "t-1", Customer: "ACME", Name: "daily", Schedule: "0 2 * * *"})
	require.NoError(t, err)

	reg.updateErr = assert.AnError
	newSchedule := "0 3 * * *"
	_, err = s.UpdateJob(context.Background(), sj.ID, UpdateRequest{Schedule: &newSchedule})
	require.Error(t, err)

	stored, ok, err := jobs.Get(context.Background(), sj.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0 2 * * *", stored.Schedule, "record must be reverted when the external update fails")
}

func TestUpdateJobRejectsInvalidSchedule(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	sj, err := s.RegisterJob(context.Background(), RegisterRequest{Tenant: "t-1", Customer: "ACME", Name: "daily", Schedule: "0 2 * * *"})
	require.NoError(t, err)

	bad := "garbage"
	_, err = s.UpdateJob(context.Background(), sj.ID, UpdateRequest{Schedule: &bad})
	require.Error(t, err)
	assert.Equal(t, svcerrors.CodeInvalidInput, svcerrors.CodeOf(err))
}

func TestDeregisterJobRemovesRecordEvenIfRegistrarFails(t *testing.T) {
	s, jobs, reg := newTestScheduler(t)

	sj, err := s.RegisterJob(context.Background(), RegisterRequest{Tenant: "t-1", Customer: "ACME", Name: "daily", Schedule: "0 2 * * *"})
	require.NoError(t, err)

	reg.deregisterErr = assert.AnError
	require.NoError(t, s.DeregisterJob(context.Background(), sj.ID))

	_, ok, err := jobs.Get(context.Background(), sj.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeregisterJobUnknownIDIsNotFound(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	err := s.DeregisterJob(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, svcerrors.CodeNotFound, svcerrors.CodeOf(err))
}
