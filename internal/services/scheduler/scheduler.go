// Package scheduler implements the cron Trigger Layer (§4.4): registering,
// updating, and deregistering recurring scan triggers, grounded on the
// in-memory cache / ticker-loop shape of the teacher's automation.Scheduler.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/epam/rule-engine/internal/domain/trigger"
	svcerrors "github.com/epam/rule-engine/internal/platform/errors"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/storage"
)

// RuleRegistrar is the out-of-scope external-rule collaborator: the actual
// cloud scheduling primitive (an EventBridge rule, a Cloud Scheduler job)
// that fires the worker submission endpoint on the registered cadence.
type RuleRegistrar interface {
	Register(ctx context.Context, sj trigger.ScheduledJob) error
	Update(ctx context.Context, sj trigger.ScheduledJob) error
	Deregister(ctx context.Context, id string) error
}

// parser accepts standard five-field cron expressions, matching the
// expression shape ScheduledJob.Schedule already carries.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler owns the ScheduledJob registration/update/deregistration path.
type Scheduler struct {
	jobs       storage.ScheduledJobStore
	registrar  RuleRegistrar
	logger     *logging.Logger
	newID      func(tenant, name string) string
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithIDGenerator overrides ScheduledJob id derivation (tests only).
func WithIDGenerator(gen func(tenant, name string) string) Option {
	return func(s *Scheduler) { s.newID = gen }
}

func New(jobs storage.ScheduledJobStore, registrar RuleRegistrar, logger *logging.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{jobs: jobs, registrar: registrar, logger: logger, newID: trigger.SanitizeID}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateSchedule reports an INVALID_INPUT error (HTTP 400, with the
// expression under the "schedule" detail) if expr isn't a well-formed
// five-field cron expression. No separate INVALID_SCHEDULE code exists.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return svcerrors.Wrap(svcerrors.CodeInvalidInput, "invalid cron expression", 400, err).
			WithDetails("schedule", expr)
	}
	return nil
}

// RegisterRequest is the caller-supplied input to RegisterJob.
type RegisterRequest struct {
	Tenant   string
	Customer string
	Name     string // human-readable trigger name; combined with Tenant for the stable id
	Schedule string
	Regions  []string
	Rulesets []string
}

// RegisterJob validates the cron expression, persists a new ScheduledJob,
// and registers a one-target external rule pointing at the worker
// submission endpoint (§4.4). External registration failure is tolerated
// and logged: the record stands, matching the Job Orchestrator's
// dispatch-is-best-effort-after-persistence convention.
func (s *Scheduler) RegisterJob(ctx context.Context, req RegisterRequest) (trigger.ScheduledJob, error) {
	if err := ValidateSchedule(req.Schedule); err != nil {
		return trigger.ScheduledJob{}, err
	}

	sj := trigger.ScheduledJob{
		ID:       s.newID(req.Tenant, req.Name),
		Customer: req.Customer,
		Tenant:   req.Tenant,
		Schedule: req.Schedule,
		Regions:  req.Regions,
		Rulesets: req.Rulesets,
		Enabled:  true,
	}

	if existing, ok, err := s.jobs.Get(ctx, sj.ID); err != nil {
		return trigger.ScheduledJob{}, err
	} else if ok {
		return trigger.ScheduledJob{}, svcerrors.Conflict(fmt.Sprintf("scheduled job %q already exists", existing.ID))
	}

	if err := s.jobs.Create(ctx, sj); err != nil {
		return trigger.ScheduledJob{}, err
	}

	if err := s.registrar.Register(ctx, sj); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{"scheduled_job_id": sj.ID}).Warn("external rule registration failed")
	}
	return sj, nil
}

// UpdateRequest carries the optional mutations UpdateJob applies; a nil
// field leaves the corresponding ScheduledJob field unchanged.
type UpdateRequest struct {
	Enabled  *bool
	Schedule *string
}

// UpdateJob mutates the persisted record and the external trigger
// atomically on a best-effort basis (§4.4): the store write happens first;
// if the external update then fails, the store write is reverted so the two
// never drift.
func (s *Scheduler) UpdateJob(ctx context.Context, id string, req UpdateRequest) (trigger.ScheduledJob, error) {
	sj, ok, err := s.jobs.Get(ctx, id)
	if err != nil {
		return trigger.ScheduledJob{}, err
	}
	if !ok {
		return trigger.ScheduledJob{}, svcerrors.NotFound("scheduled_job", id)
	}
	original := sj

	if req.Schedule != nil {
		if err := ValidateSchedule(*req.Schedule); err != nil {
			return trigger.ScheduledJob{}, err
		}
		sj.Schedule = *req.Schedule
	}
	if req.Enabled != nil {
		sj.Enabled = *req.Enabled
	}

	if err := s.jobs.Update(ctx, sj); err != nil {
		return trigger.ScheduledJob{}, err
	}

	if err := s.registrar.Update(ctx, sj); err != nil {
		if revertErr := s.jobs.Update(ctx, original); revertErr != nil {
			s.logger.WithError(revertErr).WithFields(map[string]interface{}{"scheduled_job_id": id}).Error("failed to revert scheduled job after external update failure")
		}
		return trigger.ScheduledJob{}, svcerrors.Wrap(svcerrors.CodeUpstreamUnavailable, "external trigger update failed", 502, err)
	}
	return sj, nil
}

// DeregisterJob removes the external rule-target, then the persisted
// record (§4.4). External removal failure is logged but never blocks the
// record's deletion: an orphaned external rule is reconcilable, a
// un-deletable local record is not.
func (s *Scheduler) DeregisterJob(ctx context.Context, id string) error {
	if _, ok, err := s.jobs.Get(ctx, id); err != nil {
		return err
	} else if !ok {
		return svcerrors.NotFound("scheduled_job", id)
	}

	if err := s.registrar.Deregister(ctx, id); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{"scheduled_job_id": id}).Warn("external rule deregistration failed")
	}
	return s.jobs.Delete(ctx, id)
}
