// Package engineclient implements the worker dispatch contract (§6): handing
// an admitted Job or BatchResult off to the external job-queue runtime
// (an AWS Batch job definition/queue pair in the original) over HTTP,
// grounded on licenseclient's baseClient retry/circuit-breaker shape since
// both clients make the same best-effort outbound call against an external
// system the core has no control over.
package engineclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/platform/resilience"
)

// Config points the client at the worker submission endpoint.
type Config struct {
	SubmitURL      string // POST target; empty disables dispatch
	JobDefinition  string
	JobQueue       string
	CallTimeout    time.Duration
	MaxRetries     int
}

// HTTPEngine posts a Job or BatchResult's dispatch env to SubmitURL,
// satisfying orchestrator.Engine. A submission failure is logged and
// swallowed by the caller (§4.1: "dispatch failure after persistence is
// reported but the Job record stands"), so this client never needs its own
// fallback queue.
type HTTPEngine struct {
	cfg    Config
	http   *http.Client
	retry  resilience.RetryConfig
	cb     *resilience.CircuitBreaker
	logger *logging.Logger
}

// NewHTTPEngine builds a dispatch client. Returns an error only on
// unusable configuration (empty SubmitURL), so callers can decide whether to
// fall back to a NoopEngine.
func NewHTTPEngine(cfg Config, logger *logging.Logger) (*HTTPEngine, error) {
	if cfg.SubmitURL == "" {
		return nil, fmt.Errorf("engineclient: SubmitURL is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	return &HTTPEngine{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.CallTimeout},
		retry:  retry,
		cb:     resilience.New(resilience.DefaultConfig()),
		logger: logger,
	}, nil
}

// dispatchEnv mirrors §6's "required env keys the core sets" for one
// SubmitBatch call against the job-queue runtime.
type dispatchEnv struct {
	JobDefinition      string            `json:"job_definition"`
	JobQueue           string            `json:"job_queue"`
	SubmittedAt        time.Time         `json:"submitted_at"`
	ScheduledJobName   string            `json:"scheduled_job_name,omitempty"`
	TargetRegions      []string          `json:"target_regions"`
	TargetRulesetsView []string          `json:"target_rulesets_view"`
	LicensedRulesets   []string          `json:"licensed_rulesets"`
	AffectedLicenses   []string          `json:"affected_licenses"`
	JobType            string            `json:"job_type"`
	BatchResultIDs     []string          `json:"batch_result_ids,omitempty"`
	TenantName         string            `json:"tenant_name"`
	CredentialsKey     string            `json:"credentials_key"`
}

func (e *HTTPEngine) Submit(ctx context.Context, j job.Job) error {
	return e.post(ctx, dispatchEnv{
		JobDefinition:      e.cfg.JobDefinition,
		JobQueue:           e.cfg.JobQueue,
		SubmittedAt:        j.SubmittedAt,
		TargetRegions:      j.Regions,
		TargetRulesetsView: j.Rulesets.Requested,
		LicensedRulesets:   j.Rulesets.Licensed,
		AffectedLicenses:   j.LicenseKeys,
		JobType:            string(j.ScanType),
		TenantName:         j.Tenant,
		CredentialsKey:     "rule-engine/job-credentials/" + j.ID,
	})
}

func (e *HTTPEngine) SubmitBatch(ctx context.Context, br job.BatchResult) error {
	regions := make([]string, 0, len(br.RegionRules))
	for region := range br.RegionRules {
		regions = append(regions, region)
	}
	return e.post(ctx, dispatchEnv{
		JobDefinition:      e.cfg.JobDefinition,
		JobQueue:           e.cfg.JobQueue,
		SubmittedAt:        br.SubmittedAt,
		TargetRegions:      regions,
		LicensedRulesets:   nil,
		AffectedLicenses:   nil,
		JobType:            "event-driven",
		BatchResultIDs:     []string{br.ID},
		TenantName:         br.Tenant,
		CredentialsKey:     "rule-engine/job-credentials/" + br.ID,
	})
}

func (e *HTTPEngine) post(ctx context.Context, env dispatchEnv) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("engineclient: encode: %w", err)
	}
	return e.cb.Execute(ctx, func() error {
		return resilience.Retry(ctx, e.retry, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.SubmitURL, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := e.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				return fmt.Errorf("engineclient: submit returned status %d", resp.StatusCode)
			}
			return nil
		})
	})
}

// NoopEngine logs every dispatch and otherwise does nothing, used when no
// SubmitURL is configured so the orchestrator still has a collaborator to
// call.
type NoopEngine struct {
	logger *logging.Logger
}

func NewNoopEngine(logger *logging.Logger) *NoopEngine { return &NoopEngine{logger: logger} }

func (n *NoopEngine) Submit(ctx context.Context, j job.Job) error {
	n.logger.WithFields(map[string]interface{}{"job_id": j.ID}).Warn("engine dispatch disabled; job not submitted to a worker runtime")
	return nil
}

func (n *NoopEngine) SubmitBatch(ctx context.Context, br job.BatchResult) error {
	n.logger.WithFields(map[string]interface{}{"batch_result_id": br.ID}).Warn("engine dispatch disabled; batch result not submitted to a worker runtime")
	return nil
}
