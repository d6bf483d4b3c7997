package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/epam/rule-engine/internal/domain/trigger"
	"github.com/epam/rule-engine/internal/platform/logging"
)

// HTTPRuleRegistrar mirrors each ScheduledJob mutation to an external cron
// primitive (an EventBridge rule, a Cloud Scheduler job) fronted by a single
// admin HTTP endpoint, the same call shape every other external collaborator
// in this module uses.
type HTTPRuleRegistrar struct {
	baseURL string
	http    *http.Client
}

func NewHTTPRuleRegistrar(baseURL string) *HTTPRuleRegistrar {
	return &HTTPRuleRegistrar{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (r *HTTPRuleRegistrar) Register(ctx context.Context, sj trigger.ScheduledJob) error {
	return r.call(ctx, http.MethodPut, sj.ID, sj)
}

func (r *HTTPRuleRegistrar) Update(ctx context.Context, sj trigger.ScheduledJob) error {
	return r.call(ctx, http.MethodPut, sj.ID, sj)
}

func (r *HTTPRuleRegistrar) Deregister(ctx context.Context, id string) error {
	return r.call(ctx, http.MethodDelete, id, nil)
}

func (r *HTTPRuleRegistrar) call(ctx context.Context, method, id string, payload any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("scheduler: encode rule %s: %w", id, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+"/rules/"+id, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("scheduler: registrar returned status %d for %s", resp.StatusCode, id)
	}
	return nil
}

// NoopRuleRegistrar logs every mutation without calling out anywhere, used
// when no external trigger system endpoint is configured.
type NoopRuleRegistrar struct {
	logger *logging.Logger
}

func NewNoopRuleRegistrar(logger *logging.Logger) *NoopRuleRegistrar {
	return &NoopRuleRegistrar{logger: logger}
}

func (n *NoopRuleRegistrar) Register(ctx context.Context, sj trigger.ScheduledJob) error {
	n.logger.WithFields(map[string]interface{}{"id": sj.ID}).Warn("trigger registrar not configured; scheduled job not mirrored externally")
	return nil
}

func (n *NoopRuleRegistrar) Update(ctx context.Context, sj trigger.ScheduledJob) error {
	n.logger.WithFields(map[string]interface{}{"id": sj.ID}).Warn("trigger registrar not configured; scheduled job update not mirrored externally")
	return nil
}

func (n *NoopRuleRegistrar) Deregister(ctx context.Context, id string) error {
	n.logger.WithFields(map[string]interface{}{"id": id}).Warn("trigger registrar not configured; scheduled job deregistration not mirrored externally")
	return nil
}
