package siem

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/epam/rule-engine/internal/platform/logging"
)

// HTTPDestination posts each batch as-is to a configured collector endpoint
// (a DefectDojo import URL, a Chronicle ingestion endpoint, a webhook in
// front of an S3-backed Cloud Custodian Scan bucket). Auth is a single
// bearer token, matching every other external collaborator in this module.
type HTTPDestination struct {
	name        string
	url         string
	bearerToken string
	http        *http.Client
}

func NewHTTPDestination(name, url, bearerToken string) *HTTPDestination {
	return &HTTPDestination{name: name, url: url, bearerToken: bearerToken, http: &http.Client{Timeout: 30 * time.Second}}
}

func (d *HTTPDestination) Name() string { return d.name }

func (d *HTTPDestination) Push(ctx context.Context, batch []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(batch))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.bearerToken)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("siem: destination %s returned status %d", d.name, resp.StatusCode)
	}
	return nil
}

// NoopDestination logs every batch and reports success, used when no
// destination is configured so a Pusher still has a collaborator to call.
type NoopDestination struct {
	logger *logging.Logger
}

func NewNoopDestination(logger *logging.Logger) *NoopDestination { return &NoopDestination{logger: logger} }

func (n *NoopDestination) Name() string { return "noop" }

func (n *NoopDestination) Push(ctx context.Context, batch []byte) error {
	n.logger.WithFields(map[string]interface{}{"bytes": len(batch)}).Warn("siem destination not configured; batch dropped")
	return nil
}
