package licenseclient

import (
	"context"
	"time"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/platform/logging"
)

// NoopClient stands in for LicenseClient when no License Manager base URL is
// configured or the version-negotiation call at startup failed. It permits
// every tenant (admission proceeds on the license already selected by
// SelectLicense) and logs every accounting call it would otherwise have
// made, so a deployment without a reachable License Manager still starts
// and serves jobs instead of failing closed on every submission.
type NoopClient struct {
	logger *logging.Logger
}

func NewNoopClient(logger *logging.Logger) *NoopClient { return &NoopClient{logger: logger} }

func (n *NoopClient) CheckPermission(ctx context.Context, customer string, tenants []string, licenseKey string) ([]string, error) {
	n.logger.WithFields(map[string]interface{}{"customer": customer}).Warn("license manager not configured; permitting all tenants")
	return tenants, nil
}

func (n *NoopClient) PostJob(ctx context.Context, jobID, customer, tenant string, rulesetMap map[string][]string) error {
	n.logger.WithFields(map[string]interface{}{"job_id": jobID}).Warn("license manager not configured; job accounting skipped")
	return nil
}

func (n *NoopClient) UpdateJob(ctx context.Context, jobID string, created, started, stopped time.Time, status job.Status) error {
	return nil
}

func (n *NoopClient) SyncLicense(ctx context.Context, licenseKey string) error { return nil }

func (n *NoopClient) SetCustomerActivationDate(ctx context.Context, customer string, activatedAt time.Time) error {
	return nil
}
