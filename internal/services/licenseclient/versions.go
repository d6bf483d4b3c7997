package licenseclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/domain/rule"
	svcerrors "github.com/epam/rule-engine/internal/platform/errors"
	"github.com/epam/rule-engine/internal/platform/logging"
)

// LicenseClient is the capability surface every version-gated variant
// implements. CheckPermission always accepts a tenant list and returns the
// allowed subset; the <2.7 variant emulates the batch shape by looping a
// single-tenant call per entry so callers never branch on LM version.
type LicenseClient interface {
	CheckPermission(ctx context.Context, customer string, tenants []string, licenseKey string) ([]string, error)
	PostJob(ctx context.Context, jobID, customer, tenant string, rulesetMap map[string][]string) error
	UpdateJob(ctx context.Context, jobID string, created, started, stopped time.Time, status job.Status) error
	SyncLicense(ctx context.Context, licenseKey string) error
	SetCustomerActivationDate(ctx context.Context, customer string, activatedAt time.Time) error
}

// RulesetPublisher is the >=3.0-only capability to publish a Ruleset to the
// License Manager's registry.
type RulesetPublisher interface {
	PublishRuleset(ctx context.Context, rs rule.Ruleset) error
}

// clientV1 targets License Manager versions older than 2.7: check-permission
// is single-tenant only.
type clientV1 struct{ *baseClient }

// clientV2 targets >=2.7: check-permission accepts a tenant list natively.
type clientV2 struct{ *baseClient }

// clientV3 targets >=3.0: adds ruleset publishing on top of clientV2.
type clientV3 struct{ clientV2 }

func (c *clientV1) CheckPermission(ctx context.Context, customer string, tenants []string, licenseKey string) ([]string, error) {
	allowed := make([]string, 0, len(tenants))
	for _, tenant := range tenants {
		var out struct {
			Allowed bool `json:"allowed"`
		}
		resp, err := c.do(ctx, customer, http.MethodPost, "/jobs/check-permission", map[string]string{
			"customer": customer, "tenant": tenant, "license_key": licenseKey,
		}, &out)
		if err != nil {
			return nil, err
		}
		if statusErr := checkPermissionStatus(resp.StatusCode); statusErr != nil {
			return nil, statusErr
		}
		if out.Allowed {
			allowed = append(allowed, tenant)
		}
	}
	return allowed, nil
}

func (c *clientV2) CheckPermission(ctx context.Context, customer string, tenants []string, licenseKey string) ([]string, error) {
	var out struct {
		Allowed []string `json:"allowed"`
	}
	resp, err := c.do(ctx, customer, http.MethodPost, "/jobs/check-permission", map[string]interface{}{
		"customer": customer, "tenants": tenants, "license_key": licenseKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	if statusErr := checkPermissionStatus(resp.StatusCode); statusErr != nil {
		return nil, statusErr
	}
	return out.Allowed, nil
}

func checkPermissionStatus(status int) error {
	switch status {
	case http.StatusForbidden:
		return svcerrors.New(svcerrors.CodeQuotaExceeded, "license manager denied permission", http.StatusForbidden)
	case http.StatusNotFound:
		return svcerrors.New(svcerrors.CodeInvalidInput, "license manager: unknown license", http.StatusNotFound)
	default:
		return nil
	}
}

// PostJob, UpdateJob, SyncLicense and SetCustomerActivationDate use the same
// endpoint shapes across every LM version, so they're implemented once on
// baseClient and promoted into each variant via embedding.

func (c *baseClient) PostJob(ctx context.Context, jobID, customer, tenant string, rulesetMap map[string][]string) error {
	resp, err := c.do(ctx, customer, http.MethodPost, "/jobs", map[string]interface{}{
		"job_id": jobID, "customer": customer, "tenant": tenant, "rulesets": rulesetMap,
	}, nil)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusForbidden:
		return svcerrors.QuotaExceeded(customer, tenant)
	case http.StatusNotFound:
		return svcerrors.New(svcerrors.CodeInvalidInput, "license manager: invalid job data", http.StatusNotFound)
	}
	return nil
}

func (c *baseClient) UpdateJob(ctx context.Context, jobID string, created, started, stopped time.Time, status job.Status) error {
	resp, err := c.do(ctx, "", http.MethodPatch, "/jobs", map[string]interface{}{
		"job_id": jobID, "created_at": created, "started_at": started, "stopped_at": stopped, "status": status,
	}, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		// §4.1: LM returning 404 on UpdateJob is logged and tolerated, never fails the job.
		if c.logger != nil {
			c.logger.WithFields(map[string]interface{}{"job_id": jobID}).Warn("license manager: job unknown on update, tolerated")
		}
	}
	return nil
}

func (c *baseClient) SyncLicense(ctx context.Context, licenseKey string) error {
	_, err := c.do(ctx, "", http.MethodPost, "/license/sync", map[string]string{"license_key": licenseKey}, nil)
	return err
}

func (c *baseClient) SetCustomerActivationDate(ctx context.Context, customer string, activatedAt time.Time) error {
	_, err := c.do(ctx, customer, http.MethodPost, "/customers/set-activation-date", map[string]interface{}{
		"customer": customer, "activation_date": activatedAt,
	}, nil)
	return err
}

func (c *clientV3) PublishRuleset(ctx context.Context, rs rule.Ruleset) error {
	_, err := c.do(ctx, rs.Customer, http.MethodPost, "/registry/ruleset", map[string]interface{}{
		"name": rs.Name, "version": rs.Version, "cloud": rs.Cloud, "customer": rs.Customer,
		"rule_names": rs.RuleNameSlice(), "license_keys": rs.LicenseKeys,
	}, nil)
	return err
}

// NewVersionedClient negotiates the License Manager's advertised version via
// GET /whoami's Accept-Version header and returns the highest compatible
// client variant, per §4.5. The second return value is non-nil only when the
// negotiated variant also supports ruleset publishing (>=3.0).
func NewVersionedClient(ctx context.Context, cfg Config, redisClient *redis.Client, logger *logging.Logger) (LicenseClient, RulesetPublisher, error) {
	base := newBaseClient(cfg, redisClient, logger)

	var out struct{}
	resp, err := base.do(ctx, "", http.MethodGet, "/whoami", nil, &out)
	if err != nil {
		return nil, nil, err
	}
	version := resp.Header.Get("Accept-Version")

	switch {
	case versionAtLeast(version, 3, 0):
		v3 := &clientV3{clientV2{base}}
		return v3, v3, nil
	case versionAtLeast(version, 2, 7):
		return &clientV2{base}, nil, nil
	default:
		return &clientV1{base}, nil, nil
	}
}

// versionAtLeast reports whether version (e.g. "2.9.1") is >= major.minor,
// defaulting to false (oldest client) on an unparseable or empty header so a
// malformed negotiation never over-claims capability.
func versionAtLeast(version string, major, minor int) bool {
	var vMajor, vMinor int
	n, err := fmt.Sscanf(version, "%d.%d", &vMajor, &vMinor)
	if err != nil || n < 2 {
		return false
	}
	if vMajor != major {
		return vMajor > major
	}
	return vMinor >= minor
}
