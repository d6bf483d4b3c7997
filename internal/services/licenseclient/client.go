// Package licenseclient talks to the external License Manager: token
// production and caching, job accounting, license sync, and ruleset
// publishing, version-gated per §4.5.
package licenseclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"

	svcerrors "github.com/epam/rule-engine/internal/platform/errors"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/platform/metrics"
	"github.com/epam/rule-engine/internal/platform/resilience"
)

// Config mirrors config.LicenseManagerConfig; kept as a local type so this
// package does not import internal/platform/config back (avoids an import
// cycle once config starts referencing service-level defaults).
type Config struct {
	BaseURL        string
	SigningKey     string
	TokenTTL       time.Duration
	CallTimeout    time.Duration
	MaxRetries     int
	InstallationID string // embedded as the token's issuer/subject
}

// lmClaims is the signed token body the License Manager expects: a
// short-lived, per-customer service credential.
type lmClaims struct {
	Customer string `json:"customer"`
	jwt.RegisteredClaims
}

// baseClient holds the HTTP transport, token cache, and resilience wrapping
// shared by every version-gated client variant.
type baseClient struct {
	cfg    Config
	http   *http.Client
	redis  *redis.Client
	cb     *resilience.CircuitBreaker
	retry  resilience.RetryConfig
	logger *logging.Logger
}

func newBaseClient(cfg Config, redisClient *redis.Client, logger *logging.Logger) *baseClient {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 120 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	retryCfg := resilience.DefaultRetryConfig()
	// §5 specifies up to 5 License Manager call attempts; the shared
	// resilience default of 3 is tuned for other callers.
	retryCfg.MaxAttempts = 5
	if cfg.MaxRetries > 0 {
		retryCfg.MaxAttempts = cfg.MaxRetries
	}
	return &baseClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.CallTimeout},
		redis:  redisClient,
		cb:     resilience.New(resilience.DefaultConfig()),
		retry:  retryCfg,
		logger: logger,
	}
}

// tokenFor returns a valid bearer token for customer, reusing a cached one
// from Redis (key "lm-token:{customer}") while unexpired, matching §4.5's
// "caches a token per customer... reuses it if not expired" requirement.
func (c *baseClient) tokenFor(ctx context.Context, customer string) (string, error) {
	key := "lm-token:" + customer
	if c.redis != nil {
		if cached, err := c.redis.Get(ctx, key).Result(); err == nil && cached != "" {
			return cached, nil
		}
	}

	now := time.Now()
	claims := &lmClaims{
		Customer: customer,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.TokenTTL)),
			Issuer:    c.cfg.InstallationID,
			Subject:   customer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.cfg.SigningKey))
	if err != nil {
		return "", svcerrors.Internal("sign license manager token", err)
	}

	if c.redis != nil {
		// Refresh slightly before the token's own expiry so a cached token
		// is never handed out on the edge of rejection by the LM.
		ttl := c.cfg.TokenTTL - 5*time.Second
		if ttl <= 0 {
			ttl = c.cfg.TokenTTL
		}
		_ = c.redis.Set(ctx, key, signed, ttl).Err()
	}
	return signed, nil
}

// do issues an HTTP request against the License Manager, wrapped in the
// shared circuit breaker and retry policy, and decodes a JSON response body
// into out (if non-nil). Endpoint-specific status-code translation is left
// to the caller since different endpoints map statuses to different
// ServiceError codes (§4.1's 403/404/unavailable table).
func (c *baseClient) do(ctx context.Context, customer, method, path string, body, out interface{}) (*http.Response, error) {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return nil, svcerrors.EncodeDecode("license manager request body", err)
		}
	}

	var resp *http.Response
	start := time.Now()
	err := c.cb.Execute(ctx, func() error {
		return resilience.Retry(ctx, c.retry, func() error {
			token, tokenErr := c.tokenFor(ctx, customer)
			if tokenErr != nil {
				return tokenErr
			}
			// Fresh reader per attempt: resilience.Retry re-invokes this
			// closure on 5xx/network errors, and an io.Reader already
			// drained by a prior attempt would send an empty body.
			var payload io.Reader
			if encoded != nil {
				payload = bytes.NewReader(encoded)
			}
			req, reqErr := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, payload)
			if reqErr != nil {
				return reqErr
			}
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Content-Type", "application/json")

			r, doErr := c.http.Do(req)
			if doErr != nil {
				return doErr
			}
			if r.StatusCode >= 500 {
				r.Body.Close()
				return fmt.Errorf("license manager %s %s: status %d", method, path, r.StatusCode)
			}
			resp = r
			return nil
		})
	})

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.LicenseManagerCalls.WithLabelValues(path, outcome).Inc()
	metrics.LicenseManagerDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if c.logger != nil {
		c.logger.LogUpstreamCall(ctx, "license-manager", method+" "+path, time.Since(start), err)
	}
	if err != nil {
		return nil, svcerrors.UpstreamUnavailable("license-manager", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
			return resp, svcerrors.EncodeDecode("license manager response body", decodeErr)
		}
	}
	return resp, nil
}
