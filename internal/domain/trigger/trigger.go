// Package trigger models ScheduledJob and ResourceException, and the vendor
// event shapes consumed by the event router (§3, §4.4).
package trigger

import (
	"regexp"
	"strings"
	"time"
)

// ScheduledJob is a recurring cron-like trigger (§3).
type ScheduledJob struct {
	ID       string // sanitized, stable
	Customer string
	Tenant   string
	Schedule string // cron-or-rate expression
	Regions  []string
	Rulesets []string
	Enabled  bool
}

var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SanitizeID produces a stable ScheduledJob id from a tenant and a raw name.
func SanitizeID(tenant, name string) string {
	raw := tenant + "-" + name
	return strings.Trim(idSanitizer.ReplaceAllString(strings.ToLower(raw), "-"), "-")
}

// ResourceException is a user-declared filter excluding matching resources
// from violation reports (§3, §4.3.6).
type ResourceException struct {
	ID           string
	Customer     string
	Tenant       string
	ResourceID   string // optional; empty means "not constrained on this field"
	Location     string
	ResourceType string
	ARN          string
	TagFilters   []string // "Key=Value" pairs, all must match
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time // TTL-indexed; zero means no expiration
}

// IsExpired reports whether e has a non-zero expiration that has passed.
func (e ResourceException) IsExpired(now time.Time) bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return !e.ExpiresAt.After(now)
}

// CloudTrailEvent is an inbound AWS EventBridge record (§4.4).
type CloudTrailEvent struct {
	Account    string // userIdentity.accountId — see the open question in §9: only this field is consulted
	Region     string
	Source     string
	DetailType string
	EventName  string
	RawHash    string // content hash, used for per-invocation dedup
}

// MaestroEvent is an inbound Azure/GCP Maestro audit-feed record (§4.4).
type MaestroEvent struct {
	Cloud      string // AZURE | GOOGLE
	TenantName string
	Region     string
	Group      string
	SubGroup   string
	Action     string
	EventSource string
	EventName   string
	RawHash     string
}
