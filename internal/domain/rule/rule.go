// Package rule models Rule, RuleSource and Ruleset — the compliance-check
// catalog entities of §3.
package rule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/epam/rule-engine/internal/domain/metadata"
	"github.com/epam/rule-engine/internal/domain/tenant"
)

// Rule is one atomic compliance check, identified by (Name, RuleSourceID).
type Rule struct {
	Name           string
	RuleSourceID   string
	Cloud          tenant.Cloud
	ResourceType   string
	Severity       metadata.Severity
	Description    string
	Remediation    string
	Impact         string
	Standards      metadata.StandardControls
	MITRE          []string
	Article        string
	ServiceSection string
	CommitHash     string // blame-stamped source commit, best-effort (§4.6)
	UpdatedAt      time.Time
	SourcePath     string
}

// ID returns the (name, rule-source-id) identity tuple as a stable string key.
func (r Rule) ID() string { return r.Name + "@" + r.RuleSourceID }

// RuleSourceType enumerates the supported git hosting backends (§4.6).
type RuleSourceType string

const (
	RuleSourceGitLab        RuleSourceType = "GITLAB"
	RuleSourceGitHub        RuleSourceType = "GITHUB"
	RuleSourceGitHubRelease RuleSourceType = "GITHUB_RELEASE"
)

// SyncStatus is the latest_sync.status field of a RuleSource.
type SyncStatus string

const (
	SyncStatusSyncing SyncStatus = "SYNCING"
	SyncStatusSynced  SyncStatus = "SYNCED"
	SyncStatusFailed  SyncStatus = "FAILED"
)

// LatestSync is the sync descriptor carried by a RuleSource.
type LatestSync struct {
	Status    SyncStatus
	Tag       string
	Version   string
	Timestamp time.Time
}

// RuleSource is a git-origin bundle of rules.
type RuleSource struct {
	ID          string
	Customer    string
	GitURL      string
	ProjectID   string
	Ref         string
	PathPrefix  string
	Type        RuleSourceType
	LatestSync  LatestSync
	Description string
	SecretName  string // handle into the secret store, never the credential itself
}

// DeriveRuleSourceID deterministically derives a RuleSource id from its
// identity tuple, per §3's invariant.
func DeriveRuleSourceID(customer, gitURL, projectID, ref, prefix string) string {
	h := sha256.New()
	for _, part := range []string{customer, gitURL, projectID, ref, prefix} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// NewRuleSource builds a RuleSource with its id freshly derived.
func NewRuleSource(customer, gitURL, projectID, ref, prefix string, typ RuleSourceType, description, secretName string) RuleSource {
	return RuleSource{
		ID:          DeriveRuleSourceID(customer, gitURL, projectID, ref, prefix),
		Customer:    customer,
		GitURL:      gitURL,
		ProjectID:   projectID,
		Ref:         ref,
		PathPrefix:  prefix,
		Type:        typ,
		Description: description,
		SecretName:  secretName,
		LatestSync:  LatestSync{Status: SyncStatusSyncing},
	}
}

// Ruleset is a named, versioned snapshot of rule names for one cloud.
type Ruleset struct {
	Name         string
	Version      string
	Cloud        tenant.Cloud
	Customer     string
	RuleNames    map[string]struct{}
	Licensed     bool
	LicenseKeys  []string
	StorageBucket string
	StorageKey    string
}

// ID returns the (customer, name, version) identity tuple.
func (rs Ruleset) ID() string {
	return fmt.Sprintf("%s/%s/%s", rs.Customer, rs.Name, rs.Version)
}

// Validate enforces the licensed-ruleset invariant: a licensed ruleset must
// reference at least one license key.
func (rs Ruleset) Validate() error {
	if rs.Licensed && len(rs.LicenseKeys) == 0 {
		return fmt.Errorf("ruleset %s: licensed ruleset must carry at least one license key", rs.ID())
	}
	return nil
}

// RuleNameSlice returns the ruleset's rule names as a sorted-independent slice.
func (rs Ruleset) RuleNameSlice() []string {
	out := make([]string, 0, len(rs.RuleNames))
	for name := range rs.RuleNames {
		out = append(out, name)
	}
	return out
}
