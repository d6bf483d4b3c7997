// Package eventrouter maps inbound cloud audit events (AWS CloudTrail via
// EventBridge, Azure/GCP Maestro) into grouped BatchResult admissions (§4.4),
// grounded on the original event-processor's per-vendor filter/extract split.
package eventrouter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/domain/tenant"
	"github.com/epam/rule-engine/internal/domain/trigger"
	"github.com/epam/rule-engine/internal/platform/logging"
)

// CloudTrailMapping resolves a CloudTrail (eventSource, eventName) pair to
// the rule names it triggers: {source -> name -> [rule-names]}.
type CloudTrailMapping map[string]map[string][]string

// MaestroEventRef names one underlying vendor event a Maestro action maps to.
type MaestroEventRef struct {
	EventSource string
	EventName   string
}

// MaestroActionMapping resolves a Maestro (subGroup, action) pair to the
// underlying vendor events it corresponds to: {subGroup -> action -> [refs]}.
type MaestroActionMapping map[string]map[string][]MaestroEventRef

// Mappings bundles every lookup table the router needs. A Router keeps the
// bundle it was constructed with; there is no method to swap it later.
type Mappings struct {
	CloudTrail CloudTrailMapping
	// MaestroActions and CloudEvents are keyed by cloud ("AZURE"/"GOOGLE").
	MaestroActions map[string]MaestroActionMapping
	CloudEvents    map[string]CloudTrailMapping
}

func (m CloudTrailMapping) rules(source, name string) []string {
	if byName, ok := m[source]; ok {
		if rules, ok := byName[name]; ok {
			return rules
		}
	}
	return nil
}

// Engine is the admission collaborator the router hands routed groups to.
type Engine interface {
	AdmitBatchResult(ctx context.Context, tenantID, customer, cloudIdentifier string, regionRules map[string][]string, dedupeKey string) (job.BatchResult, error)
}

// TenantResolver maps a cloud account/subscription/project id back to the
// Tenant record that owns it (§4.4).
type TenantResolver interface {
	GetByNativeID(ctx context.Context, cloud tenant.Cloud, nativeID string) (tenant.Tenant, bool, error)
}

// Router filters, extracts, groups, and dedupes inbound vendor events, then
// hands each group off to Engine.AdmitBatchResult.
type Router struct {
	mappings Mappings
	tenants  TenantResolver
	engine   Engine
	selfID   string // this installation's own AWS account id, excluded as self-noise
	logger   *logging.Logger
}

func New(mappings Mappings, tenants TenantResolver, engine Engine, selfAccountID string, logger *logging.Logger) *Router {
	return &Router{mappings: mappings, tenants: tenants, engine: engine, selfID: selfAccountID, logger: logger}
}

// group is one (tenant, region) or (cloud, tenant, region) bucket pending
// admission, keyed so a single inbound batch produces at most one
// BatchResult per bucket.
type group struct {
	cloud    tenant.Cloud
	tenantID string
	customer string
	nativeID string
	region   string
	rules    map[string]struct{}
}

func newGroup(cloud tenant.Cloud, t tenant.Tenant, region string) *group {
	return &group{cloud: cloud, tenantID: t.ID, customer: t.Customer, nativeID: t.NativeID, region: region, rules: make(map[string]struct{})}
}

func (g *group) add(rules []string) {
	for _, r := range rules {
		g.rules[r] = struct{}{}
	}
}

func (g *group) sortedRules() []string {
	out := make([]string, 0, len(g.rules))
	for r := range g.rules {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// RouteCloudTrail filters, extracts, and groups a batch of inbound
// EventBridge/CloudTrail records (§4.4's AWS path), deduplicating by content
// hash before admission.
func (r *Router) RouteCloudTrail(ctx context.Context, events []trigger.CloudTrailEvent) ([]job.BatchResult, error) {
	groups := make(map[string]*group)
	seen := make(map[string]bool, len(events))

	for _, ev := range events {
		if ev.Account == "" || ev.Account == r.selfID {
			continue // self-noise: drop records belonging to our own installation account
		}
		if seen[ev.RawHash] {
			continue
		}
		seen[ev.RawHash] = true

		rules := r.mappings.CloudTrail.rules(ev.Source, ev.EventName)
		if len(rules) == 0 || ev.Region == "" {
			continue
		}

		t, ok, err := r.tenants.GetByNativeID(ctx, tenant.CloudAWS, ev.Account)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.logger.WithFields(map[string]interface{}{"account": ev.Account}).Debug("no tenant registered for cloudtrail account")
			continue
		}

		key := t.ID + "|" + ev.Region
		g, ok := groups[key]
		if !ok {
			g = newGroup(tenant.CloudAWS, t, ev.Region)
			groups[key] = g
		}
		g.add(rules)
	}

	return r.admitGroups(ctx, groups)
}

// RouteMaestro filters, extracts, and groups a batch of inbound Maestro
// audit-feed records (§4.4's Azure/GCP path): only AZURE/GOOGLE,
// group=MANAGEMENT, sub_group=INSTANCE records participate.
func (r *Router) RouteMaestro(ctx context.Context, events []trigger.MaestroEvent) ([]job.BatchResult, error) {
	groups := make(map[string]*group)
	seen := make(map[string]bool, len(events))

	for _, ev := range events {
		if ev.Group != "MANAGEMENT" || ev.SubGroup != "INSTANCE" {
			continue
		}
		var cloud tenant.Cloud
		switch ev.Cloud {
		case "AZURE":
			cloud = tenant.CloudAzure
		case "GOOGLE":
			cloud = tenant.CloudGoogle
		default:
			continue
		}
		if ev.TenantName == "" || ev.Region == "" {
			continue
		}
		if seen[ev.RawHash] {
			continue
		}
		seen[ev.RawHash] = true

		actionMap := r.mappings.MaestroActions[ev.Cloud]
		eventMap := r.mappings.CloudEvents[ev.Cloud]
		var rules []string
		for _, ref := range actionRefs(actionMap, ev.SubGroup, ev.Action) {
			rules = append(rules, eventMap.rules(ref.EventSource, ref.EventName)...)
		}
		if len(rules) == 0 {
			continue
		}

		t, ok, err := r.tenants.GetByNativeID(ctx, cloud, ev.TenantName)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.logger.WithFields(map[string]interface{}{"tenant_name": ev.TenantName, "cloud": ev.Cloud}).Debug("no tenant registered for maestro tenant name")
			continue
		}

		key := string(cloud) + "|" + t.ID + "|" + ev.Region
		g, ok := groups[key]
		if !ok {
			g = newGroup(cloud, t, ev.Region)
			groups[key] = g
		}
		g.add(rules)
	}

	return r.admitGroups(ctx, groups)
}

func actionRefs(m MaestroActionMapping, subGroup, action string) []MaestroEventRef {
	if m == nil {
		return nil
	}
	return m[subGroup][action]
}

func (r *Router) admitGroups(ctx context.Context, groups map[string]*group) ([]job.BatchResult, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]job.BatchResult, 0, len(groups))
	for _, k := range keys {
		g := groups[k]
		regionRules := map[string][]string{g.region: g.sortedRules()}
		dedupeKey := dedupeKeyFor(g)
		br, err := r.admit(ctx, g, regionRules, dedupeKey)
		if err != nil {
			return nil, err
		}
		results = append(results, br)
	}
	return results, nil
}

func (r *Router) admit(ctx context.Context, g *group, regionRules map[string][]string, dedupeKey string) (job.BatchResult, error) {
	return r.engine.AdmitBatchResult(ctx, g.tenantID, g.customer, g.nativeID, regionRules, dedupeKey)
}

func dedupeKeyFor(g *group) string {
	payload := struct {
		Tenant string
		Region string
		Rules  []string
	}{Tenant: g.tenantID, Region: g.region, Rules: g.sortedRules()}
	encoded, _ := json.Marshal(payload)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
