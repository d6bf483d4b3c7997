package report

import (
	"encoding/json"
	"sort"

	"github.com/epam/rule-engine/internal/domain/resource"
)

// DiffOptions replaces the original's global CLOUD_DATA_TO_EXCLUDE mutable
// state (§9 redesign note): the set of data fields ignored when comparing
// whether a resource is "the same violation" across two scans (e.g.
// last-seen timestamps that would otherwise make every resource look new).
type DiffOptions struct {
	ExcludeFields []string
}

func diffKey(res resource.CloudResource, opts DiffOptions) string {
	excluded := make(map[string]bool, len(opts.ExcludeFields))
	for _, f := range opts.ExcludeFields {
		excluded[f] = true
	}
	data := res.Data()
	keys := make([]string, 0, len(data))
	for k := range data {
		if excluded[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	filtered := make(map[string]any, len(keys))
	for _, k := range keys {
		filtered[k] = data[k]
	}
	body, _ := json.Marshal(filtered)
	return res.ID() + "|" + res.ResourceType() + "|" + string(body)
}

// DiffPolicy returns the subset of current not present (by diffKey) in
// previous, for one (policy, region) bucket — the "new violations since
// previous" set described in §4.3.4. current and previous MUST already be
// restricted to the same (policy, region) by the caller.
func DiffPolicy(current, previous []RuleResource, opts DiffOptions) []RuleResource {
	seen := make(map[string]bool, len(previous))
	for _, p := range previous {
		seen[diffKey(p.Resource, opts)] = true
	}
	var out []RuleResource
	for _, c := range current {
		if !seen[diffKey(c.Resource, opts)] {
			out = append(out, c)
		}
	}
	return out
}

// DiffRegion groups current/previous by policy within one region and
// applies DiffPolicy to each bucket.
func DiffRegion(current, previous []RuleResource, opts DiffOptions) []RuleResource {
	curByPolicy := groupByPolicy(current)
	prevByPolicy := groupByPolicy(previous)

	var out []RuleResource
	for policy, curItems := range curByPolicy {
		out = append(out, DiffPolicy(curItems, prevByPolicy[policy], opts)...)
	}
	return out
}

// DiffCloud groups current/previous by (policy, region) across an entire
// tenant scan and applies DiffPolicy to each bucket, producing the full
// diff collection stored under .../difference/ (§4.3.4). Diff is never
// recomputed on read once written.
func DiffCloud(current, previous []RuleResource, opts DiffOptions) []RuleResource {
	curByKey := groupByRuleRegion(current)
	prevByKey := groupByRuleRegion(previous)

	var out []RuleResource
	for key, curItems := range curByKey {
		out = append(out, DiffPolicy(curItems, prevByKey[key], opts)...)
	}
	return out
}

func groupByPolicy(items []RuleResource) map[string][]RuleResource {
	out := make(map[string][]RuleResource)
	for _, item := range items {
		out[item.Policy] = append(out[item.Policy], item)
	}
	return out
}

func groupByRuleRegion(items []RuleResource) map[RuleRegionKey][]RuleResource {
	out := make(map[RuleRegionKey][]RuleResource)
	for _, item := range items {
		key := RuleRegionKey{Policy: item.Policy, Region: item.Region}
		out[key] = append(out[key], item)
	}
	return out
}
