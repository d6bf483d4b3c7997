package report

import "github.com/epam/rule-engine/internal/domain/resource"

// RuleRegionKey groups resources for dedup and reporting (§4.3.3).
type RuleRegionKey struct {
	Policy string
	Region string
}

// Deduplicate groups resources by (rule, region) and keeps each unique
// resource exactly once within that group, based on its hash. Idempotent:
// deduplicating an already-deduplicated slice yields the identical result
// (§8 "deduplication idempotence").
func Deduplicate(items []RuleResource) []RuleResource {
	seen := make(map[RuleRegionKey]map[string]bool)
	var out []RuleResource
	for _, item := range items {
		key := RuleRegionKey{Policy: item.Policy, Region: item.Region}
		if seen[key] == nil {
			seen[key] = make(map[string]bool)
		}
		hash := resource.Dispatch[string](item.Resource, resource.HashVisitor{})
		if seen[key][hash] {
			continue
		}
		seen[key][hash] = true
		out = append(out, item)
	}
	return out
}

// Project applies a field-projection view to every resource in items,
// keeping only the rule-declared report fields plus mandatory identity
// fields (§4.3.3). fieldsByPolicy supplies each rule's declared fields.
func Project(items []RuleResource, fieldsByPolicy map[string][]string) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		view := resource.FieldProjectionView{Fields: fieldsByPolicy[item.Policy]}
		projected := resource.Dispatch[map[string]any](item.Resource, projectionAdapter{view})
		projected["__policy"] = item.Policy
		projected["__region"] = item.Region
		out = append(out, projected)
	}
	return out
}

// projectionAdapter adapts a concrete FieldProjectionView (a
// ResourceVisitor[map[string]any] already) so Project can pass it through
// resource.Dispatch uniformly; kept distinct for readability at call sites.
type projectionAdapter struct {
	view resource.FieldProjectionView
}

func (a projectionAdapter) VisitAWS(r resource.AWSResource) map[string]any       { return a.view.VisitAWS(r) }
func (a projectionAdapter) VisitAzure(r resource.AZUREResource) map[string]any   { return a.view.VisitAzure(r) }
func (a projectionAdapter) VisitGoogle(r resource.GOOGLEResource) map[string]any { return a.view.VisitGoogle(r) }
func (a projectionAdapter) VisitK8S(r resource.K8SResource) map[string]any       { return a.view.VisitK8S(r) }
