package report

import (
	"github.com/epam/rule-engine/internal/domain/metadata"
)

// GenericFinding is the DefectDojo-shaped finding (§4.3.8). The perResource
// argument of ToGenericFindings controls whether one finding is emitted per
// (rule, region) or one per affected resource.
type GenericFinding struct {
	RuleName    string
	Region      string
	Severity    metadata.Severity
	Description string
	Remediation string
	Resources   []map[string]any
}

// AttachmentFormat selects how a GenericFinding's resource table is
// attached in the upstream push (§4.3.8).
type AttachmentFormat string

const (
	AttachmentMarkdown AttachmentFormat = "markdown"
	AttachmentJSON     AttachmentFormat = "json"
	AttachmentXLSX     AttachmentFormat = "xlsx"
	AttachmentCSVBase64 AttachmentFormat = "csv_base64"
)

// ToGenericFindings builds one GenericFinding per (rule, region), or one per
// resource when perResource is true.
func ToGenericFindings(items []RuleResource, reg metadata.Registry, perResource bool) []GenericFinding {
	grouped := make(map[RuleRegionKey][]RuleResource)
	var order []RuleRegionKey
	for _, item := range items {
		key := RuleRegionKey{Policy: item.Policy, Region: item.Region}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], item)
	}

	var out []GenericFinding
	for _, key := range order {
		group := grouped[key]
		rm, _ := reg.Get(key.Policy)
		sev := rm.Severity.Normalize()

		if !perResource {
			out = append(out, GenericFinding{
				RuleName:    key.Policy,
				Region:      key.Region,
				Severity:    sev,
				Description: rm.Description,
				Remediation: rm.Remediation,
				Resources:   Project(group, nil),
			})
			continue
		}
		for _, item := range group {
			out = append(out, GenericFinding{
				RuleName:    key.Policy,
				Region:      key.Region,
				Severity:    sev,
				Description: rm.Description,
				Remediation: rm.Remediation,
				Resources:   Project([]RuleResource{item}, nil),
			})
		}
	}
	return out
}

// CloudCustodianScanItem is the Cloud Custodian Scan-shaped output (§4.3.8).
type CloudCustodianScanItem struct {
	Policy    string
	Region    string
	Resources []map[string]any
}

// ToCloudCustodianScan builds one item per (rule, region) with all matching
// resources inline, or one per resource when perResource is true.
func ToCloudCustodianScan(items []RuleResource, perResource bool) []CloudCustodianScanItem {
	grouped := make(map[RuleRegionKey][]RuleResource)
	var order []RuleRegionKey
	for _, item := range items {
		key := RuleRegionKey{Policy: item.Policy, Region: item.Region}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], item)
	}

	var out []CloudCustodianScanItem
	for _, key := range order {
		group := grouped[key]
		if !perResource {
			out = append(out, CloudCustodianScanItem{Policy: key.Policy, Region: key.Region, Resources: Project(group, nil)})
			continue
		}
		for _, item := range group {
			out = append(out, CloudCustodianScanItem{Policy: key.Policy, Region: key.Region, Resources: Project([]RuleResource{item}, nil)})
		}
	}
	return out
}

// UDMEvent is a Chronicle Unified Data Model event record (§4.3.8).
type UDMEvent struct {
	EventType   string
	RuleName    string
	Severity    metadata.Severity
	PrincipalResource map[string]any
}

// UDMEntity is a Chronicle UDM entity record (§4.3.8).
type UDMEntity struct {
	EntityType string
	Resource   map[string]any
}

// ToUDMEvents converts findings to UDM events, one per resource, mapping
// UNKNOWN severity to MEDIUM per §4.3.8.
func ToUDMEvents(items []RuleResource, reg metadata.Registry) []UDMEvent {
	out := make([]UDMEvent, 0, len(items))
	for _, item := range items {
		rm, _ := reg.Get(item.Policy)
		out = append(out, UDMEvent{
			EventType:         "GENERIC_EVENT",
			RuleName:          item.Policy,
			Severity:          rm.Severity.Normalize(),
			PrincipalResource: Project([]RuleResource{item}, nil)[0],
		})
	}
	return out
}

// ToUDMEntities converts findings to UDM entities, one per resource.
func ToUDMEntities(items []RuleResource) []UDMEntity {
	out := make([]UDMEntity, 0, len(items))
	for _, item := range items {
		out = append(out, UDMEntity{
			EntityType: item.Resource.ResourceType(),
			Resource:   Project([]RuleResource{item}, nil)[0],
		})
	}
	return out
}
