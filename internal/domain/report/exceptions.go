package report

import (
	"strings"
	"time"

	"github.com/epam/rule-engine/internal/domain/metadata"
	"github.com/epam/rule-engine/internal/domain/trigger"
)

// ExceptionMatch records one resource excluded by a ResourceException,
// together with the rule it was found under (for severity bucketing).
type ExceptionMatch struct {
	Exception trigger.ResourceException
	Item      RuleResource
}

// SeveritySummary buckets counts by severity, the "exceptions[]" summary
// shape required by §4.3.6.
type SeveritySummary struct {
	Resources map[metadata.Severity]int
	Violations map[metadata.Severity]int
	MITRE      map[metadata.Severity]int
}

func newSeveritySummary() SeveritySummary {
	return SeveritySummary{
		Resources:  make(map[metadata.Severity]int),
		Violations: make(map[metadata.Severity]int),
		MITRE:      make(map[metadata.Severity]int),
	}
}

// FilterResult is the output of FilterExceptionResources.
type FilterResult struct {
	Exceptions    []ExceptionMatch
	Remaining     []RuleResource
	SummaryByID   map[string]SeveritySummary // keyed by exception ID
}

func dataField(item RuleResource, key string) string {
	if v, ok := item.Resource.Data()[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func arnOf(item RuleResource) string {
	if aws, ok := item.Resource.(interface{ ARN() string }); ok {
		return aws.ARN()
	}
	return ""
}

func matchesException(e trigger.ResourceException, item RuleResource) bool {
	if e.ResourceID != "" && e.ResourceID != item.Resource.ID() {
		return false
	}
	if e.Location != "" && e.Location != item.Region {
		return false
	}
	if e.ResourceType != "" && e.ResourceType != item.Resource.ResourceType() {
		return false
	}
	if e.ARN != "" && e.ARN != arnOf(item) {
		return false
	}
	for _, filter := range e.TagFilters {
		kv := strings.SplitN(filter, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if !hasTag(item, kv[0], kv[1]) {
			return false
		}
	}
	return true
}

// hasTag checks the conventional "Tags":[{"Key":k,"Value":v}] shape used by
// AWS-style payloads (§4.3.6's "tag-filters... present on the resource").
func hasTag(item RuleResource, key, value string) bool {
	raw, ok := item.Resource.Data()["Tags"]
	if !ok {
		return false
	}
	tags, ok := raw.([]any)
	if !ok {
		return false
	}
	for _, t := range tags {
		m, ok := t.(map[string]any)
		if !ok {
			continue
		}
		k, _ := m["Key"].(string)
		v, _ := m["Value"].(string)
		if k == key && v == value {
			return true
		}
	}
	return false
}

// FilterExceptionResources implements §4.3.6:
// ResourceExceptionsCollection.filter_exception_resources — partitions
// items into exception matches (with per-exception severity-bucketed
// summaries) and the surviving non-exception set. Expired exceptions never
// match (§8 "exception exclusion" applies only to non-expired exceptions).
func FilterExceptionResources(items []RuleResource, exceptions []trigger.ResourceException, reg metadata.Registry, now time.Time) FilterResult {
	result := FilterResult{SummaryByID: make(map[string]SeveritySummary)}
	excluded := make(map[int]bool)

	for i, item := range items {
		for _, e := range exceptions {
			if e.IsExpired(now) {
				continue
			}
			if !matchesException(e, item) {
				continue
			}
			excluded[i] = true
			result.Exceptions = append(result.Exceptions, ExceptionMatch{Exception: e, Item: item})

			sev := metadata.SeverityUnknown
			if rm, ok := reg.Get(item.Policy); ok {
				sev = rm.Severity.Normalize()
			} else {
				sev = sev.Normalize()
			}
			summary, ok := result.SummaryByID[e.ID]
			if !ok {
				summary = newSeveritySummary()
			}
			summary.Resources[sev]++
			summary.Violations[sev]++
			if rm, ok := reg.Get(item.Policy); ok {
				summary.MITRE[sev] += len(rm.MITRE)
			}
			result.SummaryByID[e.ID] = summary
			break // one matching exception is enough to exclude and attribute
		}
	}

	for i, item := range items {
		if !excluded[i] {
			result.Remaining = append(result.Remaining, item)
		}
	}
	return result
}
