// Package metadata models the read-only Metadata Registry: a mapping from
// rule name to enriched fields (severity, standards, MITRE, remediation).
package metadata

// Severity is a rule's compliance severity rating.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
	SeverityUnknown  Severity = "UNKNOWN"
)

// Normalize maps UNKNOWN to MEDIUM for severity-bucketed outputs (SIEM
// convertors, §4.3.8), leaving every other severity unchanged.
func (s Severity) Normalize() Severity {
	if s == SeverityUnknown || s == "" {
		return SeverityMedium
	}
	return s
}

// StandardControls maps a security standard name to a version to the list of
// control ids it defines, e.g. {"cis-aws": {"1.4": ["1.1", "1.2"]}}.
type StandardControls map[string]map[string][]string

// RuleMeta is the enriched, read-only record for one rule name.
type RuleMeta struct {
	RuleName        string
	Severity        Severity
	ResourceType    string
	Description     string
	Remediation     string
	Impact          string
	Standards       StandardControls
	MITRE           []string
	Article         string
	ServiceSection  string
	ReportFields    []string // declared fields kept by field-projection (§4.3.3)
	Global          bool     // flagged "global" in source comments (§4.3.2)
	TechControl     bool     // counted toward "tech coverage" (§4.3.5)
}

// Registry is the read-only lookup surface backed by versioned license-supplied bundles.
type Registry interface {
	Get(ruleName string) (RuleMeta, bool)
	// StandardControlCount returns the total number of controls standard S
	// defines for the given cloud, optionally restricted to tech controls.
	StandardControlCount(standard, cloud string, techOnly bool) int
	// ControlRuleCount returns how many distinct rules are mapped to the
	// given (standard, control) pair for cloud, optionally restricted to
	// tech controls — the denominator coverage (§4.3.5) checks against the
	// rules that actually ran before calling a control successful.
	ControlRuleCount(standard, control, cloud string, techOnly bool) int
}

// MapRegistry is an in-memory Registry, the shape a License sync (§4.5)
// refreshes wholesale: bundles are swapped atomically, never mutated in place.
type MapRegistry struct {
	byRule map[string]RuleMeta
	// controlTotals[cloud][standard] = total control count for that cloud.
	controlTotals map[string]map[string]int
	// techControlTotals mirrors controlTotals but counts only tech controls.
	techControlTotals map[string]map[string]int
	// controlRuleCounts[cloud][standard][control] = distinct rules mapped to it.
	controlRuleCounts map[string]map[string]map[string]int
	// techControlRuleCounts mirrors controlRuleCounts but counts only tech controls.
	techControlRuleCounts map[string]map[string]map[string]int
}

// NewMapRegistry builds a MapRegistry from a rule metadata set, computing
// per-cloud standard control totals and per-control rule counts from the
// declared Standards maps.
func NewMapRegistry(rules []RuleMeta, cloudByRule map[string]string) *MapRegistry {
	r := &MapRegistry{
		byRule:                make(map[string]RuleMeta, len(rules)),
		controlTotals:         make(map[string]map[string]int),
		techControlTotals:     make(map[string]map[string]int),
		controlRuleCounts:     make(map[string]map[string]map[string]int),
		techControlRuleCounts: make(map[string]map[string]map[string]int),
	}
	seen := make(map[string]map[string]map[string]bool) // cloud -> standard -> control -> seen
	// ruleSeen dedupes a rule counting twice toward the same control if its
	// Standards map lists that control under more than one version.
	ruleSeen := make(map[string]map[string]map[string]map[string]bool) // cloud -> standard -> control -> rule -> seen
	for _, rm := range rules {
		r.byRule[rm.RuleName] = rm
		cloud := cloudByRule[rm.RuleName]
		if cloud == "" {
			continue
		}
		if seen[cloud] == nil {
			seen[cloud] = make(map[string]map[string]bool)
		}
		if ruleSeen[cloud] == nil {
			ruleSeen[cloud] = make(map[string]map[string]map[string]bool)
		}
		for standard, versions := range rm.Standards {
			if seen[cloud][standard] == nil {
				seen[cloud][standard] = make(map[string]bool)
			}
			if ruleSeen[cloud][standard] == nil {
				ruleSeen[cloud][standard] = make(map[string]map[string]bool)
			}
			for _, controls := range versions {
				for _, c := range controls {
					key := standard + "/" + c
					if !seen[cloud][standard][key] {
						seen[cloud][standard][key] = true
						if r.controlTotals[cloud] == nil {
							r.controlTotals[cloud] = make(map[string]int)
						}
						r.controlTotals[cloud][standard]++
						if rm.TechControl {
							if r.techControlTotals[cloud] == nil {
								r.techControlTotals[cloud] = make(map[string]int)
							}
							r.techControlTotals[cloud][standard]++
						}
					}

					if ruleSeen[cloud][standard][c] == nil {
						ruleSeen[cloud][standard][c] = make(map[string]bool)
					}
					if ruleSeen[cloud][standard][c][rm.RuleName] {
						continue
					}
					ruleSeen[cloud][standard][c][rm.RuleName] = true

					if r.controlRuleCounts[cloud] == nil {
						r.controlRuleCounts[cloud] = make(map[string]map[string]int)
					}
					if r.controlRuleCounts[cloud][standard] == nil {
						r.controlRuleCounts[cloud][standard] = make(map[string]int)
					}
					r.controlRuleCounts[cloud][standard][c]++
					if rm.TechControl {
						if r.techControlRuleCounts[cloud] == nil {
							r.techControlRuleCounts[cloud] = make(map[string]map[string]int)
						}
						if r.techControlRuleCounts[cloud][standard] == nil {
							r.techControlRuleCounts[cloud][standard] = make(map[string]int)
						}
						r.techControlRuleCounts[cloud][standard][c]++
					}
				}
			}
		}
	}
	return r
}

func (r *MapRegistry) Get(ruleName string) (RuleMeta, bool) {
	rm, ok := r.byRule[ruleName]
	return rm, ok
}

func (r *MapRegistry) StandardControlCount(standard, cloud string, techOnly bool) int {
	totals := r.controlTotals
	if techOnly {
		totals = r.techControlTotals
	}
	if totals[cloud] == nil {
		return 0
	}
	return totals[cloud][standard]
}

func (r *MapRegistry) ControlRuleCount(standard, control, cloud string, techOnly bool) int {
	counts := r.controlRuleCounts
	if techOnly {
		counts = r.techControlRuleCounts
	}
	if counts[cloud] == nil || counts[cloud][standard] == nil {
		return 0
	}
	return counts[cloud][standard][control]
}
