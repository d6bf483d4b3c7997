package report

import "github.com/epam/rule-engine/internal/domain/metadata"

// RuleOutcome is one rule's execution result within a scan, the input to
// coverage computation (§4.3.5).
type RuleOutcome struct {
	RuleName          string
	Errored           bool
	ViolatingCount    int
}

// StandardCoverageCalculator normalizes a successful/full ratio to 0..1,
// guarding the 0/0 "no controls defined" case to 0 rather than NaN.
func StandardCoverageCalculator(successful, full int) float64 {
	if full <= 0 {
		return 0
	}
	return float64(successful) / float64(full)
}

// CoverageResult is one standard's coverage figure.
type CoverageResult struct {
	Standard  string
	Full      int
	Successful int
	Coverage  float64
}

// ComputeCoverage implements §4.3.5: for each security standard referenced
// by the executed rules, full[S] is the standard's total control count for
// cloud; successful[S] counts controls whose every mapped rule ran without
// error and produced zero violations — a control with a rule the scan
// never ran at all can never be successful, satisfying §8's coverage
// monotonicity (dropping a violating rule from the ruleset must not raise
// coverage by shrinking a control's own denominator). techOnly restricts
// full/successful to tech controls ("tech coverage").
func ComputeCoverage(outcomes []RuleOutcome, reg metadata.Registry, cloud string, techOnly bool) []CoverageResult {
	// controlClean[standard][control] starts true, flips false if any ran
	// rule errored or produced a violation.
	controlClean := make(map[string]map[string]bool)
	// controlRan[standard][control] counts the distinct rules (by name)
	// that actually ran against that control in this scan.
	controlRan := make(map[string]map[string]map[string]bool)
	standardsSeen := make(map[string]bool)

	for _, oc := range outcomes {
		rm, ok := reg.Get(oc.RuleName)
		if !ok {
			continue
		}
		if techOnly && !rm.TechControl {
			continue
		}
		for standard, versions := range rm.Standards {
			standardsSeen[standard] = true
			if controlClean[standard] == nil {
				controlClean[standard] = make(map[string]bool)
			}
			if controlRan[standard] == nil {
				controlRan[standard] = make(map[string]map[string]bool)
			}
			for _, controls := range versions {
				for _, c := range controls {
					if _, seen := controlClean[standard][c]; !seen {
						controlClean[standard][c] = true
					}
					if oc.Errored || oc.ViolatingCount > 0 {
						controlClean[standard][c] = false
					}
					if controlRan[standard][c] == nil {
						controlRan[standard][c] = make(map[string]bool)
					}
					controlRan[standard][c][oc.RuleName] = true
				}
			}
		}
	}

	var out []CoverageResult
	for standard := range standardsSeen {
		full := reg.StandardControlCount(standard, cloud, techOnly)
		successful := 0
		for c, clean := range controlClean[standard] {
			if !clean {
				continue
			}
			mapped := reg.ControlRuleCount(standard, c, cloud, techOnly)
			if mapped > 0 && len(controlRan[standard][c]) >= mapped {
				successful++
			}
		}
		out = append(out, CoverageResult{
			Standard:   standard,
			Full:       full,
			Successful: successful,
			Coverage:   StandardCoverageCalculator(successful, full),
		})
	}
	return out
}
