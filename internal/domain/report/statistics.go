package report

import "github.com/epam/rule-engine/internal/domain/shard"

// AverageStatistics is the per-(policy, region) aggregate required by
// §4.3.7.
type AverageStatistics struct {
	Policy               string
	Region               string
	Invocations          int
	SucceededInvocations int
	FailedInvocations    int
	TotalAPICalls        map[string]int
	MinExecSeconds       float64
	MaxExecSeconds       float64
	TotalExecSeconds     float64
	AverageExecSeconds   float64
	ResourcesScanned     int
	ResourcesFailed      int
	AverageResourcesScanned float64
	AverageResourcesFailed  float64
}

// FailedOnlyView is the restricted shape for failed invocations: hides
// tenant/customer/timing/api_calls/scanned/failed/traceback, keeps
// policy/region/reason/error-type (§4.3.7).
type FailedOnlyView struct {
	Policy    string
	Region    string
	Reason    string
	ErrorType string
}

// AggregateStatistics groups items by (policy, region) and computes
// AverageStatistics for each group. Per §9's "average of averages" open
// question, AverageExecSeconds/AverageResourcesScanned/Failed are computed
// as arithmetic means of the per-invocation values within the group — this
// reproduces the original's imprecision verbatim (it is not a count-
// weighted mean across regions when callers later average these averages
// again at the tenant level; see DESIGN.md).
func AggregateStatistics(items []shard.StatisticsItem) []AverageStatistics {
	type key struct{ policy, region string }
	groups := make(map[key][]shard.StatisticsItem)
	var order []key
	for _, it := range items {
		k := key{it.Policy, it.Region}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], it)
	}

	out := make([]AverageStatistics, 0, len(order))
	for _, k := range order {
		group := groups[k]
		stat := AverageStatistics{
			Policy:        k.policy,
			Region:        k.region,
			Invocations:   len(group),
			TotalAPICalls: make(map[string]int),
		}
		var execSum, scannedSum, failedSum float64
		first := true
		for _, it := range group {
			if it.Succeeded() {
				stat.SucceededInvocations++
			} else {
				stat.FailedInvocations++
			}
			for call, n := range it.APICalls {
				stat.TotalAPICalls[call] += n
			}
			d := it.Duration()
			if first || d < stat.MinExecSeconds {
				stat.MinExecSeconds = d
			}
			if first || d > stat.MaxExecSeconds {
				stat.MaxExecSeconds = d
			}
			first = false
			execSum += d
			stat.TotalExecSeconds += d
			stat.ResourcesScanned += it.ScannedResources
			stat.ResourcesFailed += it.FailedResources
			scannedSum += float64(it.ScannedResources)
			failedSum += float64(it.FailedResources)
		}
		n := float64(len(group))
		if n > 0 {
			stat.AverageExecSeconds = execSum / n
			stat.AverageResourcesScanned = scannedSum / n
			stat.AverageResourcesFailed = failedSum / n
		}
		out = append(out, stat)
	}
	return out
}

// AverageOfAverages reproduces the original's tenant-level rollup: the mean
// of the per-group AverageExecSeconds values, not a count-weighted mean
// across all invocations. This is the verbatim-preserved behavior from the
// second Open Question in §9.
func AverageOfAverages(stats []AverageStatistics) float64 {
	if len(stats) == 0 {
		return 0
	}
	var sum float64
	for _, s := range stats {
		sum += s.AverageExecSeconds
	}
	return sum / float64(len(stats))
}

// FailedOnly projects a statistics item to the restricted failed-only view,
// dropping everything but policy/region/reason/error-type (§4.3.7's hidden
// fields also drop traceback, which FailedOnlyView has no field for).
func FailedOnly(it shard.StatisticsItem) FailedOnlyView {
	return FailedOnlyView{
		Policy:    it.Policy,
		Region:    it.Region,
		Reason:    it.Reason,
		ErrorType: it.ErrorType,
	}
}
