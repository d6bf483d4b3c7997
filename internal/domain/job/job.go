// Package job models Job and BatchResult, the scan-execution entities of §3,
// and their shared lifecycle state machine (§4.1).
package job

import "time"

// Status is a position in the Job/BatchResult lifecycle state machine.
// Rank is monotonically increasing in declaration order; Advances uses it
// to reject backwards transitions (§5's ordering guarantee).
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusPending   Status = "PENDING"
	StatusRunnable  Status = "RUNNABLE"
	StatusStarting  Status = "STARTING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// rank assigns each status its position in the forward-only state machine.
// SUCCEEDED and FAILED share the terminal rank: once either is reached no
// further transition (including between the two) is accepted.
var rank = map[Status]int{
	StatusSubmitted: 0,
	StatusPending:   1,
	StatusRunnable:  2,
	StatusStarting:  3,
	StatusRunning:   4,
	StatusSucceeded: 5,
	StatusFailed:    5,
}

// IsTerminal reports whether s is a final status.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Advances reports whether transitioning from s to next is accepted by the
// monotonic state machine: next must have a rank at or beyond s's rank, and
// a terminal s accepts no further transition at all.
func (s Status) Advances(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	curRank, ok := rank[s]
	if !ok {
		return true // unknown current status (defensive/new Job): accept any next
	}
	nextRank, ok := rank[next]
	if !ok {
		return false
	}
	return nextRank >= curRank
}

// ScanType distinguishes manually submitted jobs from reactive (event-driven) ones.
type ScanType string

const (
	ScanTypeManual   ScanType = "MANUAL"
	ScanTypeReactive ScanType = "REACTIVE"
)

// RulesetView captures both the requested and the license-permitted ruleset names.
type RulesetView struct {
	Requested []string
	Licensed  []string
}

// Job is one scan execution (§3).
type Job struct {
	ID                string
	Tenant            string
	Customer          string
	Owner             string
	SubmittedAt       time.Time
	CreatedAt         time.Time
	StartedAt         time.Time
	StoppedAt         time.Time
	Status            Status
	Rulesets          RulesetView
	Regions           []string
	ScheduledRuleName string
	ScanType          ScanType
	LicenseKeys       []string
	NativeID          string // celery/worker-runtime task id
	JobQueue          string
	JobDefinition     string
}

// ApplyStatus advances j's status if the transition is accepted by the state
// machine; it no-ops (returns false) on a rejected or backwards transition.
func (j *Job) ApplyStatus(next Status) bool {
	if !j.Status.Advances(next) {
		return false
	}
	j.Status = next
	return true
}

// BatchResult is the reactive/event-driven counterpart of Job (§3).
type BatchResult struct {
	ID                string
	Tenant            string
	Customer          string
	CloudIdentifier   string
	WindowStart        time.Time
	WindowEnd          time.Time
	SubmittedAt       time.Time
	CreatedAt         time.Time
	StartedAt         time.Time
	StoppedAt         time.Time
	Status            Status
	RegionRules       map[string][]string // region -> rule names to scan
	DedupeKey         string              // (tenant, region, event-hash) idempotence key
}

// ApplyStatus advances br's status if the transition is accepted by the state machine.
func (br *BatchResult) ApplyStatus(next Status) bool {
	if !br.Status.Advances(next) {
		return false
	}
	br.Status = next
	return true
}
