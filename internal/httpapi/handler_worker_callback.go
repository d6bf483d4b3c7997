package httpapi

import (
	"net/http"
	"time"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/services/orchestrator"
)

// workerCallback handles POST /internal/worker-callback, the status report
// an Engine's worker runtime sends back for a dispatched Job or BatchResult
// (§4.1).
func (h *handler) workerCallback(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NativeID          string      `json:"native_id"`
		Status            job.Status  `json:"status"`
		CreatedAt         time.Time   `json:"created_at"`
		StartedAt         time.Time   `json:"started_at"`
		StoppedAt         time.Time   `json:"stopped_at"`
		JobQueue          string      `json:"job_queue"`
		JobDefinition     string      `json:"job_definition"`
		Regions           []string    `json:"regions"`
		Rulesets          []string    `json:"rulesets"`
		BatchResultIDs    []string    `json:"batch_result_ids"`
		Tenant            string      `json:"tenant"`
		Customer          string      `json:"customer"`
		ScheduledRuleName string      `json:"scheduled_rule_name"`
		SubmittedAt       time.Time   `json:"submitted_at"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}

	ev := orchestrator.WorkerEvent{
		NativeID:       payload.NativeID,
		Status:         payload.Status,
		CreatedAt:      payload.CreatedAt,
		StartedAt:      payload.StartedAt,
		StoppedAt:      payload.StoppedAt,
		JobQueue:       payload.JobQueue,
		JobDefinition:  payload.JobDefinition,
		Regions:        payload.Regions,
		Rulesets:       payload.Rulesets,
		BatchResultIDs: payload.BatchResultIDs,
	}
	env := orchestrator.WorkerEnv{
		Tenant:            payload.Tenant,
		Customer:          payload.Customer,
		ScheduledRuleName: payload.ScheduledRuleName,
		SubmittedAt:       payload.SubmittedAt,
	}

	if err := h.app.Orchestrator.UpdateJobFromWorker(r.Context(), ev, env); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
