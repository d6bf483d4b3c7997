package httpapi

import (
	"net/http"

	"github.com/epam/rule-engine/internal/services/orchestrator"
)

// submitJob handles POST /jobs, the thin external entry point for §4.1's
// SubmitJob admission path.
func (h *handler) submitJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Tenant     string   `json:"tenant"`
		Rulesets   []string `json:"rulesets"`
		Regions    []string `json:"regions"`
		LicenseKey string   `json:"license_key"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}

	j, err := h.app.Orchestrator.SubmitJob(r.Context(), orchestrator.SubmitRequest{
		Tenant:     payload.Tenant,
		Rulesets:   payload.Rulesets,
		Regions:    payload.Regions,
		LicenseKey: payload.LicenseKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}
