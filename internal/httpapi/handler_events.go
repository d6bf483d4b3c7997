package httpapi

import (
	"net/http"

	"github.com/epam/rule-engine/internal/domain/trigger"
)

// cloudTrailEvents handles POST /events/cloudtrail, the event-router ingress
// for batched CloudTrail records (§4.4).
func (h *handler) cloudTrailEvents(w http.ResponseWriter, r *http.Request) {
	var events []trigger.CloudTrailEvent
	if err := decodeJSON(r.Body, &events); err != nil {
		writeError(w, err)
		return
	}
	results, err := h.app.EventRouter.RouteCloudTrail(r.Context(), events)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// maestroEvents handles POST /events/maestro, the event-router ingress for
// batched Azure/GCP Maestro audit-feed records (§4.4).
func (h *handler) maestroEvents(w http.ResponseWriter, r *http.Request) {
	var events []trigger.MaestroEvent
	if err := decodeJSON(r.Body, &events); err != nil {
		writeError(w, err)
		return
	}
	results, err := h.app.EventRouter.RouteMaestro(r.Context(), events)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
