package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/epam/rule-engine/internal/domain/job"
)

func TestWorkerCallbackCreatesJobDefensively(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/internal/worker-callback", map[string]interface{}{
		"native_id": "batch-job-1",
		"status":    string(job.StatusRunning),
		"tenant":    "t-1",
		"customer":  "ACME",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestWorkerCallbackInvalidBodyReturnsBadRequest(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/internal/worker-callback", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
