package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/platform/logging"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(newTestApplication(t), logging.New("httpapi-test", "error", "text"))
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSubmitJobAdmitsAndReturnsJob(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/jobs", map[string]interface{}{
		"tenant": "t-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created job.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "t-1", created.Tenant)
	assert.Equal(t, job.StatusSubmitted, created.Status)
	assert.NotEmpty(t, created.ID)
}

func TestSubmitJobUnknownTenantReturnsNotFound(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/jobs", map[string]interface{}{
		"tenant": "does-not-exist",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestSubmitJobRejectsUnknownFields(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"tenant":"t-1","bogus":true}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
