package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epam/rule-engine/internal/domain/job"
	"github.com/epam/rule-engine/internal/domain/trigger"
)

func TestCloudTrailEventsWithNoMappingsRoutesNothing(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/events/cloudtrail", []trigger.CloudTrailEvent{
		{Account: "111111111111", Region: "eu-central-1", Source: "ec2.amazonaws.com", EventName: "RunInstances", RawHash: "h1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var results []job.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Empty(t, results)
}

func TestMaestroEventsWithNoMappingsRoutesNothing(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/events/maestro", []trigger.MaestroEvent{
		{Cloud: "AZURE", TenantName: "sub-1", Region: "westeurope", Group: "MANAGEMENT", SubGroup: "INSTANCE", Action: "create", RawHash: "m1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var results []job.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Empty(t, results)
}
