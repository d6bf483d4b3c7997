package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	svcerrors "github.com/epam/rule-engine/internal/platform/errors"
)

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return svcerrors.InvalidInput("request body", err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError renders err through the platform's ServiceError taxonomy: a
// *ServiceError carries its own HTTP status and code, anything else is
// treated as an opaque internal failure.
func writeError(w http.ResponseWriter, err error) {
	svcErr := svcerrors.As(err)
	if svcErr == nil {
		svcErr = svcerrors.Internal("unexpected error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    svcErr.Code,
		"message": svcErr.Message,
		"details": svcErr.Details,
	})
}
