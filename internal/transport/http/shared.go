package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "medihub/pkg/domain-errors"
)

// errorEnvelope is the JSON error body returned by every handler.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError translates a domain error into the JSON error envelope. Only the
// caller-safe message from dErrors leaks out; wrapped causes stay in logs.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := ""
	var de *dErrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: string(code), Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// decodeJSON reads a request body into dst, rejecting unknown fields so typos
// fail loudly instead of silently dropping input.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
