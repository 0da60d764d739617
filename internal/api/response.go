package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/playerhub/gateway/internal/apperrors"
)

// =============================================================================
// Response envelope
// =============================================================================
//
// Every successful JSON response is either {"status": "success", ...extra
// fields...} or a raw result array (list endpoints). Every error response
// is {"status": "error", "error": "<message>"} with the HTTP status set
// from the underlying AppError.

// ErrorEnvelope is the error response shape.
type ErrorEnvelope struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteError serializes an AppError (or any error, wrapped) into the
// {"status":"error","error":"..."} envelope.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.EnsureAppError(err)
	_ = WriteJSON(w, appErr.StatusCode, ErrorEnvelope{
		Status: "error",
		Error:  appErr.Message,
	})
}

// WriteSuccess writes {"status":"success"} merged with the given extra
// fields, e.g. WriteSuccess(w, http.StatusOK, map[string]any{"volume": 12}).
func WriteSuccess(w http.ResponseWriter, status int, extra map[string]any) error {
	resp := map[string]any{"status": "success"}
	for k, v := range extra {
		resp[k] = v
	}
	return WriteJSON(w, status, resp)
}

// WriteOK writes the bare {"status":"success"} envelope for actions whose
// only signal is "it worked" (play, pause, mute, join, ...).
func WriteOK(w http.ResponseWriter) error {
	return WriteJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// WriteList writes a raw JSON array, used by routes whose success shape is
// "a raw result array" rather than the success envelope (zones, devices,
// favourites listings, ...).
func WriteList(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteResource writes a single resource object directly, at the given
// status code.
func WriteResource(w http.ResponseWriter, status int, resource any) error {
	return WriteJSON(w, status, resource)
}

// WriteAction writes the result of a side-effecting command (play, stop,
// queue a favourite, ...) directly at the given status code. Unlike
// WriteSuccess it does not inject a "status" field: callers that want the
// success envelope build it into the payload themselves.
func WriteAction(w http.ResponseWriter, status int, result any) error {
	return WriteJSON(w, status, result)
}

// RFC3339Millis formats t as RFC3339 with millisecond precision, the
// timestamp format used throughout the gateway's JSON responses.
func RFC3339Millis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
