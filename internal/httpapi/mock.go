package httpapi

import (
	"encoding/json"
	"net/http"

	"notifboard/internal/feed"
	"notifboard/internal/mock"
)

const (
	msgInvalidAction = "Invalid action"
	msgInvalidBody   = "Invalid request body"
	msgInternal      = "Internal server error"
)

type mockHandler struct {
	gen *mock.Generator
}

// generate mints a notification without storing it. Callers add it to
// their own collection.
func (h *mockHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req feed.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if req.Action != "generate" {
		writeError(w, http.StatusBadRequest, msgInvalidAction)
		return
	}
	n := h.gen.Next()
	writeJSON(w, http.StatusOK, feed.GenerateResponse{Success: true, Notification: &n})
}

func (h *mockHandler) ping(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true})
}
