package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// statusClientClosedRequest reports caller-side cancellation, distinct
// from an upstream timeout.
const statusClientClosedRequest = 499

// ErrorBody is the wire shape of every error this gateway produces.
type ErrorBody struct {
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	UpgradeURL string `json:"upgradeUrl,omitempty"`
}

// ErrorResponse wraps ErrorBody under the "error" key.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("handlers: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, body ErrorBody) {
	writeJSON(w, status, ErrorResponse{Error: body})
}
