package api

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON error shape for every API surface.
// Authenticated is only set on gate rejections.
type ErrorBody struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Authenticated *bool  `json:"authenticated,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Error: code, Message: message})
}

// WriteUnauthenticated is the gate's structured 401 for API paths.
func WriteUnauthenticated(w http.ResponseWriter, message string) {
	f := false
	WriteJSON(w, http.StatusUnauthorized, ErrorBody{
		Error:         "unauthorized",
		Message:       message,
		Authenticated: &f,
	})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
