package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// User-visible strings. They never depend on whether an account exists.
const (
	msgResetRequested = "If an account with that identifier exists, a reset link has been sent."
	msgResetDone      = "Your password has been reset."
	msgResetInvalid   = "The reset link is invalid or has expired."
	msgBadCredentials = "Invalid credentials."
	msgThrottled      = "Too many requests. Please try again later."
	msgInternal       = "Something went wrong. Please try again later."
	msgBadRequest     = "The request could not be processed."
)

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type loginResponse struct {
	Success      bool      `json:"success"`
	SessionID    string    `json:"session_id"`
	SessionToken string    `json:"session_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, success bool, message string) {
	writeJSON(w, code, messageResponse{Success: success, Message: message})
}
