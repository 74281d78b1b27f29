package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorEnvelope{Success: false, Error: msg}); err != nil {
		slog.Warn("failed to write middleware error", "error", err)
	}
}
