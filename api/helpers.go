// Package api exposes the thin HTTP surface external collaborators
// (the GUI, the capture pipeline) use to run rule searches, push
// inbound supervisor messages, and adjust settings. The engine's core
// logic lives entirely in the other packages; handlers here only
// decode requests, call through, and encode responses.
package api

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
