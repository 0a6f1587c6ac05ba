package apihttp

import (
	"encoding/json"
	"net/http"
)

// envelope keeps the response shape stable: data is always present, even
// when the backing store failed and the series is zero-filled.
type envelope struct {
	Range string `json:"range,omitempty"`
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
