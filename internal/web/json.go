package web

import (
	"encoding/json"
	"net/http"
)

// ActivityResponse is the reply to POST /activity.
type ActivityResponse struct {
	Accepted bool   `json:"accepted"`
	Type     string `json:"type,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
