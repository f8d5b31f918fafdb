package handlers

import (
	"net/http"
)

// GetPresence returns the current online snapshot. Anonymous callers
// may look at who is online; they just never appear in it themselves.
func GetPresence(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tracker.Online())
}
