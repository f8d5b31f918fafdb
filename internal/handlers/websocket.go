package handlers

import (
	"net/http"

	"teamchat-backend/internal/hub"
)

func HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	hub.HandleClient(w, r, principalFrom(r))
}
