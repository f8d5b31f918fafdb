package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"teamchat-backend/internal/apperr"
	"teamchat-backend/internal/hub"
	"teamchat-backend/internal/metrics"
	"teamchat-backend/internal/models"
	"teamchat-backend/internal/validator"
)

func CreateMessage(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	var req validator.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	if err := validator.Struct(req); err != nil {
		writeError(w, err)
		return
	}

	target, err := models.ParseTarget(req.Target, principal.ID)
	if err != nil {
		writeError(w, apperr.Validation("target", err.Error()))
		return
	}

	msg, err := db.AppendMessage(principal.ID, req.Body, target)
	if err != nil {
		writeError(w, err)
		return
	}

	msg.Author = principal
	metrics.MessagesAppended.Inc()

	if err := hub.PublishMessage(msg, target); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, http.StatusCreated, msg)
}

// ListMessages serves both the full window load (no sinceId) and the
// incremental sync (sinceId = last seen message ID). When the caller
// names its websocket connection, push delivery for the fetched
// conversation is attached to that socket as well.
func ListMessages(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	target, err := models.ParseTarget(r.URL.Query().Get("target"), principal.ID)
	if err != nil {
		writeError(w, apperr.Validation("target", err.Error()))
		return
	}

	var sinceID int64
	if raw := r.URL.Query().Get("sinceId"); raw != "" {
		sinceID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "sinceId is not a number", http.StatusBadRequest)
			return
		}
	}

	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit is not a number", http.StatusBadRequest)
			return
		}
	}

	messages, err := db.ListMessages(target, sinceID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.MessageFetches.Inc()

	if connID := r.URL.Query().Get("connID"); connID != "" {
		if err := hub.SubscribeConversation(connID, target); err != nil {
			sugar.Debug(err)
		}
	}

	writeJSON(w, http.StatusOK, messages)
}
