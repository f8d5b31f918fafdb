package handlers

import (
	"encoding/json"
	"net/http"

	"teamchat-backend/internal/hub"
	"teamchat-backend/internal/metrics"
	"teamchat-backend/internal/validator"
)

func CreateChannel(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	var req validator.CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	if err := validator.Struct(req); err != nil {
		writeError(w, err)
		return
	}

	channel, err := db.CreateChannel(req.Name, req.Description, principal.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.ChannelsCreated.Inc()

	if err := hub.PublishChannel(channel); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, http.StatusCreated, channel)
}

func ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := db.ListChannels()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, channels)
}
