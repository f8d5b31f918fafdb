package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"teamchat-backend/internal/apperr"
	"teamchat-backend/internal/models"
	"teamchat-backend/internal/presence"
	"teamchat-backend/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var sugar *zap.SugaredLogger
var db *store.Store
var tracker *presence.Tracker

// Setup wires the messaging core's HTTP surface and returns the
// router; main binds it.
func Setup(cfg *models.ConfigFile, _sugar *zap.SugaredLogger, _db *store.Store, _tracker *presence.Tracker) *chi.Mux {
	sugar = _sugar
	db = _db
	tracker = _tracker

	r := chi.NewRouter()

	if cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(api chi.Router) {
		api.Get("/healthz", Health)

		api.Route("/channels", func(r chi.Router) {
			r.Use(IdentityVerifier)
			r.Get("/", ListChannels)
			r.Post("/", CreateChannel)
		})

		api.Route("/messages", func(r chi.Router) {
			r.Use(IdentityVerifier)
			r.Get("/", ListMessages)
			r.Post("/", CreateMessage)
		})

		// the presence snapshot is readable without authentication;
		// only joining the scope (the websocket) requires an identity
		api.Get("/presence", GetPresence)
	})

	r.Handle("/metrics", promhttp.Handler())

	var websocketPath string
	if cfg.BehindNginx {
		websocketPath = "/ws/"
	} else {
		websocketPath = "/ws"
	}

	r.With(IdentityVerifier).Get(websocketPath, HandleWebSocket)

	return r
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		sugar.Error(err)
	}
}

// writeError maps the error taxonomy onto status codes: validation and
// authorization failures are terminal for the single operation and
// reported inline; transient store trouble tells the client to retry.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case apperr.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case apperr.IsAuthorization(err):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case apperr.IsTransient(err):
		sugar.Error(err)
		http.Error(w, "store temporarily unavailable", http.StatusServiceUnavailable)
	default:
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
	}
}
