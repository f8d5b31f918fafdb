package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"teamchat-backend/internal/identity"
	"teamchat-backend/internal/keyValue"
	"teamchat-backend/internal/models"
)

type principalKeyType struct{}

// IdentityVerifier resolves the authenticated principal from the
// identity gateway token and hands it to the next handler via the
// request context. The principal's display profile is mirrored into
// the store (once per cache window) so feeds can join author names.
func IdentityVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := identity.FromRequest(r)
		if err != nil {
			sugar.Debug(err)
			writeError(w, err)
			return
		}

		key := fmt.Sprintf("identity_seen:%d:%s", principal.ID, principal.DisplayName)

		cached, err := keyValue.Get(key)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		if cached == "" {
			if err := db.UpsertIdentity(principal); err != nil {
				writeError(w, err)
				return
			}
			if err := keyValue.Set(key, "y", 15*time.Minute); err != nil {
				sugar.Error(err)
			}
		}

		ctx := context.WithValue(r.Context(), principalKeyType{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFrom(r *http.Request) models.Identity {
	principal, _ := r.Context().Value(principalKeyType{}).(models.Identity)
	return principal
}
