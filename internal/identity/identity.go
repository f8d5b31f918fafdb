package identity

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"teamchat-backend/internal/apperr"
	"teamchat-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// The identity gateway is an external collaborator: it issues signed
// tokens carrying the principal's id and display profile. This package
// only verifies them and hands the principal to the rest of the
// service; it never authenticates anyone itself.

type IdentityToken struct {
	UserID      int64  `json:"userID"`
	DisplayName string `json:"displayName"`
	AvatarUrl   string `json:"avatarUrl"`
	jwt.RegisteredClaims
}

var jwtSecret []byte
var isHttps bool

func Setup(_key string, _isHttps bool) {
	jwtSecret = []byte(_key)
	isHttps = _isHttps
}

// CreateToken mints a gateway-compatible cookie. Used by the dev
// client and tests; production deployments receive cookies minted by
// the real gateway with the same secret.
func CreateToken(principal models.Identity, lifetime time.Duration) (http.Cookie, error) {
	currentTime := time.Now().UTC()

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, IdentityToken{
		UserID:      principal.ID,
		DisplayName: principal.DisplayName,
		AvatarUrl:   principal.AvatarUrl,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(lifetime)),
		},
	})

	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		return http.Cookie{}, err
	}

	cookie := http.Cookie{
		Name:     "JWT",
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		Secure:   isHttps,
		SameSite: http.SameSiteLaxMode,
		Expires:  currentTime.Add(lifetime),
	}

	return cookie, nil
}

func VerifyToken(tokenString string) (models.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityToken{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})
	if err != nil {
		return models.Identity{}, apperr.Authorization("couldn't verify identity token")
	}

	claims, ok := token.Claims.(*IdentityToken)
	if !ok {
		return models.Identity{}, apperr.Authorization("invalid identity token")
	}

	if claims.ExpiresAt != nil && time.Now().UTC().After(claims.ExpiresAt.UTC()) {
		return models.Identity{}, apperr.Authorization("identity token expired")
	}

	return models.Identity{
		ID:          claims.UserID,
		DisplayName: claims.DisplayName,
		AvatarUrl:   claims.AvatarUrl,
	}, nil
}

// FromRequest extracts the authenticated principal from the JWT cookie
// or, failing that, a bearer Authorization header.
func FromRequest(r *http.Request) (models.Identity, error) {
	jwtCookie, err := r.Cookie("JWT")
	if err == nil {
		return VerifyToken(jwtCookie.Value)
	}
	if !errors.Is(err, http.ErrNoCookie) {
		return models.Identity{}, apperr.Authorization("couldn't read identity cookie")
	}

	header := r.Header.Get("Authorization")
	if token, found := strings.CutPrefix(header, "Bearer "); found {
		return VerifyToken(token)
	}

	return models.Identity{}, apperr.Authorization("no identity token was provided")
}
