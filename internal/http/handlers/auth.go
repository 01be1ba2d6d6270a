package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"server/internal/domain"
	"server/internal/middleware"
	"server/internal/sqlinline"
)

type sessionRequest struct {
	// Assertion is a short-lived JWT minted by the web frontend's identity
	// bridge, carrying the verified email/name/picture of the visitor.
	Assertion string `json:"assertion"`
}

type sessionResponse struct {
	Token string         `json:"token"`
	User  userProfileDTO `json:"user"`
}

type userProfileDTO struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	Role              string `json:"role"`
	Credits           int64  `json:"credits"`
	DollarToCreditPct int    `json:"dollar_to_credit_pct"`
}

type bridgeClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Locale  string `json:"locale"`
	jwt.RegisteredClaims
}

// AuthSession exchanges a frontend identity assertion for an API session.
// Users are created on first login, keyed by email.
func (a *App) AuthSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Assertion == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "assertion required")
		return
	}

	var claims bridgeClaims
	token, err := jwt.ParseWithClaims(req.Assertion, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(a.Config.AuthBridgeSecret), nil
	})
	if err != nil || !token.Valid || claims.Email == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid assertion")
		return
	}

	locale := claims.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}

	row := a.SQL.QueryRow(r.Context(), sqlinline.QUpsertUserByEmail,
		claims.Email, claims.Name, claims.Picture, locale, domain.DefaultDollarToCreditPct)
	var userID, email, name, role string
	var balance int64
	var pct int
	if err := row.Scan(&userID, &email, &name, &role, &balance, &pct); err != nil {
		a.Logger.Error().Err(err).Msg("upsert user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to persist user")
		return
	}

	session, err := middleware.SignSession(a.Config.JWTSecret, userID, role, locale, 24*time.Hour)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign session failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}

	a.json(w, http.StatusOK, sessionResponse{
		Token: session,
		User: userProfileDTO{
			ID:                userID,
			Email:             email,
			Name:              name,
			Role:              role,
			Credits:           balance,
			DollarToCreditPct: pct,
		},
	})
}

// Me returns the authenticated user's profile.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectUserByID, userID)
	var id, email, name, picture, locale, role string
	var balance int64
	var pct int
	var createdAt, updatedAt time.Time
	if err := row.Scan(&id, &email, &name, &picture, &locale, &role, &balance, &pct, &createdAt, &updatedAt); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	a.json(w, http.StatusOK, userProfileDTO{
		ID:                id,
		Email:             email,
		Name:              name,
		Role:              role,
		Credits:           balance,
		DollarToCreditPct: pct,
	})
}
