package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"server/internal/sqlinline"
)

type ledgerEntryDTO struct {
	ID           string          `json:"id"`
	Amount       int64           `json:"amount"`
	Reason       string          `json:"reason"`
	BalanceAfter int64           `json:"balance_after"`
	EventKey     string          `json:"event_key,omitempty"`
	Meta         json.RawMessage `json:"meta,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CreditsBalance returns the cached balance together with the ledger sum, so
// a client (or an operator with curl) can spot drift without admin access.
func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	ctx := r.Context()

	var email string
	var credits int64
	var rest struct {
		name, picture, locale, role string
		pct                         int
		createdAt, updatedAt        time.Time
	}
	row := a.SQL.QueryRow(ctx, sqlinline.QSelectUserByID, userID)
	if err := row.Scan(&userID, &email, &rest.name, &rest.picture, &rest.locale, &rest.role,
		&credits, &rest.pct, &rest.createdAt, &rest.updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			a.error(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		a.Logger.Error().Err(err).Msg("load user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}

	var ledgerSum int64
	row = a.SQL.QueryRow(ctx, sqlinline.QSumLedgerForUser, userID)
	if err := row.Scan(&ledgerSum); err != nil {
		a.Logger.Error().Err(err).Msg("sum ledger failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}

	a.json(w, http.StatusOK, map[string]any{
		"credits":              credits,
		"ledger_sum":           ledgerSum,
		"dollar_to_credit_pct": rest.pct,
	})
}

// CreditsLedger returns the caller's recent ledger entries, newest first.
func (a *App) CreditsLedger(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := a.SQL.Query(r.Context(), sqlinline.QListLedgerForUser, userID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list ledger failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list ledger")
		return
	}
	defer rows.Close()

	out := make([]ledgerEntryDTO, 0, limit)
	for rows.Next() {
		var e ledgerEntryDTO
		if err := rows.Scan(&e.ID, &e.Amount, &e.Reason, &e.BalanceAfter, &e.EventKey, &e.Meta, &e.CreatedAt); err != nil {
			a.Logger.Error().Err(err).Msg("scan ledger row failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to list ledger")
			return
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate ledger rows failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list ledger")
		return
	}

	a.json(w, http.StatusOK, map[string]any{"entries": out})
}
