package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/sqlinline"
)

// EconomicsSummary aggregates the vendor ledger into the platform P&L view.
func (a *App) EconomicsSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var revenueUSD, vendorCostUSD, marginUSD string
	var creditsSold, creditsConsumed int64
	row := a.SQL.QueryRow(ctx, sqlinline.QEconomicsSummary)
	if err := row.Scan(&revenueUSD, &vendorCostUSD, &marginUSD, &creditsSold, &creditsConsumed); err != nil {
		a.Logger.Error().Err(err).Msg("economics summary failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load economics")
		return
	}

	type vendorRow struct {
		Vendor        string `json:"vendor"`
		EntryType     string `json:"entry_type"`
		Entries       int64  `json:"entries"`
		Credits       int64  `json:"credits"`
		RevenueUSD    string `json:"revenue_usd"`
		VendorCostUSD string `json:"vendor_cost_usd"`
		MarginUSD     string `json:"margin_usd"`
	}
	byVendor := make([]vendorRow, 0, 4)
	rows, err := a.SQL.Query(ctx, sqlinline.QEconomicsByVendor)
	if err != nil {
		a.Logger.Error().Err(err).Msg("economics by vendor failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load economics")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var v vendorRow
		if err := rows.Scan(&v.Vendor, &v.EntryType, &v.Entries, &v.Credits, &v.RevenueUSD, &v.VendorCostUSD, &v.MarginUSD); err != nil {
			a.Logger.Error().Err(err).Msg("scan vendor economics failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load economics")
			return
		}
		byVendor = append(byVendor, v)
	}
	if err := rows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate vendor economics failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load economics")
		return
	}

	a.json(w, http.StatusOK, map[string]any{
		"revenue_usd":      revenueUSD,
		"vendor_cost_usd":  vendorCostUSD,
		"margin_usd":       marginUSD,
		"credits_sold":     creditsSold,
		"credits_consumed": creditsConsumed,
		"by_vendor":        byVendor,
	})
}

// UsersList returns the denormalized per-user summary rows.
func (a *App) UsersList(w http.ResponseWriter, r *http.Request) {
	rows, err := a.SQL.Query(r.Context(), sqlinline.QListUserSummaries, 500)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list user summaries failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list users")
		return
	}
	defer rows.Close()

	type summaryRow struct {
		UserID            string    `json:"user_id"`
		Email             string    `json:"email"`
		Name              string    `json:"name"`
		TotalCredits      int64     `json:"total_credits"`
		DollarToCreditPct int       `json:"dollar_to_credit_pct"`
		UpdatedAt         time.Time `json:"updated_at"`
	}
	out := make([]summaryRow, 0, 32)
	for rows.Next() {
		var s summaryRow
		if err := rows.Scan(&s.UserID, &s.Email, &s.Name, &s.TotalCredits, &s.DollarToCreditPct, &s.UpdatedAt); err != nil {
			a.Logger.Error().Err(err).Msg("scan user summary failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to list users")
			return
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate user summaries failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list users")
		return
	}

	a.json(w, http.StatusOK, map[string]any{"users": out})
}

type setRateRequest struct {
	DollarToCreditPct int `json:"dollar_to_credit_pct"`
}

// SetUserRate changes the purchase conversion percentage for one user.
func (a *App) SetUserRate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req setRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.DollarToCreditPct < 0 || req.DollarToCreditPct > 100 {
		a.error(w, http.StatusBadRequest, "bad_request", "dollar_to_credit_pct out of range")
		return
	}

	var pct int
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSetUserRate, userID, req.DollarToCreditPct)
	if err := row.Scan(&pct); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			a.error(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("set user rate failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to set rate")
		return
	}

	a.Logger.Info().Str("user_id", userID).Int("pct", pct).Msg("user rate updated")
	a.json(w, http.StatusOK, map[string]any{"user_id": userID, "dollar_to_credit_pct": pct})
}

// Reconcile scans for users whose cached balance drifted from the ledger sum
// and repairs them. With new writes funneled through the accounting
// transaction it normally reports zero drift.
func (a *App) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	type driftRow struct {
		UserID    string `json:"user_id"`
		Email     string `json:"email"`
		Cached    int64  `json:"cached"`
		LedgerSum int64  `json:"ledger_sum"`
		Repaired  int64  `json:"repaired"`
	}
	drifted := make([]driftRow, 0, 4)

	rows, err := a.SQL.Query(ctx, sqlinline.QLedgerDrift)
	if err != nil {
		a.Logger.Error().Err(err).Msg("drift scan failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to scan for drift")
		return
	}
	for rows.Next() {
		var d driftRow
		if err := rows.Scan(&d.UserID, &d.Email, &d.Cached, &d.LedgerSum); err != nil {
			rows.Close()
			a.Logger.Error().Err(err).Msg("scan drift row failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to scan for drift")
			return
		}
		drifted = append(drifted, d)
	}
	rerr := rows.Err()
	rows.Close()
	if rerr != nil {
		a.Logger.Error().Err(rerr).Msg("iterate drift rows failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to scan for drift")
		return
	}

	for i := range drifted {
		row := a.SQL.QueryRow(ctx, sqlinline.QRepairUserBalance, drifted[i].UserID)
		if err := row.Scan(&drifted[i].Repaired); err != nil {
			a.Logger.Error().Err(err).Str("user_id", drifted[i].UserID).Msg("balance repair failed")
			continue
		}
		a.Logger.Warn().
			Str("user_id", drifted[i].UserID).
			Int64("cached", drifted[i].Cached).
			Int64("ledger_sum", drifted[i].LedgerSum).
			Msg("balance drift repaired")
	}

	a.json(w, http.StatusOK, map[string]any{"drifted": len(drifted), "repairs": drifted})
}

type adminAdjustRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

// AdjustCredits posts a manual ledger adjustment (support comps, corrections).
func (a *App) AdjustCredits(w http.ResponseWriter, r *http.Request) {
	var req adminAdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.UserID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "user_id required")
		return
	}

	balance, err := a.Credits.AddCredits(r.Context(), req.UserID, req.Amount, domain.LedgerReasonAdjust, credits.Meta{
		Note: req.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount):
			a.error(w, http.StatusBadRequest, "bad_request", "amount must be non-zero")
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "user not found")
		default:
			a.Logger.Error().Err(err).Str("user_id", req.UserID).Msg("manual adjustment failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to adjust credits")
		}
		return
	}

	a.Logger.Info().Str("user_id", req.UserID).Int64("amount", req.Amount).Int64("balance", balance).Msg("manual credit adjustment")
	a.json(w, http.StatusOK, map[string]any{"user_id": req.UserID, "balance": balance})
}
