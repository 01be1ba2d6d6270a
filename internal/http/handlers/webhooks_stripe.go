package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/middleware"
	"server/internal/sqlinline"
)

const stripeWebhookMaxBody = 1 << 20

// StripeWebhook handles checkout.session.completed and credits the buyer.
// The grant is keyed on the checkout session id, so Stripe redeliveries and
// operator replays are no-ops.
func (a *App) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, stripeWebhookMaxBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read payload")
		return
	}

	var event stripe.Event
	if a.Config.StripeWebhookSecret != "" {
		event, err = webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), a.Config.StripeWebhookSecret)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("stripe webhook signature rejected")
			a.error(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
			return
		}
	} else if err := json.Unmarshal(payload, &event); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	if event.Type != "checkout.session.completed" {
		a.json(w, http.StatusOK, map[string]string{"status": "ignored", "type": event.Type})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid session payload")
		return
	}
	if session.ID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "session id missing")
		return
	}

	userID, pct, err := a.resolveBuyer(r, &session)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.Logger.Warn().Str("session_id", session.ID).Msg("stripe session without resolvable buyer")
			a.error(w, http.StatusBadRequest, "bad_request", "buyer not resolvable")
			return
		}
		a.Logger.Error().Err(err).Str("session_id", session.ID).Msg("resolve buyer failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve buyer")
		return
	}

	creditsBought := a.sessionCredits(&session)
	if creditsBought <= 0 {
		a.Logger.Warn().Str("session_id", session.ID).Int64("amount_total", session.AmountTotal).Msg("stripe session maps to zero credits")
		a.error(w, http.StatusBadRequest, "bad_request", "session maps to zero credits")
		return
	}
	granted := creditsBought * int64(pct) / 100

	country := middleware.CountryFromContext(r.Context())
	meta := credits.Meta{
		EventKey:        "stripe:" + session.ID,
		Vendor:          string(domain.VendorStripe),
		StripeSessionID: session.ID,
		StripeEventID:   event.ID,
		AmountUSDCents:  session.AmountTotal,
		Country:         country,
	}

	balance, err := a.Credits.AddCredits(r.Context(), userID, granted, domain.LedgerReasonPurchase, meta)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) {
			a.json(w, http.StatusOK, map[string]string{"status": "duplicate", "session_id": session.ID})
			return
		}
		a.Logger.Error().Err(err).Str("session_id", session.ID).Msg("credit grant failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to grant credits")
		return
	}

	if err := a.Credits.RecordVendorEntry(r.Context(), credits.VendorEntry{
		UserID:        userID,
		Type:          domain.VendorLedgerPurchase,
		Vendor:        domain.VendorStripe,
		Credits:       granted,
		VendorCostUSD: credits.CentsUSD(0),
		RevenueUSD:    credits.CentsUSD(session.AmountTotal),
		Meta:          meta,
	}); err != nil {
		a.Logger.Error().Err(err).Str("session_id", session.ID).Msg("vendor ledger entry failed")
	}

	a.Logger.Info().
		Str("user_id", userID).
		Str("session_id", session.ID).
		Int64("credits", granted).
		Int64("balance", balance).
		Msg("purchase credited")
	a.json(w, http.StatusOK, map[string]any{"status": "applied", "credits": granted, "balance": balance})
}

// resolveBuyer maps the checkout session to a user id and payout rate. The
// user_id metadata set at session creation wins; a session created outside
// the API (payment link, dashboard) falls back to the customer email, creating
// the account on first purchase.
func (a *App) resolveBuyer(r *http.Request, session *stripe.CheckoutSession) (string, int, error) {
	ctx := r.Context()

	if id := session.Metadata["user_id"]; id != "" {
		var userID, email, name, picture, locale, role string
		var balance int64
		var pct int
		var createdAt, updatedAt any
		row := a.SQL.QueryRow(ctx, sqlinline.QSelectUserByID, id)
		err := row.Scan(&userID, &email, &name, &picture, &locale, &role, &balance, &pct, &createdAt, &updatedAt)
		if err == nil {
			return userID, pct, nil
		}
		a.Logger.Warn().Err(err).Str("user_id", id).Msg("metadata user not found, trying email")
	}

	email := session.CustomerEmail
	if email == "" && session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}
	if email == "" {
		return "", 0, domain.ErrNotFound
	}

	var userID, outEmail, name, role string
	var balance int64
	var pct int
	row := a.SQL.QueryRow(ctx, sqlinline.QUpsertUserByEmail, email, "", "", "pt", domain.DefaultDollarToCreditPct)
	if err := row.Scan(&userID, &outEmail, &name, &role, &balance, &pct); err != nil {
		return "", 0, err
	}
	return userID, pct, nil
}

// sessionCredits derives how many credits the session bought. Metadata set by
// CheckoutCreate wins, then the configured pack price, then the paid amount at
// the per-credit rate.
func (a *App) sessionCredits(session *stripe.CheckoutSession) int64 {
	if raw := session.Metadata["credits"]; raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	if raw := session.Metadata["price_id"]; raw != "" && raw == a.Config.StripeCreditPackPriceID {
		return a.Config.CreditPackCredits
	}
	if a.Config.CreditPriceUSDCents > 0 {
		return session.AmountTotal / a.Config.CreditPriceUSDCents
	}
	return 0
}
