package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/stripe/stripe-go/v72"

	"server/internal/sqlinline"
)

type checkoutRequest struct {
	Credits int64 `json:"credits"`
}

// CheckoutCreate opens a Stripe Checkout session for a credit purchase.
// Without a requested amount the configured credit pack is sold; a custom
// amount is priced ad hoc at the configured per-credit rate. Credits are only
// granted when the checkout.session.completed webhook lands.
func (a *App) CheckoutCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var req checkoutRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Credits < 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "credits must be positive")
		return
	}
	creditsToBuy := req.Credits
	if creditsToBuy == 0 {
		creditsToBuy = a.Config.CreditPackCredits
	}

	var email string
	var name, picture, locale, role string
	var balance int64
	var pct int
	var createdAt, updatedAt any
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectUserByID, userID)
	if err := row.Scan(&userID, &email, &name, &picture, &locale, &role, &balance, &pct, &createdAt, &updatedAt); err != nil {
		a.Logger.Error().Err(err).Msg("load user for checkout failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start checkout")
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(a.Config.CheckoutSuccessURL),
		CancelURL:          stripe.String(a.Config.CheckoutCancelURL),
		CustomerEmail:      stripe.String(email),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.AddMetadata("user_id", userID)
	params.AddMetadata("credits", strconv.FormatInt(creditsToBuy, 10))

	if a.Config.StripeCreditPackPriceID != "" && creditsToBuy == a.Config.CreditPackCredits {
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(a.Config.StripeCreditPackPriceID),
			Quantity: stripe.Int64(1),
		}}
	} else {
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("usd"),
				UnitAmount: stripe.Int64(creditsToBuy * a.Config.CreditPriceUSDCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(strconv.FormatInt(creditsToBuy, 10) + " video credits"),
				},
			},
			Quantity: stripe.Int64(1),
		}}
	}

	session, err := a.Checkout.NewSession(params)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("stripe checkout session failed")
		a.error(w, http.StatusBadGateway, "provider_failure", "failed to create checkout session")
		return
	}

	a.Logger.Info().Str("user_id", userID).Str("session_id", session.ID).Int64("credits", creditsToBuy).Msg("checkout session created")
	a.json(w, http.StatusOK, map[string]any{
		"session_id":   session.ID,
		"checkout_url": session.URL,
		"credits":      creditsToBuy,
	})
}
