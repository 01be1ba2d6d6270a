package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"

	"server/internal/credits"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/providers/heygen"
	"server/internal/reconcile"
)

// HeygenAPI is the vendor surface the handlers need; the concrete client
// lives in internal/providers/heygen.
type HeygenAPI interface {
	GenerateAvatarVideo(ctx context.Context, req heygen.GenerateVideoRequest) (string, error)
	TranslateVideo(ctx context.Context, req heygen.TranslateVideoRequest) (string, error)
	CreatePhotoAvatarGroup(ctx context.Context, req heygen.PhotoAvatarRequest) (string, error)
	VideoStatus(ctx context.Context, videoID string) (heygen.StatusResult, error)
	TranslateStatus(ctx context.Context, translateID string) (heygen.StatusResult, error)
}

// CheckoutCreator creates Stripe Checkout sessions.
type CheckoutCreator interface {
	NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeCheckout struct {
	api *client.API
}

// NewStripeCheckout wraps the stripe-go client as a CheckoutCreator.
func NewStripeCheckout(api *client.API) CheckoutCreator {
	return stripeCheckout{api: api}
}

func (s stripeCheckout) NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return s.api.CheckoutSessions.New(params)
}

// App bundles the dependencies the HTTP handlers share.
type App struct {
	SQL      infra.TxExecutor
	Logger   zerolog.Logger
	Config   *infra.Config
	Credits  *credits.Service
	Recon    *reconcile.Reconciler
	Heygen   HeygenAPI
	Checkout CheckoutCreator
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]string{"error": slug, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
