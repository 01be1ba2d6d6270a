package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"server/internal/http/handlers"
	appmw "server/internal/middleware"
)

// NewRouter wires the full API surface. Webhooks and auth stay outside the
// session middleware; everything else requires a bearer token, and the admin
// subtree additionally requires the admin role claim.
func NewRouter(app *handlers.App, lookup appmw.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		appmw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		appmw.Logger(app.Logger),
		cors.New(cors.Options{
			AllowedOrigins:   app.Config.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}).Handler,
		appmw.RateLimit(app.Config.RateLimitPerMin, time.Minute),
		appmw.I18N("pt", lookup),
	)

	r.Get("/v1/healthz", app.Health)

	r.Post("/v1/auth/session", app.AuthSession)

	r.Route("/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", app.StripeWebhook)
		r.Post("/heygen", app.HeygenWebhook)
	})

	r.Group(func(r chi.Router) {
		r.Use(appmw.AuthJWT(app.Config.JWTSecret))

		r.Get("/v1/me", app.Me)

		r.Route("/v1/videos", func(r chi.Router) {
			r.Post("/", app.VideosCreate)
			r.Post("/{jobID}/translate", app.TranslationsCreate)
		})
		r.Post("/v1/avatars/photo", app.PhotoAvatarsCreate)

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Get("/", app.JobsList)
			r.Get("/{jobID}", app.JobGet)
		})

		r.Post("/v1/billing/checkout", app.CheckoutCreate)
		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/", app.CreditsBalance)
			r.Get("/ledger", app.CreditsLedger)
		})

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(appmw.RequireAdmin)
			r.Get("/economics", app.EconomicsSummary)
			r.Get("/users", app.UsersList)
			r.Post("/users/{userID}/rate", app.SetUserRate)
			r.Post("/reconcile", app.Reconcile)
			r.Post("/credits", app.AdjustCredits)
		})
	})

	return r
}
