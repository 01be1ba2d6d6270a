package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v72/client"

	"server/internal/credits"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	appmw "server/internal/middleware"
	"server/internal/providers/heygen"
	"server/internal/reconcile"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	var lookup appmw.CountryLookup
	if resolver, err := geoip.Open(cfg.GeoIPDBPath); err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, country tagging disabled")
	} else if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	stripeAPI := client.New(cfg.StripeSecretKey, nil)
	heygenClient := heygen.NewClient(heygen.Options{
		APIKey:  cfg.HeygenAPIKey,
		BaseURL: cfg.HeygenBaseURL,
	})

	creditSvc := credits.NewService(runner, logger)
	reconciler := &reconcile.Reconciler{
		SQL:                         runner,
		Credits:                     creditSvc,
		Logger:                      logger,
		CreditPriceUSDCents:         cfg.CreditPriceUSDCents,
		HeygenCostUSDCentsPerCredit: cfg.HeygenCostUSDCentsPerCredit,
	}

	app := &handlers.App{
		SQL:      runner,
		Logger:   logger,
		Config:   cfg,
		Credits:  creditSvc,
		Recon:    reconciler,
		Heygen:   heygenClient,
		Checkout: handlers.NewStripeCheckout(stripeAPI),
	}

	router := httpapi.NewRouter(app, lookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
