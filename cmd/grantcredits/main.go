package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// grantcredits posts a manual ledger adjustment from the command line, for
// support comps and balance corrections when the admin API is not at hand.
func main() {
	var (
		email  = flag.String("email", "", "user email (alternative to -user)")
		userID = flag.String("user", "", "user id")
		amount = flag.Int64("amount", 0, "credits to add (negative to remove)")
		note   = flag.String("note", "manual grant", "note stored in the ledger meta")
	)
	flag.Parse()

	if *amount == 0 {
		fmt.Fprintln(os.Stderr, "grantcredits: -amount must be non-zero")
		os.Exit(2)
	}
	if *email == "" && *userID == "" {
		fmt.Fprintln(os.Stderr, "grantcredits: one of -email or -user is required")
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "grantcredits: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv, "grantcredits")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	target := *userID
	if target == "" {
		var u domain.User
		row := runner.QueryRow(ctx, sqlinline.QSelectUserByEmail, *email)
		err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.Locale, &u.Role,
			&u.Credits, &u.DollarToCreditPct, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				logger.Fatal().Str("email", *email).Msg("user not found")
			}
			logger.Fatal().Err(err).Msg("user lookup failed")
		}
		target = u.ID
	}

	svc := credits.NewService(runner, logger)
	balance, err := svc.AddCredits(ctx, target, *amount, domain.LedgerReasonAdjust, credits.Meta{Note: *note})
	if err != nil {
		logger.Fatal().Err(err).Str("user_id", target).Msg("adjustment failed")
	}

	fmt.Printf("user %s adjusted by %d, balance now %d\n", target, *amount, balance)
}
