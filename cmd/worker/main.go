package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/providers/heygen"
	"server/internal/reconcile"
	"server/internal/sqlinline"
)

const sweepBatchSize = 50

// sweeper finalizes jobs whose webhook never arrived: it polls the vendor and
// pushes the answer through the same reconciler the webhook handler uses.
type sweeper struct {
	runner *infra.SQLRunner
	heygen *heygen.Client
	recon  *reconcile.Reconciler
	logger zerolog.Logger

	staleAfter time.Duration
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	creditSvc := credits.NewService(runner, logger)
	s := &sweeper{
		runner: runner,
		heygen: heygen.NewClient(heygen.Options{APIKey: cfg.HeygenAPIKey, BaseURL: cfg.HeygenBaseURL}),
		recon: &reconcile.Reconciler{
			SQL:                         runner,
			Credits:                     creditSvc,
			Logger:                      logger,
			CreditPriceUSDCents:         cfg.CreditPriceUSDCents,
			HeygenCostUSDCentsPerCredit: cfg.HeygenCostUSDCentsPerCredit,
		},
		logger:     logger,
		staleAfter: cfg.WorkerStaleAfter,
	}

	logger.Info().
		Dur("interval", cfg.WorkerSweepInterval).
		Dur("stale_after", cfg.WorkerStaleAfter).
		Msg("worker: started")

	ticker := time.NewTicker(cfg.WorkerSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker: stopped")
			return
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("worker: sweep failed")
			}
		}
	}
}

func (s *sweeper) sweep(ctx context.Context) error {
	jobs, err := s.staleJobs(ctx)
	if err != nil {
		return err
	}
	for i := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.finalize(ctx, &jobs[i])
	}
	return nil
}

func (s *sweeper) staleJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.runner.Query(ctx, sqlinline.QSelectStaleJobs, int(s.staleAfter.Minutes()), sweepBatchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var job domain.Job
		if err := rows.Scan(
			&job.ID, &job.UserID, &job.Type, &job.Status,
			&job.EstimatedCredits, &job.ActualCredits,
			&job.HeygenVideoID, &job.TranslateID, &job.ProviderJobID,
			&job.ResultURL, &job.ErrorMessage, &job.VendorCostUSD,
			&job.Params, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *sweeper) finalize(ctx context.Context, job *domain.Job) {
	var res heygen.StatusResult
	var err error
	switch {
	case job.Type == domain.JobTypeVideoTranslate && job.TranslateID != "":
		res, err = s.heygen.TranslateStatus(ctx, job.TranslateID)
	case job.HeygenVideoID != "":
		res, err = s.heygen.VideoStatus(ctx, job.HeygenVideoID)
	default:
		s.logger.Warn().Str("job_id", job.ID).Msg("worker: stale job has no vendor id")
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("worker: vendor poll failed")
		return
	}

	disposition, err := s.recon.Apply(ctx, job, reconcile.PollToEvent(job, res))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return
		}
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: reconcile failed")
		return
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("vendor_status", res.Status).
		Str("disposition", string(disposition)).
		Msg("worker: stale job swept")
}
