package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/providers/heygen"
	"server/internal/sqlinline"
)

// Disposition describes what applying a vendor event did, for webhook
// responses and worker logs.
type Disposition string

const (
	DispositionApplied   Disposition = "applied"
	DispositionDuplicate Disposition = "duplicate"
	DispositionIgnored   Disposition = "ignored"
	DispositionNoJob     Disposition = "no_job"
)

// Reconciler maps asynchronous HeyGen events onto jobs and posts the
// resulting credit adjustments through the accounting service. The webhook
// handler and the worker sweep share one instance so both paths apply the
// same state machine and the same idempotency keys.
type Reconciler struct {
	SQL    infra.TxExecutor
	Credits *credits.Service
	Logger zerolog.Logger

	// CreditPriceUSDCents values consumed credits as revenue;
	// HeygenCostUSDCentsPerCredit prices them as vendor cost.
	CreditPriceUSDCents         int64
	HeygenCostUSDCentsPerCredit int64
}

// ResolveJob finds the job a vendor event refers to. Priority order:
// callback id (our job id), the hint from the webhook query string, then the
// vendor identifiers recorded at submission time.
func (r *Reconciler) ResolveJob(ctx context.Context, ev heygen.WebhookEvent, hintJobID string) (*domain.Job, error) {
	for _, id := range []string{ev.CallbackID, hintJobID} {
		if id == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		job, err := r.scanJob(r.SQL.QueryRow(ctx, sqlinline.QSelectJobByID, id))
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	lookups := []struct {
		query string
		ref   string
	}{
		{sqlinline.QSelectJobByHeygenVideoID, ev.VideoID},
		{sqlinline.QSelectJobByTranslateID, ev.TranslateID},
		{sqlinline.QSelectJobByProviderJobID, ev.TaskID},
	}
	for _, l := range lookups {
		if l.ref == "" {
			continue
		}
		job, err := r.scanJob(r.SQL.QueryRow(ctx, l.query, l.ref))
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrNotFound
}

// Apply folds one vendor event into the job and the ledgers.
func (r *Reconciler) Apply(ctx context.Context, job *domain.Job, ev heygen.WebhookEvent) (Disposition, error) {
	switch ev.Outcome {
	case heygen.OutcomeSucceeded:
		return r.finalizeSuccess(ctx, job, ev)
	case heygen.OutcomeFailed:
		return r.finalizeFailure(ctx, job, ev)
	case heygen.OutcomeProgress:
		return r.markProcessing(ctx, job)
	default:
		r.Logger.Info().Str("job_id", job.ID).Str("event_type", ev.Type).Msg("heygen event with unknown outcome ignored")
		return DispositionIgnored, nil
	}
}

func (r *Reconciler) markProcessing(ctx context.Context, job *domain.Job) (Disposition, error) {
	if !domain.CanTransition(job.Status, domain.JobStatusProcessing) {
		r.Logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("stale progress event ignored")
		return DispositionIgnored, nil
	}
	row := r.SQL.QueryRow(ctx, sqlinline.QUpdateJobStatus, job.ID, string(job.Status), string(domain.JobStatusProcessing), "")
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race against another delivery; nothing to do.
			return DispositionIgnored, nil
		}
		return DispositionIgnored, fmt.Errorf("mark processing: %w", err)
	}
	return DispositionApplied, nil
}

// finalizeFailure refunds the pre-deducted estimate and moves the job to
// error. The refund goes first: if the process dies in between, a redelivered
// event repeats the (idempotent) refund and then lands the status.
func (r *Reconciler) finalizeFailure(ctx context.Context, job *domain.Job, ev heygen.WebhookEvent) (Disposition, error) {
	if !domain.CanTransition(job.Status, domain.JobStatusError) {
		r.Logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("failure event for terminal job ignored")
		return DispositionIgnored, nil
	}

	refund := job.EstimatedCredits
	if refund <= 0 {
		refund = credits.EstimateFromParams(job.Type, job.Params)
	}

	duplicate := false
	if refund > 0 {
		_, err := r.Credits.AddCredits(ctx, job.UserID, refund, domain.LedgerReasonAdjust, credits.Meta{
			EventKey:      eventKey(ev, job, "refund"),
			JobID:         job.ID,
			Vendor:        string(domain.VendorHeygen),
			HeygenEventID: ev.EventID(),
			Note:          "refund after vendor failure",
		})
		switch {
		case errors.Is(err, domain.ErrDuplicateOperation):
			duplicate = true
		case err != nil:
			return DispositionIgnored, fmt.Errorf("refund job %s: %w", job.ID, err)
		}
	}

	row := r.SQL.QueryRow(ctx, sqlinline.QUpdateJobStatus, job.ID, string(job.Status), string(domain.JobStatusError), failureMessage(ev))
	var id string
	if err := row.Scan(&id); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return DispositionIgnored, fmt.Errorf("mark error: %w", err)
	}

	if duplicate {
		return DispositionDuplicate, nil
	}
	r.Logger.Info().Str("job_id", job.ID).Int64("refund", refund).Msg("job failed, estimate refunded")
	return DispositionApplied, nil
}

// finalizeSuccess settles the difference between the pre-deducted estimate
// and the vendor-reported actual cost, then records the consumption economics.
func (r *Reconciler) finalizeSuccess(ctx context.Context, job *domain.Job, ev heygen.WebhookEvent) (Disposition, error) {
	if !domain.CanTransition(job.Status, domain.JobStatusDone) {
		r.Logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("success event for terminal job ignored")
		return DispositionIgnored, nil
	}

	estimated := job.EstimatedCredits
	if estimated <= 0 {
		estimated = credits.EstimateFromParams(job.Type, job.Params)
	}
	actual := r.actualCredits(job, ev, estimated)
	delta := actual - estimated

	duplicate := false
	if delta != 0 {
		meta := credits.Meta{
			EventKey:      eventKey(ev, job, "final"),
			JobID:         job.ID,
			Vendor:        string(domain.VendorHeygen),
			HeygenEventID: ev.EventID(),
		}
		var err error
		if delta > 0 {
			meta.Note = "actual cost above estimate"
			_, err = r.Credits.AddCredits(ctx, job.UserID, -delta, domain.LedgerReasonSpend, meta)
		} else {
			meta.Note = "actual cost below estimate"
			_, err = r.Credits.AddCredits(ctx, job.UserID, -delta, domain.LedgerReasonAdjust, meta)
		}
		switch {
		case errors.Is(err, domain.ErrDuplicateOperation):
			duplicate = true
		case err != nil:
			return DispositionIgnored, fmt.Errorf("settle delta for job %s: %w", job.ID, err)
		}
	}

	vendorCost := credits.CreditsUSD(actual, r.HeygenCostUSDCentsPerCredit)
	row := r.SQL.QueryRow(ctx, sqlinline.QFinalizeJobSuccess, job.ID, string(job.Status), actual, ev.URL, vendorCost.String())
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Another delivery finalized the row first.
			return DispositionDuplicate, nil
		}
		return DispositionIgnored, fmt.Errorf("finalize job: %w", err)
	}

	if err := r.Credits.RecordVendorEntry(ctx, credits.VendorEntry{
		UserID:        job.UserID,
		Type:          domain.VendorLedgerConsumption,
		Vendor:        domain.VendorHeygen,
		Credits:       actual,
		VendorCostUSD: vendorCost,
		RevenueUSD:    credits.CreditsUSD(actual, r.CreditPriceUSDCents),
		Meta: credits.Meta{
			JobID:         job.ID,
			HeygenEventID: ev.EventID(),
		},
	}); err != nil {
		r.Logger.Error().Err(err).Str("job_id", job.ID).Msg("vendor ledger entry failed")
	}

	if duplicate {
		return DispositionDuplicate, nil
	}
	r.Logger.Info().
		Str("job_id", job.ID).
		Int64("estimated", estimated).
		Int64("actual", actual).
		Int64("delta", delta).
		Msg("job reconciled")
	return DispositionApplied, nil
}

// actualCredits derives the true job cost from the vendor event, falling back
// to the pre-deducted estimate when the vendor reports no usage.
func (r *Reconciler) actualCredits(job *domain.Job, ev heygen.WebhookEvent, estimated int64) int64 {
	if ev.CreditsUsed > 0 {
		return int64(ev.CreditsUsed + 0.5)
	}
	if ev.DurationSeconds > 0 {
		var p credits.JobParams
		if len(job.Params) > 0 {
			_ = json.Unmarshal(job.Params, &p)
		}
		return credits.EstimateJobCredits(job.Type, ev.DurationSeconds, p.Quantity)
	}
	return estimated
}

// PollToEvent converts a synchronous status poll into the webhook event shape
// so the worker sweep reuses the webhook reconciliation path.
func PollToEvent(job *domain.Job, res heygen.StatusResult) heygen.WebhookEvent {
	ev := heygen.WebhookEvent{
		Type:            res.Status,
		Outcome:         heygen.ClassifyStatus(res.Status),
		URL:             res.VideoURL,
		Message:         res.Error,
		DurationSeconds: res.DurationSeconds,
		VideoID:         job.HeygenVideoID,
		TranslateID:     job.TranslateID,
		TaskID:          job.ProviderJobID,
		CallbackID:      res.CallbackID,
	}
	return ev
}

func (r *Reconciler) scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	err := row.Scan(
		&job.ID, &job.UserID, &job.Type, &job.Status,
		&job.EstimatedCredits, &job.ActualCredits,
		&job.HeygenVideoID, &job.TranslateID, &job.ProviderJobID,
		&job.ResultURL, &job.ErrorMessage, &job.VendorCostUSD,
		&job.Params, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// eventKey builds the idempotency key for a terminal ledger movement. The
// vendor event id wins; jobs finalized by the poll sweep (no event id) key on
// the job itself, which is equivalent because a job settles at most once.
func eventKey(ev heygen.WebhookEvent, job *domain.Job, suffix string) string {
	id := ev.EventID()
	if id == "" {
		id = "job-" + job.ID
	}
	return "heygen:" + id + ":" + suffix
}

func failureMessage(ev heygen.WebhookEvent) string {
	if ev.Message != "" {
		return ev.Message
	}
	return "vendor reported failure (" + ev.Type + ")"
}
