package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"server/internal/domain"
	"server/internal/providers/heygen"
	"server/internal/reconcile"
	"server/internal/sqlinline"
)

type jobDTO struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	Status           string          `json:"status"`
	EstimatedCredits int64           `json:"estimated_credits"`
	ActualCredits    *int64          `json:"actual_credits,omitempty"`
	ResultURL        string          `json:"result_url,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	Params           json.RawMessage `json:"params,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func jobToDTO(job *domain.Job) jobDTO {
	return jobDTO{
		ID:               job.ID,
		Type:             string(job.Type),
		Status:           string(job.Status),
		EstimatedCredits: job.EstimatedCredits,
		ActualCredits:    job.ActualCredits,
		ResultURL:        job.ResultURL,
		ErrorMessage:     job.ErrorMessage,
		Params:           job.Params,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	}
}

// JobGet returns one job owned by the caller. With ?refresh=1 and a pending
// status it synchronously polls the vendor and folds the answer through the
// same reconciliation path the webhook uses.
func (a *App) JobGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "jobID")

	job, err := a.loadUserJob(r, jobID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("load job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}

	if r.URL.Query().Get("refresh") == "1" && !job.Status.IsTerminal() {
		if refreshed, rerr := a.refreshJob(r, job); rerr != nil {
			a.Logger.Warn().Err(rerr).Str("job_id", job.ID).Msg("vendor poll failed, serving stored state")
		} else if refreshed != nil {
			job = refreshed
		}
	}

	a.json(w, http.StatusOK, jobToDTO(job))
}

// refreshJob polls the vendor for the job's current state and applies the
// result. Returns the re-read job, or nil when the job has no vendor id yet.
func (a *App) refreshJob(r *http.Request, job *domain.Job) (*domain.Job, error) {
	ctx := r.Context()

	var res heygen.StatusResult
	var err error
	switch {
	case job.Type == domain.JobTypeVideoTranslate && job.TranslateID != "":
		res, err = a.Heygen.TranslateStatus(ctx, job.TranslateID)
	case job.HeygenVideoID != "":
		res, err = a.Heygen.VideoStatus(ctx, job.HeygenVideoID)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := a.Recon.Apply(ctx, job, reconcile.PollToEvent(job, res)); err != nil {
		return nil, err
	}
	return a.loadUserJob(r, job.ID, job.UserID)
}

// JobsList returns the caller's recent jobs, newest first.
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	rows, err := a.SQL.Query(r.Context(), sqlinline.QListJobsForUser, userID, 100)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list jobs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	defer rows.Close()

	out := make([]jobDTO, 0, 16)
	for rows.Next() {
		var d jobDTO
		if err := rows.Scan(&d.ID, &d.Type, &d.Status, &d.EstimatedCredits, &d.ActualCredits,
			&d.ResultURL, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt); err != nil {
			a.Logger.Error().Err(err).Msg("scan job row failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
			return
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate job rows failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}

	a.json(w, http.StatusOK, map[string]any{"jobs": out})
}

func (a *App) loadUserJob(r *http.Request, jobID, userID string) (*domain.Job, error) {
	var job domain.Job
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectJobForUser, jobID, userID)
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
