package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/providers/heygen"
	"server/internal/sqlinline"
)

type videoCreateRequest struct {
	AvatarID        string  `json:"avatar_id"`
	VoiceID         string  `json:"voice_id"`
	Script          string  `json:"script"`
	DurationSeconds float64 `json:"duration_seconds"`
	Dimension       string  `json:"dimension"`
}

type translateCreateRequest struct {
	OutputLanguage  string  `json:"output_language"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type photoAvatarCreateRequest struct {
	Name      string   `json:"name"`
	ImageKeys []string `json:"image_keys"`
}

type jobResponse struct {
	JobID            string `json:"job_id"`
	Status           string `json:"status"`
	EstimatedCredits int64  `json:"estimated_credits"`
	Balance          int64  `json:"balance"`
}

// vendorIDs carries whichever identifiers the submission returned.
type vendorIDs struct {
	heygenVideoID string
	translateID   string
	providerJobID string
}

// VideosCreate queues an avatar video generation: estimate, pre-deduct,
// submit to the vendor, record the vendor id. A failed submission refunds the
// pre-deduction and leaves the job in error.
func (a *App) VideosCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req videoCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.AvatarID == "" || req.Script == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "avatar_id and script required")
		return
	}

	estimate := credits.EstimateJobCredits(domain.JobTypeAvatarVideo, req.DurationSeconds, 1)
	params := map[string]any{
		"avatar_id":        req.AvatarID,
		"voice_id":         req.VoiceID,
		"duration_seconds": req.DurationSeconds,
		"dimension":        req.Dimension,
	}
	a.submitJob(w, r, userID, domain.JobTypeAvatarVideo, estimate, params, func(ctx context.Context, jobID string) (vendorIDs, error) {
		videoID, err := a.Heygen.GenerateAvatarVideo(ctx, heygen.GenerateVideoRequest{
			AvatarID:   req.AvatarID,
			VoiceID:    req.VoiceID,
			InputText:  req.Script,
			Dimension:  req.Dimension,
			CallbackID: jobID,
		})
		return vendorIDs{heygenVideoID: videoID}, err
	})
}

// TranslationsCreate queues a translation of a finished video job. The source
// job must belong to the caller and carry a result URL.
func (a *App) TranslationsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req translateCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.OutputLanguage == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "output_language required")
		return
	}

	source, err := a.loadUserJob(r, chi.URLParam(r, "jobID"), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "source job not found")
			return
		}
		a.Logger.Error().Err(err).Msg("load source job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load source job")
		return
	}
	if source.Status != domain.JobStatusDone || source.ResultURL == "" {
		a.error(w, http.StatusConflict, "conflict", "source job has no finished video yet")
		return
	}

	estimate := credits.EstimateJobCredits(domain.JobTypeVideoTranslate, req.DurationSeconds, 1)
	params := map[string]any{
		"source_job_id":    source.ID,
		"video_url":        source.ResultURL,
		"output_language":  req.OutputLanguage,
		"duration_seconds": req.DurationSeconds,
	}
	a.submitJob(w, r, userID, domain.JobTypeVideoTranslate, estimate, params, func(ctx context.Context, jobID string) (vendorIDs, error) {
		translateID, err := a.Heygen.TranslateVideo(ctx, heygen.TranslateVideoRequest{
			VideoURL:       source.ResultURL,
			OutputLanguage: req.OutputLanguage,
			Title:          req.Title,
			CallbackID:     jobID,
		})
		return vendorIDs{translateID: translateID}, err
	})
}

// PhotoAvatarsCreate queues a photo avatar group creation job.
func (a *App) PhotoAvatarsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req photoAvatarCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Name == "" || len(req.ImageKeys) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "name and image_keys required")
		return
	}

	estimate := credits.EstimateJobCredits(domain.JobTypePhotoAvatar, 0, len(req.ImageKeys))
	params := map[string]any{
		"name":     req.Name,
		"quantity": len(req.ImageKeys),
	}
	a.submitJob(w, r, userID, domain.JobTypePhotoAvatar, estimate, params, func(ctx context.Context, jobID string) (vendorIDs, error) {
		providerJobID, err := a.Heygen.CreatePhotoAvatarGroup(ctx, heygen.PhotoAvatarRequest{
			Name:       req.Name,
			ImageKeys:  req.ImageKeys,
			CallbackID: jobID,
		})
		return vendorIDs{providerJobID: providerJobID}, err
	})
}

// submitJob runs the common create flow: draft job, pre-deduct the estimate,
// call the vendor, queue on success, refund on failure.
func (a *App) submitJob(w http.ResponseWriter, r *http.Request, userID string, jobType domain.JobType, estimate int64, params map[string]any, submit func(ctx context.Context, jobID string) (vendorIDs, error)) {
	ctx := r.Context()
	paramsJSON, _ := json.Marshal(params)

	jobID := uuid.NewString()
	row := a.SQL.QueryRow(ctx, sqlinline.QInsertJob, jobID, userID, string(jobType), estimate, paramsJSON)
	if err := row.Scan(&jobID); err != nil {
		a.Logger.Error().Err(err).Msg("insert job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}

	balance, err := a.Credits.SpendCredits(ctx, userID, estimate, domain.LedgerReasonSpend, credits.Meta{
		JobID:  jobID,
		Vendor: string(domain.VendorHeygen),
		Note:   "pre-deduction",
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			a.markJobError(ctx, jobID, domain.JobStatusDraft, "insufficient credits")
			a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits for this job")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("pre-deduction failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to reserve credits")
		return
	}

	ids, err := submit(ctx, jobID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("vendor submission failed")
		if _, rerr := a.Credits.AddCredits(ctx, userID, estimate, domain.LedgerReasonAdjust, credits.Meta{
			JobID:  jobID,
			Vendor: string(domain.VendorHeygen),
			Note:   "refund after failed submission",
		}); rerr != nil {
			a.Logger.Error().Err(rerr).Str("job_id", jobID).Msg("submission refund failed")
		}
		a.markJobError(ctx, jobID, domain.JobStatusDraft, err.Error())
		a.error(w, http.StatusBadGateway, "provider_failure", "vendor rejected the job: "+err.Error())
		return
	}

	if _, err := a.SQL.Exec(ctx, sqlinline.QMarkJobQueued, jobID, ids.heygenVideoID, ids.translateID, ids.providerJobID); err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("mark queued failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		return
	}

	a.json(w, http.StatusAccepted, jobResponse{
		JobID:            jobID,
		Status:           string(domain.JobStatusQueued),
		EstimatedCredits: estimate,
		Balance:          balance,
	})
}

func (a *App) markJobError(ctx context.Context, jobID string, from domain.JobStatus, message string) {
	row := a.SQL.QueryRow(ctx, sqlinline.QUpdateJobStatus, jobID, string(from), string(domain.JobStatusError), message)
	var id string
	if err := row.Scan(&id); err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("mark job error failed")
	}
}
