package handlers

import (
	"errors"
	"io"
	"net/http"

	"server/internal/domain"
	"server/internal/providers/heygen"
)

const heygenWebhookMaxBody = 1 << 20

// HeygenWebhook receives job lifecycle events from HeyGen and folds them into
// the job table and the credit ledger. Unknown or unmatchable events return
// 200 so the vendor stops retrying; only transport-level problems return
// non-2xx.
func (a *App) HeygenWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, heygenWebhookMaxBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read payload")
		return
	}

	if !heygen.VerifySignature(a.Config.HeygenWebhookSecret, payload, r.Header.Get("X-Heygen-Signature")) {
		a.Logger.Warn().Msg("heygen webhook signature rejected")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
		return
	}

	ev, err := heygen.ParseWebhook(payload)
	if err != nil {
		if errors.Is(err, heygen.ErrEmptyEvent) {
			a.json(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "empty event"})
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	job, err := a.Recon.ResolveJob(r.Context(), ev, r.URL.Query().Get("job_id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.Logger.Warn().
				Str("event_type", ev.Type).
				Str("video_id", ev.VideoID).
				Str("callback_id", ev.CallbackID).
				Msg("heygen event matches no job")
			a.json(w, http.StatusOK, map[string]string{"status": "no_job"})
			return
		}
		a.Logger.Error().Err(err).Msg("resolve job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve job")
		return
	}

	disposition, err := a.Recon.Apply(r.Context(), job, ev)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("apply heygen event failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to apply event")
		return
	}

	a.json(w, http.StatusOK, map[string]string{
		"status": string(disposition),
		"job_id": job.ID,
	})
}
