package heygen

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// Outcome classifies a webhook event or a polled status string.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeProgress  Outcome = "progress"
	OutcomeUnknown   Outcome = "unknown"
)

// WebhookEvent is the normalized form of a HeyGen callback, extracted from
// either the legacy flat payload or the v2 event_type/event_data envelope.
type WebhookEvent struct {
	Type            string
	Outcome         Outcome
	VideoID         string
	TranslateID     string
	TaskID          string
	CallbackID      string
	URL             string
	Message         string
	DurationSeconds float64
	CreditsUsed     float64
}

// EventID returns the best identifier for idempotency keys, in the same
// priority order used to resolve jobs.
func (e WebhookEvent) EventID() string {
	for _, id := range []string{e.VideoID, e.TranslateID, e.TaskID, e.CallbackID} {
		if id != "" {
			return id
		}
	}
	return ""
}

type webhookEnvelope struct {
	// v2 envelope
	EventType string `json:"event_type"`
	EventData struct {
		VideoID          string  `json:"video_id"`
		VideoTranslateID string  `json:"video_translate_id"`
		TaskID           string  `json:"task_id"`
		CallbackID       string  `json:"callback_id"`
		URL              string  `json:"url"`
		VideoURL         string  `json:"video_url"`
		Msg              string  `json:"msg"`
		Message          string  `json:"message"`
		Duration         float64 `json:"duration"`
		Credits          float64 `json:"credits"`
	} `json:"event_data"`

	// legacy flat payload
	Event      string  `json:"event"`
	Status     string  `json:"status"`
	TaskID     string  `json:"task_id"`
	VideoID    string  `json:"video_id"`
	CallbackID string  `json:"callback_id"`
	URL        string  `json:"url"`
	Msg        string  `json:"msg"`
	Duration   float64 `json:"duration"`
}

// ErrEmptyEvent is returned when a payload carries no event information at all.
var ErrEmptyEvent = errors.New("heygen: webhook payload carries no event")

// ParseWebhook decodes a webhook body into a normalized event. Unknown fields
// are ignored so new vendor payload versions degrade to OutcomeUnknown rather
// than erroring.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return WebhookEvent{}, err
	}

	ev := WebhookEvent{
		Type:            env.EventType,
		VideoID:         env.EventData.VideoID,
		TranslateID:     env.EventData.VideoTranslateID,
		TaskID:          env.EventData.TaskID,
		CallbackID:      env.EventData.CallbackID,
		URL:             env.EventData.URL,
		Message:         env.EventData.Msg,
		DurationSeconds: env.EventData.Duration,
		CreditsUsed:     env.EventData.Credits,
	}
	if ev.URL == "" {
		ev.URL = env.EventData.VideoURL
	}
	if ev.Message == "" {
		ev.Message = env.EventData.Message
	}

	// Legacy payloads put everything at the top level.
	if ev.Type == "" {
		ev.Type = env.Event
	}
	if ev.Type == "" {
		ev.Type = env.Status
	}
	if ev.VideoID == "" {
		ev.VideoID = env.VideoID
	}
	if ev.TaskID == "" {
		ev.TaskID = env.TaskID
	}
	if ev.CallbackID == "" {
		ev.CallbackID = env.CallbackID
	}
	if ev.URL == "" {
		ev.URL = env.URL
	}
	if ev.Message == "" {
		ev.Message = env.Msg
	}
	if ev.DurationSeconds == 0 {
		ev.DurationSeconds = env.Duration
	}

	if ev.Type == "" && ev.EventID() == "" {
		return WebhookEvent{}, ErrEmptyEvent
	}

	ev.Outcome = ClassifyStatus(ev.Type)
	return ev, nil
}

// ClassifyStatus maps vendor status/event strings onto an outcome. HeyGen has
// shipped several wordings over time; substring matching tolerates all of them.
func ClassifyStatus(status string) Outcome {
	s := strings.ToLower(status)
	switch {
	case s == "":
		return OutcomeUnknown
	case strings.Contains(s, "success"),
		strings.Contains(s, "succeed"),
		strings.Contains(s, "completed"),
		s == "done":
		return OutcomeSucceeded
	case strings.Contains(s, "fail"),
		strings.Contains(s, "error"),
		strings.Contains(s, "abort"):
		return OutcomeFailed
	case strings.Contains(s, "process"),
		strings.Contains(s, "pending"),
		strings.Contains(s, "running"),
		strings.Contains(s, "waiting"),
		strings.Contains(s, "progress"),
		strings.Contains(s, "queue"):
		return OutcomeProgress
	default:
		return OutcomeUnknown
	}
}

// VerifySignature checks the optional webhook signature: hex-encoded
// HMAC-SHA256 over the raw body. An empty secret disables verification.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
