package heygen

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookV2Envelope(t *testing.T) {
	body := []byte(`{
		"event_type": "avatar_video.success",
		"event_data": {
			"video_id": "vid-123",
			"callback_id": "4f1c0de2-76cf-4f87-9c7a-0c3a4049d12e",
			"url": "https://files.example.com/vid-123.mp4",
			"duration": 42.5,
			"credits": 2
		}
	}`)

	ev, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "avatar_video.success", ev.Type)
	assert.Equal(t, OutcomeSucceeded, ev.Outcome)
	assert.Equal(t, "vid-123", ev.VideoID)
	assert.Equal(t, "4f1c0de2-76cf-4f87-9c7a-0c3a4049d12e", ev.CallbackID)
	assert.Equal(t, "https://files.example.com/vid-123.mp4", ev.URL)
	assert.Equal(t, 42.5, ev.DurationSeconds)
	assert.Equal(t, float64(2), ev.CreditsUsed)
	assert.Equal(t, "vid-123", ev.EventID())
}

func TestParseWebhookV2TranslatePayload(t *testing.T) {
	body := []byte(`{
		"event_type": "video_translate.failed",
		"event_data": {
			"video_translate_id": "vt-9",
			"message": "source audio unusable"
		}
	}`)

	ev, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, ev.Outcome)
	assert.Equal(t, "vt-9", ev.TranslateID)
	assert.Equal(t, "source audio unusable", ev.Message)
	assert.Equal(t, "vt-9", ev.EventID())
}

func TestParseWebhookLegacyFlatPayload(t *testing.T) {
	body := []byte(`{
		"event": "video.completed",
		"video_id": "vid-7",
		"url": "https://files.example.com/vid-7.mp4",
		"duration": 61
	}`)

	ev, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, ev.Outcome)
	assert.Equal(t, "vid-7", ev.VideoID)
	assert.Equal(t, float64(61), ev.DurationSeconds)
}

func TestParseWebhookEmptyPayload(t *testing.T) {
	_, err := ParseWebhook([]byte(`{}`))
	assert.True(t, errors.Is(err, ErrEmptyEvent))

	_, err = ParseWebhook([]byte(`not json`))
	assert.Error(t, err)
}

func TestClassifyStatus(t *testing.T) {
	cases := map[string]Outcome{
		"":                        OutcomeUnknown,
		"success":                 OutcomeSucceeded,
		"avatar_video.success":    OutcomeSucceeded,
		"completed":               OutcomeSucceeded,
		"done":                    OutcomeSucceeded,
		"failed":                  OutcomeFailed,
		"video_translate.failed":  OutcomeFailed,
		"error":                   OutcomeFailed,
		"aborted":                 OutcomeFailed,
		"processing":              OutcomeProgress,
		"pending":                 OutcomeProgress,
		"waiting":                 OutcomeProgress,
		"in_queue":                OutcomeProgress,
		"avatar_video.gif.update": OutcomeUnknown,
	}
	for status, want := range cases {
		assert.Equal(t, want, ClassifyStatus(status), "status %q", status)
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec-test"
	body := []byte(`{"event_type":"avatar_video.success"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifySignature(secret, body, sig))
	assert.True(t, VerifySignature(secret, body, "sha256="+sig))
	assert.False(t, VerifySignature(secret, body, "deadbeef"))
	assert.False(t, VerifySignature(secret, body, ""))
	assert.False(t, VerifySignature(secret, []byte(`tampered`), sig))

	// No secret configured disables verification.
	assert.True(t, VerifySignature("", body, ""))
}
