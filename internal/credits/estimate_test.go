package credits

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"server/internal/domain"
)

func TestEstimateJobCredits(t *testing.T) {
	cases := []struct {
		name     string
		jobType  domain.JobType
		duration float64
		quantity int
		want     int64
	}{
		{"avatar video single block", domain.JobTypeAvatarVideo, 20, 1, 1},
		{"avatar video exact block", domain.JobTypeAvatarVideo, 30, 1, 1},
		{"avatar video partial second block", domain.JobTypeAvatarVideo, 31, 1, 2},
		{"avatar video default duration", domain.JobTypeAvatarVideo, 0, 1, 2},
		{"translate under one minute", domain.JobTypeVideoTranslate, 45, 1, 2},
		{"translate two minutes", domain.JobTypeVideoTranslate, 120, 1, 4},
		{"translate default duration", domain.JobTypeVideoTranslate, 0, 1, 2},
		{"photo avatar per look", domain.JobTypePhotoAvatar, 0, 3, 15},
		{"photo avatar zero quantity", domain.JobTypePhotoAvatar, 0, 0, 5},
		{"negative duration falls back", domain.JobTypeAvatarVideo, -5, 1, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EstimateJobCredits(tc.jobType, tc.duration, tc.quantity))
		})
	}
}

func TestEstimateJobCreditsIsDeterministic(t *testing.T) {
	first := EstimateJobCredits(domain.JobTypeAvatarVideo, 95, 2)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, EstimateJobCredits(domain.JobTypeAvatarVideo, 95, 2))
	}
}

func TestEstimateFromParams(t *testing.T) {
	got := EstimateFromParams(domain.JobTypeVideoTranslate, []byte(`{"duration_seconds": 90, "quantity": 1}`))
	assert.Equal(t, int64(4), got)

	// Broken or missing params fall back to defaults rather than zero.
	assert.Equal(t, int64(2), EstimateFromParams(domain.JobTypeAvatarVideo, nil))
	assert.Equal(t, int64(2), EstimateFromParams(domain.JobTypeAvatarVideo, []byte(`not json`)))
}
