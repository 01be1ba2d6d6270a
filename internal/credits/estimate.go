package credits

import (
	"encoding/json"
	"math"

	"server/internal/domain"
)

// Pricing heuristics for pre-deduction. Estimates are reconciled against the
// vendor-reported cost when the job finishes.
const (
	// avatar videos: one credit per started 30-second block.
	avatarVideoBlockSeconds = 30
	// translations: two credits per started minute of source video.
	translateBlockSeconds    = 60
	translateCreditsPerBlock = 2
	// photo avatar groups: flat rate per generated look.
	photoAvatarCreditsPerLook = 5

	defaultVideoSeconds = 60
)

// JobParams is the subset of a job's params payload the estimator reads.
type JobParams struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Quantity        int     `json:"quantity"`
}

// EstimateJobCredits returns the credit cost estimate for a job. Pure and
// deterministic: the same inputs always produce the same estimate, so it is
// safe to call again at refund time when a job never recorded one.
func EstimateJobCredits(jobType domain.JobType, durationSeconds float64, quantity int) int64 {
	if quantity <= 0 {
		quantity = 1
	}
	if durationSeconds <= 0 {
		durationSeconds = defaultVideoSeconds
	}
	switch jobType {
	case domain.JobTypeVideoTranslate:
		blocks := int64(math.Ceil(durationSeconds / translateBlockSeconds))
		if blocks < 1 {
			blocks = 1
		}
		return blocks * translateCreditsPerBlock * int64(quantity)
	case domain.JobTypePhotoAvatar:
		return photoAvatarCreditsPerLook * int64(quantity)
	default:
		blocks := int64(math.Ceil(durationSeconds / avatarVideoBlockSeconds))
		if blocks < 1 {
			blocks = 1
		}
		return blocks * int64(quantity)
	}
}

// EstimateFromParams derives an estimate from a job's stored params payload.
func EstimateFromParams(jobType domain.JobType, params []byte) int64 {
	var p JobParams
	if len(params) > 0 {
		_ = json.Unmarshal(params, &p)
	}
	return EstimateJobCredits(jobType, p.DurationSeconds, p.Quantity)
}
