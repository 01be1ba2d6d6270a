package domain

import "time"

// JobType enumerates supported HeyGen job categories.
type JobType string

const (
	JobTypeAvatarVideo    JobType = "avatar_video"
	JobTypeVideoTranslate JobType = "video_translate"
	JobTypePhotoAvatar    JobType = "photo_avatar"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusDraft      JobStatus = "draft"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether the status ends a vendor attempt.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// allowedTransitions is the job state machine. Terminal states are sticky
// against stale or duplicate webhook deliveries; the only way out of done or
// error is an explicit re-queue by a new user action.
var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusDraft:      {JobStatusQueued: true, JobStatusError: true},
	JobStatusQueued:     {JobStatusProcessing: true, JobStatusDone: true, JobStatusError: true},
	JobStatusProcessing: {JobStatusProcessing: true, JobStatusDone: true, JobStatusError: true},
	JobStatusDone:       {JobStatusQueued: true},
	JobStatusError:      {JobStatusQueued: true},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	return allowedTransitions[from][to]
}

// Job represents one video-generation, translation or photo-avatar request.
type Job struct {
	ID               string
	UserID           string
	Type             JobType
	Status           JobStatus
	EstimatedCredits int64
	ActualCredits    *int64
	HeygenVideoID    string
	TranslateID      string
	ProviderJobID    string
	ResultURL        string
	ErrorMessage     string
	VendorCostUSD    *string
	Params           []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
