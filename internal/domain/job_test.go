package domain

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to JobStatus }{
		{JobStatusDraft, JobStatusQueued},
		{JobStatusDraft, JobStatusError},
		{JobStatusQueued, JobStatusProcessing},
		{JobStatusQueued, JobStatusDone},
		{JobStatusQueued, JobStatusError},
		{JobStatusProcessing, JobStatusProcessing},
		{JobStatusProcessing, JobStatusDone},
		{JobStatusProcessing, JobStatusError},
		{JobStatusDone, JobStatusQueued},
		{JobStatusError, JobStatusQueued},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to JobStatus }{
		{JobStatusDone, JobStatusProcessing},
		{JobStatusDone, JobStatusError},
		{JobStatusDone, JobStatusDone},
		{JobStatusError, JobStatusDone},
		{JobStatusError, JobStatusProcessing},
		{JobStatusDraft, JobStatusDone},
		{JobStatusDraft, JobStatusProcessing},
		{JobStatusQueued, JobStatusDraft},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be rejected", tc.from, tc.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for status, want := range map[JobStatus]bool{
		JobStatusDraft:      false,
		JobStatusQueued:     false,
		JobStatusProcessing: false,
		JobStatusDone:       true,
		JobStatusError:      true,
	} {
		if got := status.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s): got %v, want %v", status, got, want)
		}
	}
}
