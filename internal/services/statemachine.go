package services

import (
	types "github.com/eosdis/harmony-workflow/internal/domain"
	"github.com/eosdis/harmony-workflow/internal/platform/apierr"
)

type JobEvent string

const (
	EventCreate             JobEvent = "CREATE"
	EventDispatch           JobEvent = "DISPATCH"
	EventWorkSucceeded      JobEvent = "WORK_SUCCEEDED"
	EventWorkFailed         JobEvent = "WORK_FAILED"
	EventWorkItemUpdate     JobEvent = "WORK_ITEM_UPDATE"
	EventCancel             JobEvent = "CANCEL"
	EventPause              JobEvent = "PAUSE"
	EventResume             JobEvent = "RESUME"
	EventSkipPreview        JobEvent = "SKIP_PREVIEW"
	EventFail               JobEvent = "FAIL"
	EventComplete           JobEvent = "COMPLETE"
	EventCompleteWithErrors JobEvent = "COMPLETE_WITH_ERRORS"
)

// ApplyOptions tune event application for callers that need idempotent
// repeats or an explicit target message.
type ApplyOptions struct {
	// Message replaces the job message when non-empty; otherwise the
	// canonical default for the new status applies.
	Message string
	// IgnoreRepeats accepts a CANCEL of an already canceled job as a no-op
	// instead of a conflict.
	IgnoreRepeats bool
}

// ApplyEvent validates the transition for job's current status and mutates
// the in-memory job to the new status, applying default-message substitution
// and the progress rule for SUCCESSFUL. The caller persists the result; it
// must hold the job row lock when racing other writers.
func ApplyEvent(job *types.Job, event JobEvent, opts ApplyOptions) error {
	if job.Status.Terminal() {
		if event == EventCancel && job.Status == types.JobStatusCanceled && opts.IgnoreRepeats {
			return nil
		}
		return apierr.Conflict("Job status cannot be updated from %s via %s", job.Status, event)
	}

	next, err := nextStatus(job, event)
	if err != nil {
		return err
	}

	prev := job.Status
	job.Status = next
	if opts.Message != "" {
		job.Message = types.Truncate(opts.Message)
	} else if job.Message == "" || job.Message == types.DefaultMessages[prev] {
		job.Message = types.DefaultMessages[next]
	}
	if next == types.JobStatusSuccessful {
		job.Progress = 100
	}
	return nil
}

func nextStatus(job *types.Job, event JobEvent) (types.JobStatus, error) {
	switch event {
	case EventDispatch:
		if job.Status == types.JobStatusAccepted {
			if job.Preview {
				return types.JobStatusPreviewing, nil
			}
			return types.JobStatusRunning, nil
		}
	case EventPause:
		switch job.Status {
		case types.JobStatusAccepted, types.JobStatusRunning, types.JobStatusRunningWithErrors, types.JobStatusPreviewing:
			return types.JobStatusPaused, nil
		}
	case EventCancel:
		switch job.Status {
		case types.JobStatusAccepted, types.JobStatusRunning, types.JobStatusRunningWithErrors,
			types.JobStatusPaused, types.JobStatusPreviewing:
			return types.JobStatusCanceled, nil
		}
	case EventWorkFailed, EventFail:
		switch job.Status {
		case types.JobStatusAccepted, types.JobStatusRunning, types.JobStatusRunningWithErrors, types.JobStatusPreviewing:
			if event == EventWorkFailed && job.IgnoreErrors {
				return types.JobStatusRunningWithErrors, nil
			}
			return types.JobStatusFailed, nil
		}
	case EventWorkSucceeded, EventWorkItemUpdate:
		switch job.Status {
		case types.JobStatusRunning, types.JobStatusRunningWithErrors, types.JobStatusPreviewing:
			return job.Status, nil
		}
	case EventComplete:
		switch job.Status {
		case types.JobStatusRunning, types.JobStatusPreviewing:
			return types.JobStatusSuccessful, nil
		case types.JobStatusRunningWithErrors:
			return types.JobStatusCompleteWithErrors, nil
		}
	case EventCompleteWithErrors:
		switch job.Status {
		case types.JobStatusRunning, types.JobStatusRunningWithErrors, types.JobStatusPreviewing:
			return types.JobStatusCompleteWithErrors, nil
		}
	case EventResume:
		if job.Status == types.JobStatusPaused {
			return types.JobStatusRunning, nil
		}
	case EventSkipPreview:
		if job.Status == types.JobStatusPreviewing {
			return types.JobStatusRunning, nil
		}
	}
	return "", apierr.Conflict("Job status cannot be updated from %s via %s", job.Status, event)
}

// userInvokableEvents are the events a job owner or admin can trigger over
// the API, in display order.
var userInvokableEvents = []JobEvent{EventCancel, EventPause, EventResume, EventSkipPreview}

// ValidEventsFor returns the user-invokable events applicable to the job's
// current status. The HTTP layer uses this to decide which actions to offer.
func ValidEventsFor(job *types.Job) []JobEvent {
	var out []JobEvent
	for _, ev := range userInvokableEvents {
		scratch := *job
		if _, err := nextStatus(&scratch, ev); err == nil {
			out = append(out, ev)
		}
	}
	return out
}
