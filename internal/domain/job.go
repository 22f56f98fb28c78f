package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusAccepted           JobStatus = "accepted"
	JobStatusRunning            JobStatus = "running"
	JobStatusRunningWithErrors  JobStatus = "running_with_errors"
	JobStatusPaused             JobStatus = "paused"
	JobStatusPreviewing         JobStatus = "previewing"
	JobStatusSuccessful         JobStatus = "successful"
	JobStatusCompleteWithErrors JobStatus = "complete_with_errors"
	JobStatusFailed             JobStatus = "failed"
	JobStatusCanceled           JobStatus = "canceled"
)

var terminalJobStatuses = map[JobStatus]bool{
	JobStatusSuccessful:         true,
	JobStatusCompleteWithErrors: true,
	JobStatusFailed:             true,
	JobStatusCanceled:           true,
}

func (s JobStatus) Terminal() bool { return terminalJobStatuses[s] }

// ActiveJobStatuses are the job states whose work items are dispatchable.
var ActiveJobStatuses = []JobStatus{
	JobStatusAccepted,
	JobStatusRunning,
	JobStatusRunningWithErrors,
	JobStatusPreviewing,
}

// DefaultMessages are the canonical user-visible strings per status. A job
// whose message still carries the default for a previous status gets the new
// default substituted on transition.
var DefaultMessages = map[JobStatus]string{
	JobStatusAccepted:           "The job has been accepted and is waiting to be processed",
	JobStatusRunning:            "The job is being processed",
	JobStatusRunningWithErrors:  "The job is being processed with errors",
	JobStatusPaused:             "The job is paused",
	JobStatusPreviewing:         "The job is generating a preview before auto-pausing",
	JobStatusSuccessful:         "The job has completed successfully",
	JobStatusCompleteWithErrors: "The job has completed with errors",
	JobStatusFailed:             "The job failed with an unknown error",
	JobStatusCanceled:           "The job was canceled",
}

// MaxStringFieldLength bounds job.message and job.request before persistence.
const MaxStringFieldLength = 4096

var requestURLPattern = regexp.MustCompile(`^https?://.+$`)

type Job struct {
	ID                int64          `gorm:"primaryKey;autoIncrement" json:"-"`
	JobID             uuid.UUID      `gorm:"type:uuid;column:job_id;uniqueIndex;not null" json:"jobID"`
	Username          string         `gorm:"not null;index" json:"username"`
	Status            JobStatus      `gorm:"not null;index;default:accepted" json:"status"`
	Message           string         `gorm:"size:4096" json:"message"`
	Progress          int            `gorm:"not null;default:0" json:"progress"`
	BatchesCompleted  int            `gorm:"not null;default:0" json:"-"`
	NumInputGranules  int            `gorm:"not null;default:0" json:"numInputGranules"`
	CollectionIDs     datatypes.JSON `gorm:"column:collection_ids" json:"-"`
	IsAsync           bool           `gorm:"not null;default:true" json:"isAsync"`
	IgnoreErrors      bool           `gorm:"not null;default:false" json:"-"`
	Preview           bool           `gorm:"not null;default:false" json:"-"`
	Request           string         `gorm:"size:4096" json:"request"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"createdAt"`
	UpdatedAt         time.Time      `gorm:"not null;index" json:"updatedAt"`

	Links []JobLink `gorm:"-" json:"links,omitempty"`
}

func (Job) TableName() string { return "jobs" }

func (j *Job) Collections() []string {
	var out []string
	if len(j.CollectionIDs) == 0 {
		return out
	}
	_ = json.Unmarshal(j.CollectionIDs, &out)
	return out
}

func (j *Job) SetCollections(ids []string) {
	if ids == nil {
		ids = []string{}
	}
	b, _ := json.Marshal(ids)
	j.CollectionIDs = datatypes.JSON(b)
}

// Validate enforces entity-level invariants before any write.
func (j *Job) Validate() error {
	if j.Progress < 0 || j.Progress > 100 {
		return fmt.Errorf("Job record is invalid: progress must be between 0 and 100")
	}
	if j.Request != "" && !requestURLPattern.MatchString(j.Request) {
		return fmt.Errorf("Job record is invalid: invalid request URL %q", j.Request)
	}
	if _, ok := DefaultMessages[j.Status]; !ok {
		return fmt.Errorf("Job record is invalid: unknown status %q", j.Status)
	}
	return nil
}

// Truncate caps free-text fields at the persistence limit.
func Truncate(s string) string {
	if len(s) <= MaxStringFieldLength {
		return s
	}
	return s[:MaxStringFieldLength]
}
