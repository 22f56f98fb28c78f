package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type WorkItemStatus string

const (
	WorkItemStatusReady      WorkItemStatus = "ready"
	WorkItemStatusRunning    WorkItemStatus = "running"
	WorkItemStatusSuccessful WorkItemStatus = "successful"
	WorkItemStatusFailed     WorkItemStatus = "failed"
	WorkItemStatusCanceled   WorkItemStatus = "canceled"
)

func (s WorkItemStatus) Terminal() bool {
	return s == WorkItemStatusSuccessful || s == WorkItemStatusFailed || s == WorkItemStatusCanceled
}

// WorkItem is one unit of work at a workflow step, executed by exactly one
// external worker at a time. Its outputs feed only the step at
// workflow_step_index+1, or finalize the job when the step is terminal.
type WorkItem struct {
	ID                  int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID               uuid.UUID      `gorm:"type:uuid;column:job_id;not null;index" json:"jobID"`
	ServiceID           string         `gorm:"column:service_id;not null;index" json:"serviceID"`
	WorkflowStepIndex   int            `gorm:"column:workflow_step_index;not null" json:"workflowStepIndex"`
	Status              WorkItemStatus `gorm:"not null;index;default:ready" json:"status"`
	RetryCount          int            `gorm:"column:retry_count;not null;default:0" json:"retryCount"`
	StacCatalogLocation string         `gorm:"column:stac_catalog_location" json:"stacCatalogLocation,omitempty"`
	Results             datatypes.JSON `gorm:"column:results" json:"-"`
	OutputGranuleSizes  datatypes.JSON `gorm:"column:output_granule_sizes" json:"-"`
	ScrollID            string         `gorm:"column:scroll_id" json:"scrollID,omitempty"`
	Message             string         `gorm:"size:4096" json:"-"`
	StartedAt           *time.Time     `gorm:"column:started_at" json:"-"`
	DurationMs          int64          `gorm:"column:duration_ms;not null;default:0" json:"-"`
	CreatedAt           time.Time      `gorm:"not null;index" json:"-"`
	UpdatedAt           time.Time      `gorm:"not null;index" json:"-"`
}

func (WorkItem) TableName() string { return "work_items" }

func (w *WorkItem) ResultURIs() []string {
	var out []string
	if len(w.Results) == 0 {
		return out
	}
	_ = json.Unmarshal(w.Results, &out)
	return out
}

func (w *WorkItem) SetResultURIs(uris []string) {
	if uris == nil {
		uris = []string{}
	}
	b, _ := json.Marshal(uris)
	w.Results = datatypes.JSON(b)
}

func (w *WorkItem) SetOutputGranuleSizes(sizes []float64) {
	if sizes == nil {
		sizes = []float64{}
	}
	b, _ := json.Marshal(sizes)
	w.OutputGranuleSizes = datatypes.JSON(b)
}
