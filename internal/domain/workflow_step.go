package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// WorkflowStep is one stage of a job's pipeline, identified by
// (job_id, step_index) with step_index values 1..N contiguous. The last step
// produces the job's result links.
type WorkflowStep struct {
	ID                  int64          `gorm:"primaryKey;autoIncrement"`
	JobID               uuid.UUID      `gorm:"type:uuid;column:job_id;not null;index:idx_workflow_steps_job_step,unique"`
	StepIndex           int            `gorm:"column:step_index;not null;index:idx_workflow_steps_job_step,unique"`
	ServiceID           string         `gorm:"column:service_id;not null;index"`
	WorkItemCount       int            `gorm:"column:work_item_count;not null;default:0"`
	HasAggregatedOutput bool           `gorm:"column:has_aggregated_output;not null;default:false"`
	Operation           datatypes.JSON `gorm:"column:operation"`
	CreatedAt           time.Time      `gorm:"not null"`
	UpdatedAt           time.Time      `gorm:"not null"`
}

func (WorkflowStep) TableName() string { return "workflow_steps" }

// IsQueryCmr reports whether this step is the granule-index query stage, the
// only stage that receives a maxCmrGranules hint with its work.
func (s *WorkflowStep) IsQueryCmr() bool {
	return strings.Contains(s.ServiceID, "query-cmr")
}
