package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/eosdis/harmony-workflow/internal/domain"
)

func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, username string, status types.JobStatus) *types.Job {
	tb.Helper()
	j := &types.Job{
		JobID:            uuid.New(),
		Username:         username,
		Status:           status,
		Message:          types.DefaultMessages[status],
		NumInputGranules: 10,
		IsAsync:          true,
		Request:          "https://harmony.example.com/ogc-api-coverages",
	}
	j.SetCollections([]string{"C1-PROV"})
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}

// TouchJob pushes a job's updated_at to a fixed instant, useful for ordering
// assertions in fair-queue and reaper tests.
func TouchJob(tb testing.TB, ctx context.Context, tx *gorm.DB, jobID uuid.UUID, at time.Time) {
	tb.Helper()
	err := tx.WithContext(ctx).Model(&types.Job{}).
		Where("job_id = ?", jobID).
		Update("updated_at", at).Error
	if err != nil {
		tb.Fatalf("touch job: %v", err)
	}
}

func SeedStep(tb testing.TB, ctx context.Context, tx *gorm.DB, jobID uuid.UUID, index int, serviceID string, aggregated bool) *types.WorkflowStep {
	tb.Helper()
	s := &types.WorkflowStep{
		JobID:               jobID,
		StepIndex:           index,
		ServiceID:           serviceID,
		HasAggregatedOutput: aggregated,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed workflow step: %v", err)
	}
	return s
}

func SeedItem(tb testing.TB, ctx context.Context, tx *gorm.DB, jobID uuid.UUID, stepIndex int, serviceID string, status types.WorkItemStatus) *types.WorkItem {
	tb.Helper()
	wi := &types.WorkItem{
		JobID:             jobID,
		ServiceID:         serviceID,
		WorkflowStepIndex: stepIndex,
		Status:            status,
	}
	if err := tx.WithContext(ctx).Create(wi).Error; err != nil {
		tb.Fatalf("seed work item: %v", err)
	}
	return wi
}
