package services

import (
	"context"
	"testing"
	"time"

	"github.com/eosdis/harmony-workflow/internal/data/repos/testutil"
	types "github.com/eosdis/harmony-workflow/internal/domain"
)

func newFailerHarness(t *testing.T, cfg WorkFailerConfig) (*workHarness, WorkFailerService) {
	t.Helper()
	h := newWorkHarness(t, WorkServiceConfig{RetryLimit: cfg.RetryLimit})
	failer := NewWorkFailerService(h.tx, testutil.Logger(t), h.jobs, h.items, h.work, cfg)
	return h, failer
}

func TestFailerRequeuesStaleRunning(t *testing.T) {
	h, failer := newFailerHarness(t, WorkFailerConfig{
		Period:              time.Minute,
		DefaultFailDuration: time.Hour,
		RetryLimit:          3,
	})
	ctx := context.Background()
	dbc := h.dbc(ctx)

	job := testutil.SeedJob(t, ctx, h.tx, "jdoe", types.JobStatusRunning)
	testutil.SeedStep(t, ctx, h.tx, job.JobID, 1, transformService, false)
	stale := testutil.SeedItem(t, ctx, h.tx, job.JobID, 1, transformService, types.WorkItemStatusRunning)
	fresh := testutil.SeedItem(t, ctx, h.tx, job.JobID, 1, transformService, types.WorkItemStatusRunning)
	idle := testutil.SeedItem(t, ctx, h.tx, job.JobID, 1, transformService, types.WorkItemStatusReady)
	touchItem(t, h.tx, stale.ID, time.Now().Add(-2*time.Hour))
	touchItem(t, h.tx, idle.ID, time.Now().Add(-2*time.Hour))

	res, err := failer.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(res.WorkItemIDs) != 1 || res.WorkItemIDs[0] != stale.ID {
		t.Fatalf("expected only the stale running item, got %v", res.WorkItemIDs)
	}
	if len(res.JobIDs) != 1 || res.JobIDs[0] != job.JobID {
		t.Fatalf("expected the owning job, got %v", res.JobIDs)
	}

	got, _ := h.items.GetByID(dbc, stale.ID, false)
	if got.Status != types.WorkItemStatusReady || got.RetryCount != 1 {
		t.Fatalf("expected requeued item, got %s/%d", got.Status, got.RetryCount)
	}
	// READY items are never touched, no matter how old.
	got, _ = h.items.GetByID(dbc, idle.ID, false)
	if got.Status != types.WorkItemStatusReady || got.RetryCount != 0 {
		t.Fatalf("ready item must be left alone, got %s/%d", got.Status, got.RetryCount)
	}
	got, _ = h.items.GetByID(dbc, fresh.ID, false)
	if got.Status != types.WorkItemStatusRunning {
		t.Fatalf("fresh item must be left alone, got %s", got.Status)
	}

	// The same clock finds nothing more to do.
	res, err = failer.Tick(ctx)
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if len(res.WorkItemIDs) != 0 {
		t.Fatalf("second tick should be a no-op, touched %v", res.WorkItemIDs)
	}
}

func TestFailerExhaustionFailsJob(t *testing.T) {
	h, failer := newFailerHarness(t, WorkFailerConfig{
		Period:              time.Minute,
		DefaultFailDuration: time.Hour,
		RetryLimit:          1,
	})
	ctx := context.Background()
	dbc := h.dbc(ctx)

	job := testutil.SeedJob(t, ctx, h.tx, "jdoe", types.JobStatusRunning)
	testutil.SeedStep(t, ctx, h.tx, job.JobID, 1, transformService, false)
	stuck := testutil.SeedItem(t, ctx, h.tx, job.JobID, 1, transformService, types.WorkItemStatusRunning)
	if err := h.items.UpdateFields(dbc, stuck.ID, map[string]interface{}{"retry_count": 1}); err != nil {
		t.Fatalf("set retry count: %v", err)
	}
	touchItem(t, h.tx, stuck.ID, time.Now().Add(-2*time.Hour))

	res, err := failer.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(res.WorkItemIDs) != 1 {
		t.Fatalf("expected one touched item, got %v", res.WorkItemIDs)
	}

	got, _ := h.items.GetByID(dbc, stuck.ID, false)
	if got.Status != types.WorkItemStatusFailed {
		t.Fatalf("expected failed item, got %s", got.Status)
	}
	j, _ := h.jobs.GetByJobID(dbc, job.JobID, false)
	if j.Status != types.JobStatusFailed {
		t.Fatalf("expected failed job, got %s", j.Status)
	}
}

func TestFailerOutlierThreshold(t *testing.T) {
	h, failer := newFailerHarness(t, WorkFailerConfig{
		Period: time.Minute,
		// Default far above the outlier threshold so only the computed
		// threshold can trip.
		DefaultFailDuration: 24 * time.Hour,
		RetryLimit:          3,
	})
	ctx := context.Background()
	dbc := h.dbc(ctx)

	job := testutil.SeedJob(t, ctx, h.tx, "jdoe", types.JobStatusRunning)
	testutil.SeedStep(t, ctx, h.tx, job.JobID, 1, transformService, false)

	// Two successes of 30 minutes make the threshold one hour.
	for i := 0; i < 2; i++ {
		wi := testutil.SeedItem(t, ctx, h.tx, job.JobID, 1, transformService, types.WorkItemStatusSuccessful)
		if err := h.items.UpdateFields(dbc, wi.ID, map[string]interface{}{
			"duration_ms": int64(30 * 60 * 1000),
		}); err != nil {
			t.Fatalf("set duration: %v", err)
		}
	}

	outlier := testutil.SeedItem(t, ctx, h.tx, job.JobID, 1, transformService, types.WorkItemStatusRunning)
	touchItem(t, h.tx, outlier.ID, time.Now().Add(-90*time.Minute))

	res, err := failer.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(res.WorkItemIDs) != 1 || res.WorkItemIDs[0] != outlier.ID {
		t.Fatalf("expected the outlier to be reclaimed, got %v", res.WorkItemIDs)
	}
	got, _ := h.items.GetByID(dbc, outlier.ID, false)
	if got.Status != types.WorkItemStatusReady {
		t.Fatalf("expected requeued outlier, got %s", got.Status)
	}
}
