package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eosdis/harmony-workflow/internal/data/repos/testutil"
	types "github.com/eosdis/harmony-workflow/internal/domain"
	"github.com/eosdis/harmony-workflow/internal/platform/apierr"
	"github.com/eosdis/harmony-workflow/internal/platform/tokencrypt"
)

type jobHarness struct {
	*workHarness
	gate ShareGateService
	svc  JobService
}

func newJobHarness(t *testing.T, cfg JobServiceConfig) *jobHarness {
	t.Helper()
	wh := newWorkHarness(t, WorkServiceConfig{RetryLimit: 3})
	log := testutil.Logger(t)

	gate := NewShareGateService(&fakePerms{
		eula:  map[string]*bool{"C1-PROV": boolPtr(false)},
		guest: map[string]bool{"C1-PROV": true},
	}, log)

	cipher, err := tokencrypt.New("test-secret")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}

	return &jobHarness{
		workHarness: wh,
		gate:        gate,
		svc:         NewJobService(wh.tx, log, wh.jobs, wh.links, wh.steps, wh.items, gate, cipher, cfg),
	}
}

func seedDataLinks(t *testing.T, h *jobHarness, jobID uuid.UUID, n int) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	links := make([]*types.JobLink, 0, n)
	for i := 0; i < n; i++ {
		links = append(links, &types.JobLink{
			JobID:         jobID,
			Href:          fmt.Sprintf("s3://artifacts/%s/out%d.nc", jobID, i),
			Title:         fmt.Sprintf("out%d.nc", i),
			Rel:           types.RelData,
			Type:          "application/x-netcdf4",
			BBox:          []byte(`[-10,-10,10,10]`),
			TemporalStart: &start,
			TemporalEnd:   &end,
		})
	}
	if err := h.links.Append(h.dbc(ctx), links); err != nil {
		t.Fatalf("seed links: %v", err)
	}
}

func TestGetJobStatusLinkTypes(t *testing.T) {
	h := newJobHarness(t, JobServiceConfig{S3Region: "us-west-2"})
	ctx := context.Background()

	job := testutil.SeedJob(t, ctx, h.tx, "jdoe", types.JobStatusSuccessful)
	seedDataLinks(t, h, job.JobID, 1)
	if err := h.links.Append(h.dbc(ctx), []*types.JobLink{{
		JobID: job.JobID,
		Href:  "s3://artifacts/keys",
		Rel:   types.RelS3Access,
	}}); err != nil {
		t.Fatalf("seed s3-access link: %v", err)
	}
	owner := Viewer{Username: "jdoe"}

	view, err := h.svc.GetJobStatus(ctx, job.JobID, owner, "https", 1, 0)
	if err != nil {
		t.Fatalf("GetJobStatus: %v", err)
	}
	wantHTTPS := fmt.Sprintf("https://artifacts.s3.us-west-2.amazonaws.com/%s/out0.nc", job.JobID)
	var sawData, sawS3Access bool
	for _, l := range view.Links {
		switch l.Rel {
		case types.RelData:
			sawData = true
			if l.Href != wantHTTPS {
				t.Fatalf("https linkType should rewrite s3 href, got %s", l.Href)
			}
		case types.RelS3Access:
			sawS3Access = true
			if l.Href != "s3://artifacts/keys" {
				t.Fatalf("s3-access link must stay as stored, got %s", l.Href)
			}
		}
	}
	if !sawData || !sawS3Access {
		t.Fatalf("expected both data and s3-access links, got %+v", view.Links)
	}

	view, err = h.svc.GetJobStatus(ctx, job.JobID, owner, "s3", 1, 0)
	if err != nil {
		t.Fatalf("GetJobStatus s3: %v", err)
	}
	for _, l := range view.Links {
		if l.Rel == types.RelData && l.Href != fmt.Sprintf("s3://artifacts/%s/out0.nc", job.JobID) {
			t.Fatalf("s3 linkType should keep stored href, got %s", l.Href)
		}
	}

	if _, err := h.svc.GetJobStatus(ctx, job.JobID, owner, "ftp", 1, 0); !apierr.IsCode(err, apierr.CodeValidation) {
		t.Fatalf("expected validation error for bad linkType, got %v", err)
	}
}

func TestGetJobStatusMasksShareGateDenial(t *testing.T) {
	h := newJobHarness(t, JobServiceConfig{})
	ctx := context.Background()

	job := testutil.SeedJob(t, ctx, h.tx, "jdoe", types.JobStatusSuccessful)
	// Close the collection so non-owners are denied.
	h.gate = NewShareGateService(&fakePerms{
		eula:  map[string]*bool{"C1-PROV": boolPtr(true)},
		guest: map[string]bool{"C1-PROV": true},
	}, testutil.Logger(t))
	cipher, _ := tokencrypt.New("test-secret")
	h.svc = NewJobService(h.tx, testutil.Logger(t), h.jobs, h.links, h.steps, h.items, h.gate, cipher, JobServiceConfig{})

	_, err := h.svc.GetJobStatus(ctx, job.JobID, Viewer{Username: "stranger"}, "", 1, 0)
	if !apierr.IsCode(err, apierr.CodeNotFound) {
		t.Fatalf("denied job must look missing, got %v", err)
	}

	// Admins bypass the gate entirely.
	if _, err := h.svc.GetJobStatus(ctx, job.JobID, Viewer{Username: "ops", IsAdmin: true}, "", 1, 0); err != nil {
		t.Fatalf("admin view: %v", err)
	}
}

func TestJobLifecycleActions(t *testing.T) {
	h := newJobHarness(t, JobServiceConfig{})
	ctx := context.Background()
	owner := Viewer{Username: "jdoe", AccessToken: "edl-token"}

	job := testutil.SeedJob(t, ctx, h.tx, "jdoe", types.JobStatusRunning)
	testutil.SeedStep(t, ctx, h.tx, job.JobID, 1, transformService, false)
	testutil.SeedItem(t, ctx, h.tx, job.JobID, 1, transformService, types.WorkItemStatusReady)

	view, err := h.svc.PauseJob(ctx, job.JobID, owner)
	if err != nil {
		t.Fatalf("PauseJob: %v", err)
	}
	if view.Status != types.JobStatusPaused {
		t.Fatalf("expected paused, got %s", view.Status)
	}

	view, err = h.svc.ResumeJob(ctx, job.JobID, owner)
	if err != nil {
		t.Fatalf("ResumeJob: %v", err)
	}
	if view.Status != types.JobStatusRunning {
		t.Fatalf("expected running, got %s", view.Status)
	}

	view, err = h.svc.CancelJob(ctx, job.JobID, owner, false)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if view.Status != types.JobStatusCanceled {
		t.Fatalf("expected canceled, got %s", view.Status)
	}
	items, err := h.items.GetByStepAndStatus(h.dbc(ctx), job.JobID, 1, []types.WorkItemStatus{types.WorkItemStatusCanceled})
	if err != nil || len(items) != 1 {
		t.Fatalf("cancel must cancel pending items, got %d, %v", len(items), err)
	}

	// Terminal jobs reject further transitions, but a repeated cancel with
	// ignoreRepeats is a no-op success.
	if _, err := h.svc.CancelJob(ctx, job.JobID, owner, false); !apierr.IsCode(err, apierr.CodeConflict) {
		t.Fatalf("expected conflict on repeat cancel, got %v", err)
	}
	if _, err := h.svc.CancelJob(ctx, job.JobID, owner, true); err != nil {
		t.Fatalf("ignoreRepeats cancel must succeed, got %v", err)
	}

	// Non-owners cannot act on the job at all.
	other := testutil.SeedJob(t, ctx, h.tx, "jdoe", types.JobStatusRunning)
	if _, err := h.svc.PauseJob(ctx, other.JobID, Viewer{Username: "stranger"}); !apierr.IsCode(err, apierr.CodeNotFound) {
		t.Fatalf("non-owner action must 404, got %v", err)
	}
}

func TestResumeReSealsStepTokens(t *testing.T) {
	h := newJobHarness(t, JobServiceConfig{})
	ctx := context.Background()
	owner := Viewer{Username: "jdoe", AccessToken: "fresh-edl-token"}

	job := testutil.SeedJob(t, ctx, h.tx, "jdoe", types.JobStatusPaused)
	step := testutil.SeedStep(t, ctx, h.tx, job.JobID, 1, transformService, false)
	op := &types.DataOperation{RequestID: job.JobID.String(), AccessToken: "stale"}
	raw, err := op.Marshal()
	if err != nil {
		t.Fatalf("marshal op: %v", err)
	}
	if err := h.steps.UpdateFields(h.dbc(ctx), step.ID, map[string]interface{}{"operation": raw}); err != nil {
		t.Fatalf("store op: %v", err)
	}

	if _, err := h.svc.ResumeJob(ctx, job.JobID, owner); err != nil {
		t.Fatalf("ResumeJob: %v", err)
	}

	got, err := h.steps.Get(h.dbc(ctx), job.JobID, 1)
	if err != nil {
		t.Fatalf("reload step: %v", err)
	}
	reloaded, err := types.UnmarshalOperation(got.Operation)
	if err != nil {
		t.Fatalf("decode op: %v", err)
	}
	if reloaded.AccessToken == "stale" || reloaded.AccessToken == "" {
		t.Fatalf("resume must reseal the access token, got %q", reloaded.AccessToken)
	}
	cipher, _ := tokencrypt.New("test-secret")
	plain, err := cipher.Unseal(reloaded.AccessToken)
	if err != nil {
		t.Fatalf("unseal: %v", err)
	}
	if plain != "fresh-edl-token" {
		t.Fatalf("expected resealed viewer token, got %q", plain)
	}
}

func TestStacCatalogAndItem(t *testing.T) {
	h := newJobHarness(t, JobServiceConfig{})
	ctx := context.Background()
	owner := Viewer{Username: "jdoe"}

	job := testutil.SeedJob(t, ctx, h.tx, "jdoe", types.JobStatusSuccessful)
	seedDataLinks(t, h, job.JobID, 5)

	cat, err := h.svc.StacCatalog(ctx, job.JobID, owner, 2, 2)
	if err != nil {
		t.Fatalf("StacCatalog: %v", err)
	}
	var itemHrefs []string
	var sawPrev, sawNext bool
	for _, l := range cat.Links {
		switch l.Rel {
		case "item":
			itemHrefs = append(itemHrefs, l.Href)
		case "prev":
			sawPrev = true
		case "next":
			sawNext = true
		}
	}
	if len(itemHrefs) != 2 || itemHrefs[0] != "./2" || itemHrefs[1] != "./3" {
		t.Fatalf("page 2 of limit 2 should expose items 2 and 3, got %v", itemHrefs)
	}
	if !sawPrev || !sawNext {
		t.Fatalf("middle page needs prev and next links")
	}

	item, err := h.svc.StacItem(ctx, job.JobID, owner, 3)
	if err != nil {
		t.Fatalf("StacItem: %v", err)
	}
	asset, ok := item.Assets["data"]
	if !ok {
		t.Fatalf("item must carry a data asset")
	}
	if want := fmt.Sprintf("s3://artifacts/%s/out3.nc", job.JobID); asset.Href != want {
		t.Fatalf("expected asset %s, got %s", want, asset.Href)
	}
	if len(item.BBox) != 4 {
		t.Fatalf("expected 4-element bbox, got %v", item.BBox)
	}
	if item.Properties.StartDatetime != "2020-01-01T00:00:00Z" {
		t.Fatalf("unexpected start datetime %s", item.Properties.StartDatetime)
	}

	if _, err := h.svc.StacItem(ctx, job.JobID, owner, 50); !apierr.IsCode(err, apierr.CodeNotFound) {
		t.Fatalf("out-of-range index must 404, got %v", err)
	}
	if _, err := h.svc.StacCatalog(ctx, job.JobID, owner, 1, 10001); !apierr.IsCode(err, apierr.CodeValidation) {
		t.Fatalf("limit above cap must be rejected, got %v", err)
	}
	if _, err := h.svc.StacCatalog(ctx, job.JobID, owner, 40, 2); !apierr.IsCode(err, apierr.CodeValidation) {
		t.Fatalf("page past the end must be out of bounds, got %v", err)
	}

	// STAC views exist only for finished jobs.
	running := testutil.SeedJob(t, ctx, h.tx, "jdoe", types.JobStatusRunning)
	if _, err := h.svc.StacCatalog(ctx, running.JobID, owner, 1, 10); !apierr.IsCode(err, apierr.CodeConflict) {
		t.Fatalf("active job STAC view must conflict, got %v", err)
	}
}
