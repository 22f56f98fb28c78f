package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"path"
	"strings"
	"time"

	"gorm.io/datatypes"

	types "github.com/eosdis/harmony-workflow/internal/domain"
	"github.com/eosdis/harmony-workflow/internal/pkg/dbctx"
	"github.com/eosdis/harmony-workflow/internal/platform/objectstore"
	"github.com/eosdis/harmony-workflow/internal/stac"
)

const emptyQueryMessage = "could not create the next work items for the request"

// chain turns a completed work item's output catalogs into downstream work,
// or finalizes the job when the item belonged to the terminal step.
func (s *workService) chain(dbc dbctx.Context, job *types.Job, step *types.WorkflowStep, item *types.WorkItem) error {
	results := item.ResultURIs()

	if step.IsQueryCmr() && len(results) == 0 {
		if err := ApplyEvent(job, EventFail, ApplyOptions{Message: emptyQueryMessage}); err != nil {
			return err
		}
		if err := s.jobs.Save(dbc, job); err != nil {
			return fmt.Errorf("save failed job: %w", err)
		}
		if _, err := s.items.CancelPending(dbc, job.JobID); err != nil {
			return fmt.Errorf("cancel pending items: %w", err)
		}
		return nil
	}

	next, err := s.steps.Get(dbc, job.JobID, step.StepIndex+1)
	if err != nil {
		return fmt.Errorf("load next step: %w", err)
	}

	if next == nil {
		return s.finalizeTerminalItem(dbc, job, step, item)
	}

	if next.HasAggregatedOutput {
		return s.maybeAggregate(dbc, job, step, next)
	}

	if len(results) == 0 {
		// A middle step produced nothing for the next stage. With no other
		// work outstanding no further update will ever arrive, so the job
		// must settle now instead of idling forever.
		return s.settleIfIdle(dbc, job)
	}

	newItems := make([]*types.WorkItem, 0, len(results))
	for _, catalog := range results {
		newItems = append(newItems, &types.WorkItem{
			JobID:               job.JobID,
			ServiceID:           next.ServiceID,
			WorkflowStepIndex:   next.StepIndex,
			Status:              types.WorkItemStatusReady,
			StacCatalogLocation: catalog,
		})
	}
	if err := s.items.Create(dbc, newItems); err != nil {
		return fmt.Errorf("create next step items: %w", err)
	}
	if next.WorkItemCount < 1 {
		if err := s.steps.UpdateFields(dbc, next.ID, map[string]interface{}{
			"work_item_count": len(newItems),
		}); err != nil {
			return fmt.Errorf("record next step count: %w", err)
		}
	}
	return nil
}

// settleIfIdle finalizes the job when nothing is pending anywhere. Chaining
// paths that create no downstream work call this so a job can never strand in
// a non-terminal state with an empty queue.
func (s *workService) settleIfIdle(dbc dbctx.Context, job *types.Job) error {
	if job.Status.Terminal() {
		return nil
	}
	pending, err := s.items.CountPendingInJob(dbc, job.JobID)
	if err != nil {
		return fmt.Errorf("count pending items: %w", err)
	}
	if pending > 0 {
		return nil
	}
	return s.finalizeJob(dbc, job)
}

// maybeAggregate materializes the aggregating step's single input once every
// item of the producing step has succeeded. The step's one work item is
// created lazily here, never at job intake.
func (s *workService) maybeAggregate(dbc dbctx.Context, job *types.Job, step, next *types.WorkflowStep) error {
	pending, err := s.items.CountByStepAndStatus(dbc, job.JobID, step.StepIndex,
		[]types.WorkItemStatus{types.WorkItemStatusReady, types.WorkItemStatusRunning})
	if err != nil {
		return fmt.Errorf("count unfinished producers: %w", err)
	}
	if pending > 0 {
		return nil
	}
	failed, err := s.items.CountByStepAndStatus(dbc, job.JobID, step.StepIndex,
		[]types.WorkItemStatus{types.WorkItemStatusFailed, types.WorkItemStatusCanceled})
	if err != nil {
		return fmt.Errorf("count failed producers: %w", err)
	}
	if failed > 0 {
		// Aggregation needs every producer's output. Under ignoreErrors the
		// failure left the job running while siblings were pending; now that
		// the last one has reported, the job has to settle here.
		return s.settleIfIdle(dbc, job)
	}

	producers, err := s.items.GetByStepAndStatus(dbc, job.JobID, step.StepIndex,
		[]types.WorkItemStatus{types.WorkItemStatusSuccessful})
	if err != nil {
		return fmt.Errorf("load producer items: %w", err)
	}

	var itemLinks []stac.Link
	for _, wi := range producers {
		for _, catalogURI := range wi.ResultURIs() {
			var cat stac.Catalog
			if err := objectstore.GetJSON(dbc.Ctx, s.store, catalogURI, &cat); err != nil {
				return fmt.Errorf("read producer catalog %s: %w", catalogURI, err)
			}
			for _, l := range cat.ItemLinks() {
				l.Href = resolveURI(catalogURI, l.Href)
				itemLinks = append(itemLinks, l)
			}
		}
	}

	keyFor := func(page int) string {
		return fmt.Sprintf("%s/aggregate/step-%d/catalog%d.json", job.JobID, next.StepIndex, page)
	}
	hrefFor := func(page int) string { return s.store.URIFor(keyFor(page)) }

	catalogs := stac.BuildPagedCatalogs(
		fmt.Sprintf("%s-agg-%d", job.JobID, next.StepIndex),
		"aggregated input",
		itemLinks,
		s.cfg.AggregateMaxPageSize,
		hrefFor,
	)
	for page, cat := range catalogs {
		body, err := json.Marshal(cat)
		if err != nil {
			return fmt.Errorf("marshal aggregate catalog: %w", err)
		}
		uri := hrefFor(page)
		if err := s.store.Put(dbc.Ctx, uri, bytes.NewReader(body), "application/json"); err != nil {
			return fmt.Errorf("write aggregate catalog %s: %w", uri, err)
		}
	}

	agg := &types.WorkItem{
		JobID:               job.JobID,
		ServiceID:           next.ServiceID,
		WorkflowStepIndex:   next.StepIndex,
		Status:              types.WorkItemStatusReady,
		StacCatalogLocation: hrefFor(0),
	}
	if err := s.items.Create(dbc, []*types.WorkItem{agg}); err != nil {
		return fmt.Errorf("create aggregating item: %w", err)
	}
	if next.WorkItemCount != 1 {
		if err := s.steps.UpdateFields(dbc, next.ID, map[string]interface{}{
			"work_item_count": 1,
		}); err != nil {
			return fmt.Errorf("record aggregating step count: %w", err)
		}
	}
	return nil
}

// finalizeTerminalItem appends a terminal-step item's outputs to the job's
// links, advances batch and progress accounting, and completes the job once
// no work remains anywhere.
func (s *workService) finalizeTerminalItem(dbc dbctx.Context, job *types.Job, step *types.WorkflowStep, item *types.WorkItem) error {
	links, err := s.linksFromResults(dbc, job, item.ResultURIs())
	if err != nil {
		return err
	}
	if err := s.links.Append(dbc, links); err != nil {
		return fmt.Errorf("append job links: %w", err)
	}

	completed, err := s.items.CountByStepAndStatus(dbc, job.JobID, step.StepIndex,
		[]types.WorkItemStatus{types.WorkItemStatusSuccessful})
	if err != nil {
		return fmt.Errorf("count completed terminal items: %w", err)
	}
	expected := step.WorkItemCount
	if expected < int(completed) {
		expected = int(completed)
	}
	progress := 100
	if expected > 0 {
		progress = int(math.Round(100 * float64(completed) / float64(expected)))
	}
	if progress > 100 {
		progress = 100
	}
	if progress < job.Progress {
		// Progress never regresses, even when the expectation grew.
		progress = job.Progress
	}
	job.Progress = progress
	job.BatchesCompleted++
	if err := s.jobs.UpdateFields(dbc, job.JobID, map[string]interface{}{
		"progress":          job.Progress,
		"batches_completed": job.BatchesCompleted,
	}); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}

	pending, err := s.items.CountPendingInJob(dbc, job.JobID)
	if err != nil {
		return fmt.Errorf("count pending items: %w", err)
	}
	if pending > 0 {
		return nil
	}

	access := &types.JobLink{
		JobID: job.JobID,
		Href:  s.store.URIFor(fmt.Sprintf("%s/", job.JobID)),
		Title: "Results in AWS S3. Access from AWS us-west-2 with keys from /cloud-access.sh",
		Rel:   types.RelS3Access,
	}
	if err := s.links.Append(dbc, []*types.JobLink{access}); err != nil {
		return fmt.Errorf("append access link: %w", err)
	}
	return s.finalizeJob(dbc, job)
}

// linksFromResults reads each output catalog and flattens its items' assets
// into job links, keeping the items' spatio-temporal metadata.
func (s *workService) linksFromResults(dbc dbctx.Context, job *types.Job, results []string) ([]*types.JobLink, error) {
	var out []*types.JobLink
	for _, catalogURI := range results {
		var cat stac.Catalog
		if err := objectstore.GetJSON(dbc.Ctx, s.store, catalogURI, &cat); err != nil {
			return nil, fmt.Errorf("read output catalog %s: %w", catalogURI, err)
		}
		for _, il := range cat.ItemLinks() {
			itemURI := resolveURI(catalogURI, il.Href)
			var st stac.Item
			if err := objectstore.GetJSON(dbc.Ctx, s.store, itemURI, &st); err != nil {
				return nil, fmt.Errorf("read output item %s: %w", itemURI, err)
			}
			for _, asset := range st.Assets {
				link := &types.JobLink{
					JobID: job.JobID,
					Href:  asset.Href,
					Title: asset.Title,
					Type:  asset.Type,
					Rel:   types.RelData,
				}
				if len(st.BBox) > 0 {
					if b, err := json.Marshal(st.BBox); err == nil {
						link.BBox = datatypes.JSON(b)
					}
				}
				if ts, err := time.Parse(time.RFC3339, st.Properties.StartDatetime); err == nil {
					link.TemporalStart = &ts
				}
				if te, err := time.Parse(time.RFC3339, st.Properties.EndDatetime); err == nil {
					link.TemporalEnd = &te
				}
				out = append(out, link)
			}
		}
	}
	return out, nil
}

// resolveURI resolves a possibly relative STAC link href against the URI of
// the catalog that carries it.
func resolveURI(baseURI, ref string) string {
	if strings.Contains(ref, "://") {
		return ref
	}
	u, err := url.Parse(baseURI)
	if err != nil {
		return ref
	}
	u.Path = path.Join(path.Dir(u.Path), ref)
	return u.String()
}
