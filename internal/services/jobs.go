package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eosdis/harmony-workflow/internal/data/repos"
	types "github.com/eosdis/harmony-workflow/internal/domain"
	"github.com/eosdis/harmony-workflow/internal/pkg/dbctx"
	"github.com/eosdis/harmony-workflow/internal/platform/apierr"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
	"github.com/eosdis/harmony-workflow/internal/platform/tokencrypt"
	"github.com/eosdis/harmony-workflow/internal/stac"
)

// Viewer identifies who is asking for a job, for share-gate decisions.
type Viewer struct {
	Username    string
	IsAdmin     bool
	AccessToken string
}

// JobView is the wire shape of a job status response.
type JobView struct {
	Username         string          `json:"username"`
	Status           types.JobStatus `json:"status"`
	Message          string          `json:"message"`
	Progress         int             `json:"progress"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	Links            []types.JobLink `json:"links"`
	Request          string          `json:"request"`
	NumInputGranules int             `json:"numInputGranules"`
	JobID            uuid.UUID       `json:"jobID"`
	// Events lists the lifecycle actions the viewer may invoke now.
	Events []JobEvent `json:"availableActions,omitempty"`
}

type JobServiceConfig struct {
	// LinkPageSize bounds how many result links a status view returns.
	LinkPageSize int
	// S3Region is used when rewriting s3 hrefs to https form.
	S3Region string
}

type JobService interface {
	GetJobStatus(ctx context.Context, jobID uuid.UUID, viewer Viewer, linkType string, page, limit int) (*JobView, error)
	ListJobs(ctx context.Context, viewer Viewer, page, limit int) ([]*JobView, int64, error)
	CancelJob(ctx context.Context, jobID uuid.UUID, viewer Viewer, ignoreRepeats bool) (*JobView, error)
	PauseJob(ctx context.Context, jobID uuid.UUID, viewer Viewer) (*JobView, error)
	ResumeJob(ctx context.Context, jobID uuid.UUID, viewer Viewer) (*JobView, error)
	SkipPreview(ctx context.Context, jobID uuid.UUID, viewer Viewer) (*JobView, error)
	StacCatalog(ctx context.Context, jobID uuid.UUID, viewer Viewer, page, limit int) (*stac.Catalog, error)
	StacItem(ctx context.Context, jobID uuid.UUID, viewer Viewer, index int) (*stac.Item, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	jobs   repos.JobRepo
	links  repos.JobLinkRepo
	steps  repos.WorkflowStepRepo
	items  repos.WorkItemRepo
	gate   ShareGateService
	cipher *tokencrypt.Cipher
	cfg    JobServiceConfig
}

func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs repos.JobRepo,
	links repos.JobLinkRepo,
	steps repos.WorkflowStepRepo,
	items repos.WorkItemRepo,
	gate ShareGateService,
	cipher *tokencrypt.Cipher,
	cfg JobServiceConfig,
) JobService {
	if cfg.LinkPageSize <= 0 {
		cfg.LinkPageSize = 2000
	}
	if cfg.S3Region == "" {
		cfg.S3Region = "us-west-2"
	}
	return &jobService{
		db:     db,
		log:    baseLog.With("service", "JobService"),
		jobs:   jobs,
		links:  links,
		steps:  steps,
		items:  items,
		gate:   gate,
		cipher: cipher,
		cfg:    cfg,
	}
}

var validLinkTypes = map[string]bool{"": true, "http": true, "https": true, "s3": true, "none": true}

func (s *jobService) GetJobStatus(ctx context.Context, jobID uuid.UUID, viewer Viewer, linkType string, page, limit int) (*JobView, error) {
	linkType = strings.ToLower(linkType)
	if !validLinkTypes[linkType] {
		return nil, apierr.Validation("Invalid linkType %q must be http, https, s3, or none", linkType)
	}
	if limit <= 0 || limit > s.cfg.LinkPageSize {
		limit = s.cfg.LinkPageSize
	}
	if page < 1 {
		page = 1
	}

	dbc := dbctx.Context{Ctx: ctx}
	job, err := s.visibleJob(dbc, jobID, viewer)
	if err != nil {
		return nil, err
	}

	links, _, err := s.links.Page(dbc, jobID, page, limit, repos.LinkFilter{})
	if err != nil {
		return nil, fmt.Errorf("load job links: %w", err)
	}
	job.Links = s.rewriteLinks(links, linkType)
	return s.view(job), nil
}

// visibleJob loads a job and applies the share-gate. Jobs the viewer may not
// see surface as not found so their existence does not leak.
func (s *jobService) visibleJob(dbc dbctx.Context, jobID uuid.UUID, viewer Viewer) (*types.Job, error) {
	job, err := s.jobs.GetByJobID(dbc, jobID, false)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return nil, apierr.NotFound("Unable to find job %s", jobID)
	}
	if !s.gate.CanViewJob(dbc.Ctx, job, viewer.Username, viewer.IsAdmin, viewer.AccessToken) {
		return nil, apierr.NotFound("Unable to find job %s", jobID)
	}
	return job, nil
}

// rewriteLinks adjusts data link hrefs for the requested consumption style.
// S3-native links with rel=s3-access are always preserved as stored.
func (s *jobService) rewriteLinks(links []*types.JobLink, linkType string) []types.JobLink {
	out := make([]types.JobLink, 0, len(links))
	for _, l := range links {
		link := *l
		if link.Rel != types.RelS3Access {
			switch linkType {
			case "http", "https":
				link.Href = s.s3ToHTTPS(link.Href)
			case "s3", "none", "":
				// Stored form.
			}
		}
		out = append(out, link)
	}
	return out
}

func (s *jobService) s3ToHTTPS(href string) string {
	if !strings.HasPrefix(href, "s3://") {
		return href
	}
	rest := strings.TrimPrefix(href, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return href
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", parts[0], s.cfg.S3Region, parts[1])
}

func (s *jobService) view(job *types.Job) *JobView {
	return &JobView{
		Username:         job.Username,
		Status:           job.Status,
		Message:          job.Message,
		Progress:         job.Progress,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
		Links:            job.Links,
		Request:          job.Request,
		NumInputGranules: job.NumInputGranules,
		JobID:            job.JobID,
		Events:           ValidEventsFor(job),
	}
}

func (s *jobService) ListJobs(ctx context.Context, viewer Viewer, page, limit int) ([]*JobView, int64, error) {
	username := viewer.Username
	if viewer.IsAdmin {
		username = ""
	}
	jobs, total, err := s.jobs.List(dbctx.Context{Ctx: ctx}, username, nil, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	views := make([]*JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, s.view(j))
	}
	return views, total, nil
}

func (s *jobService) CancelJob(ctx context.Context, jobID uuid.UUID, viewer Viewer, ignoreRepeats bool) (*JobView, error) {
	return s.applyAction(ctx, jobID, viewer, EventCancel, ApplyOptions{IgnoreRepeats: ignoreRepeats}, func(dbc dbctx.Context, job *types.Job) error {
		_, err := s.items.CancelPending(dbc, job.JobID)
		return err
	})
}

func (s *jobService) PauseJob(ctx context.Context, jobID uuid.UUID, viewer Viewer) (*JobView, error) {
	return s.applyAction(ctx, jobID, viewer, EventPause, ApplyOptions{}, nil)
}

func (s *jobService) ResumeJob(ctx context.Context, jobID uuid.UUID, viewer Viewer) (*JobView, error) {
	return s.applyAction(ctx, jobID, viewer, EventResume, ApplyOptions{}, s.refreshStepTokens(viewer))
}

func (s *jobService) SkipPreview(ctx context.Context, jobID uuid.UUID, viewer Viewer) (*JobView, error) {
	return s.applyAction(ctx, jobID, viewer, EventSkipPreview, ApplyOptions{}, s.refreshStepTokens(viewer))
}

// refreshStepTokens reseals the viewer's current access token into every
// workflow step operation so resumed work carries fresh credentials.
func (s *jobService) refreshStepTokens(viewer Viewer) func(dbc dbctx.Context, job *types.Job) error {
	return func(dbc dbctx.Context, job *types.Job) error {
		if viewer.AccessToken == "" || s.cipher == nil {
			return nil
		}
		sealed, err := s.cipher.Seal(viewer.AccessToken)
		if err != nil {
			return fmt.Errorf("seal access token: %w", err)
		}
		steps, err := s.steps.GetAll(dbc, job.JobID)
		if err != nil {
			return fmt.Errorf("load workflow steps: %w", err)
		}
		for _, step := range steps {
			if len(step.Operation) == 0 {
				continue
			}
			op, err := types.UnmarshalOperation(step.Operation)
			if err != nil {
				return fmt.Errorf("decode step %d operation: %w", step.StepIndex, err)
			}
			op.AccessToken = sealed
			raw, err := op.Marshal()
			if err != nil {
				return fmt.Errorf("encode step %d operation: %w", step.StepIndex, err)
			}
			if err := s.steps.UpdateFields(dbc, step.ID, map[string]interface{}{
				"operation": raw,
			}); err != nil {
				return fmt.Errorf("save step %d operation: %w", step.StepIndex, err)
			}
		}
		return nil
	}
}

func (s *jobService) applyAction(
	ctx context.Context,
	jobID uuid.UUID,
	viewer Viewer,
	event JobEvent,
	opts ApplyOptions,
	after func(dbc dbctx.Context, job *types.Job) error,
) (*JobView, error) {
	var view *JobView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		var (
			job *types.Job
			err error
		)
		if viewer.IsAdmin {
			job, err = s.jobs.GetByJobID(dbc, jobID, true)
		} else {
			job, err = s.jobs.GetByUsernameAndJobID(dbc, viewer.Username, jobID, true)
		}
		if err != nil {
			return fmt.Errorf("load job: %w", err)
		}
		if job == nil {
			return apierr.NotFound("Unable to find job %s", jobID)
		}

		before := job.Status
		if err := ApplyEvent(job, event, opts); err != nil {
			return err
		}
		if job.Status != before {
			if err := s.jobs.Save(dbc, job); err != nil {
				return fmt.Errorf("save job: %w", err)
			}
			if after != nil {
				if err := after(dbc, job); err != nil {
					return err
				}
			}
		}
		view = s.view(job)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

const stacLimitMax = 10000

// StacCatalog renders one page of a job's data links as a STAC catalog.
func (s *jobService) StacCatalog(ctx context.Context, jobID uuid.UUID, viewer Viewer, page, limit int) (*stac.Catalog, error) {
	if err := validateStacPaging(page, limit); err != nil {
		return nil, err
	}

	dbc := dbctx.Context{Ctx: ctx}
	job, err := s.visibleJob(dbc, jobID, viewer)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, apierr.Conflict("Job %s is not complete", jobID)
	}

	links, total, err := s.links.Page(dbc, jobID, page, limit, repos.LinkFilter{
		Rel:                   types.RelData,
		RequireSpatioTemporal: true,
	})
	if err != nil {
		return nil, fmt.Errorf("load job links: %w", err)
	}
	if total > 0 && len(links) == 0 {
		return nil, apierr.Validation("The requested paging parameters were out of bounds")
	}

	cat := stac.NewCatalog(job.JobID.String(), fmt.Sprintf("Harmony output for request %s", job.JobID))
	cat.Links = append(cat.Links,
		stac.Link{Href: ".", Rel: "root", Title: "root"},
		stac.Link{Href: "./", Rel: "self", Title: "self"},
	)
	offset := (page - 1) * limit
	for i := range links {
		cat.Links = append(cat.Links, stac.Link{
			Href:  fmt.Sprintf("./%d", offset+i),
			Rel:   "item",
			Title: links[i].Title,
		})
	}
	lastPage := (int(total) + limit - 1) / limit
	if page > 1 {
		cat.Links = append(cat.Links, stac.Link{Href: fmt.Sprintf("./?page=%d&limit=%d", page-1, limit), Rel: "prev"})
	}
	if page < lastPage {
		cat.Links = append(cat.Links, stac.Link{Href: fmt.Sprintf("./?page=%d&limit=%d", page+1, limit), Rel: "next"})
	}
	return cat, nil
}

// StacItem renders the data link at index as a STAC item.
func (s *jobService) StacItem(ctx context.Context, jobID uuid.UUID, viewer Viewer, index int) (*stac.Item, error) {
	dbc := dbctx.Context{Ctx: ctx}
	job, err := s.visibleJob(dbc, jobID, viewer)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, apierr.Conflict("Job %s is not complete", jobID)
	}
	if index < 0 {
		return nil, apierr.Validation("Item index %d is out of bounds", index)
	}

	links, _, err := s.links.Page(dbc, jobID, index+1, 1, repos.LinkFilter{
		Rel:                   types.RelData,
		RequireSpatioTemporal: true,
	})
	if err != nil {
		return nil, fmt.Errorf("load job links: %w", err)
	}
	if len(links) == 0 {
		return nil, apierr.NotFound("Item %d not found in job %s", index, jobID)
	}

	link := links[0]
	item := stac.NewItem(fmt.Sprintf("%s_%d", job.JobID, index))
	item.BBox = bboxFloats(link)
	if link.TemporalStart != nil {
		item.Properties.StartDatetime = link.TemporalStart.UTC().Format(time.RFC3339)
	}
	if link.TemporalEnd != nil {
		item.Properties.EndDatetime = link.TemporalEnd.UTC().Format(time.RFC3339)
	}
	item.Assets["data"] = stac.Asset{
		Href:  link.Href,
		Title: link.Title,
		Type:  link.Type,
		Roles: []string{"data"},
	}
	item.Links = append(item.Links,
		stac.Link{Href: "../", Rel: "root"},
		stac.Link{Href: fmt.Sprintf("./%d", index), Rel: "self"},
	)
	return item, nil
}

func bboxFloats(link *types.JobLink) []float64 {
	if len(link.BBox) == 0 {
		return nil
	}
	var out []float64
	if err := json.Unmarshal(link.BBox, &out); err != nil {
		return nil
	}
	return out
}

func validateStacPaging(page, limit int) error {
	if limit < 1 || limit > stacLimitMax || page < 1 {
		return apierr.Validation("The requested paging parameters were out of bounds")
	}
	return nil
}
