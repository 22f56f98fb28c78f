package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eosdis/harmony-workflow/internal/http/middleware"
	"github.com/eosdis/harmony-workflow/internal/http/response"
	"github.com/eosdis/harmony-workflow/internal/platform/apierr"
	"github.com/eosdis/harmony-workflow/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

func viewer(c *gin.Context) services.Viewer {
	return services.Viewer{
		Username:    c.GetString(middleware.ContextUsername),
		IsAdmin:     c.GetBool(middleware.ContextIsAdmin),
		AccessToken: c.GetString(middleware.ContextAccessToken),
	}
}

// userViewer drops admin privileges on the non-admin routes so an operator
// hitting /jobs sees only their own jobs.
func userViewer(c *gin.Context) services.Viewer {
	v := viewer(c)
	v.IsAdmin = false
	return v
}

func parseJobID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("jobID")
	jobID, err := uuid.Parse(raw)
	if err != nil {
		response.RespondError(c, apierr.Validation("Invalid format for Job ID '%s'. Job ID must be a UUID.", raw))
		return uuid.Nil, false
	}
	return jobID, true
}

func parsePaging(c *gin.Context) (page, limit int, err error) {
	page, limit = 1, 0
	if raw := c.Query("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, apierr.Validation("Parameter \"page\" is invalid. Must be an integer greater than or equal to 1.")
		}
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, apierr.Validation("Parameter \"limit\" is invalid. Must be an integer.")
		}
	}
	return page, limit, nil
}

// GET /jobs and GET /admin/jobs
func (h *JobHandler) ListJobs(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit, err := parsePaging(c)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		v := userViewer(c)
		if admin {
			v = viewer(c)
		}
		jobs, total, err := h.jobs.ListJobs(c.Request.Context(), v, page, limit)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		response.RespondOK(c, gin.H{"jobs": jobs, "count": total})
	}
}

// GET /jobs/:jobID and GET /admin/jobs/:jobID
func (h *JobHandler) GetJobStatus(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, ok := parseJobID(c)
		if !ok {
			return
		}
		page, limit, err := parsePaging(c)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		v := userViewer(c)
		if admin {
			v = viewer(c)
		}
		view, err := h.jobs.GetJobStatus(c.Request.Context(), jobID, v, c.Query("linkType"), page, limit)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		response.RespondOK(c, view)
	}
}

func (h *JobHandler) action(admin bool, apply func(c *gin.Context, v services.Viewer, jobID uuid.UUID) (*services.JobView, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, ok := parseJobID(c)
		if !ok {
			return
		}
		v := userViewer(c)
		if admin {
			v = viewer(c)
		}
		view, err := apply(c, v, jobID)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		response.RespondOK(c, view)
	}
}

// POST /jobs/:jobID/cancel?ignoreRepeats=true
// With ignoreRepeats a cancel of an already canceled job is a no-op success,
// so automated callers can retry without tracking state.
func (h *JobHandler) CancelJob(admin bool) gin.HandlerFunc {
	return h.action(admin, func(c *gin.Context, v services.Viewer, jobID uuid.UUID) (*services.JobView, error) {
		ignoreRepeats, _ := strconv.ParseBool(c.Query("ignoreRepeats"))
		return h.jobs.CancelJob(c.Request.Context(), jobID, v, ignoreRepeats)
	})
}

// POST /jobs/:jobID/pause
func (h *JobHandler) PauseJob(admin bool) gin.HandlerFunc {
	return h.action(admin, func(c *gin.Context, v services.Viewer, jobID uuid.UUID) (*services.JobView, error) {
		return h.jobs.PauseJob(c.Request.Context(), jobID, v)
	})
}

// POST /jobs/:jobID/resume
func (h *JobHandler) ResumeJob(admin bool) gin.HandlerFunc {
	return h.action(admin, func(c *gin.Context, v services.Viewer, jobID uuid.UUID) (*services.JobView, error) {
		return h.jobs.ResumeJob(c.Request.Context(), jobID, v)
	})
}

// POST /jobs/:jobID/skip-preview
func (h *JobHandler) SkipPreview(admin bool) gin.HandlerFunc {
	return h.action(admin, func(c *gin.Context, v services.Viewer, jobID uuid.UUID) (*services.JobView, error) {
		return h.jobs.SkipPreview(c.Request.Context(), jobID, v)
	})
}
