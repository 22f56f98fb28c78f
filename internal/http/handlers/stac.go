package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eosdis/harmony-workflow/internal/http/response"
	"github.com/eosdis/harmony-workflow/internal/platform/apierr"
	"github.com/eosdis/harmony-workflow/internal/services"
)

type StacHandler struct {
	jobs services.JobService
}

func NewStacHandler(jobs services.JobService) *StacHandler {
	return &StacHandler{jobs: jobs}
}

// GET /stac/:jobID
func (h *StacHandler) GetCatalog(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	page := 1
	limit := 100
	var err error
	if raw := c.Query("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			response.RespondError(c, apierr.Validation("The requested paging parameters were out of bounds"))
			return
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			response.RespondError(c, apierr.Validation("The requested paging parameters were out of bounds"))
			return
		}
	}

	cat, err := h.jobs.StacCatalog(c.Request.Context(), jobID, userViewer(c), page, limit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, cat)
}

// GET /stac/:jobID/:index
func (h *StacHandler) GetItem(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.RespondError(c, apierr.Validation("Item index %q must be an integer", c.Param("index")))
		return
	}

	item, err := h.jobs.StacItem(c.Request.Context(), jobID, userViewer(c), index)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, item)
}
