package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	types "github.com/eosdis/harmony-workflow/internal/domain"
	"github.com/eosdis/harmony-workflow/internal/http/response"
	"github.com/eosdis/harmony-workflow/internal/platform/apierr"
	"github.com/eosdis/harmony-workflow/internal/services"
)

// WorkHandler serves the polling endpoints backend workers use to fetch and
// report work.
type WorkHandler struct {
	work services.WorkService
}

func NewWorkHandler(work services.WorkService) *WorkHandler {
	return &WorkHandler{work: work}
}

// workItemView is the wire shape of a dispatched work item.
type workItemView struct {
	ID                  int64           `json:"id"`
	JobID               string          `json:"jobID"`
	ServiceID           string          `json:"serviceID"`
	WorkflowStepIndex   int             `json:"workflowStepIndex"`
	StacCatalogLocation string          `json:"stacCatalogLocation,omitempty"`
	ScrollID            string          `json:"scrollID,omitempty"`
	Operation           json.RawMessage `json:"operation,omitempty"`
}

// GET /service/work?serviceID=...
func (h *WorkHandler) GetWork(c *gin.Context) {
	serviceID := c.Query("serviceID")
	if serviceID == "" {
		response.RespondError(c, apierr.Validation("serviceID is required"))
		return
	}

	resp, err := h.work.GetWork(c.Request.Context(), serviceID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if resp == nil {
		c.Status(http.StatusNotFound)
		return
	}

	body := gin.H{"workItem": workItemView{
		ID:                  resp.Item.ID,
		JobID:               resp.Item.JobID.String(),
		ServiceID:           resp.Item.ServiceID,
		WorkflowStepIndex:   resp.Item.WorkflowStepIndex,
		StacCatalogLocation: resp.Item.StacCatalogLocation,
		ScrollID:            resp.Item.ScrollID,
		Operation:           json.RawMessage(resp.Operation),
	}}
	if resp.MaxCmrGranules != nil {
		body["maxCmrGranules"] = *resp.MaxCmrGranules
	}
	response.RespondOK(c, body)
}

type workUpdateRequest struct {
	Status             string    `json:"status"`
	Results            []string  `json:"results,omitempty"`
	OutputGranuleSizes []float64 `json:"outputGranuleSizes,omitempty"`
	ErrorMessage       string    `json:"errorMessage,omitempty"`
	ScrollID           string    `json:"scrollID,omitempty"`
	Hits               int       `json:"hits,omitempty"`
}

// PUT /service/work/:id
func (h *WorkHandler) UpdateWork(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.RespondError(c, apierr.Validation("Invalid work item ID %q", c.Param("id")))
		return
	}

	var req workUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.Validation("Invalid work item update: %v", err))
		return
	}

	err = h.work.UpdateWork(c.Request.Context(), itemID, services.WorkItemUpdate{
		Status:             types.WorkItemStatus(req.Status),
		Results:            req.Results,
		OutputGranuleSizes: req.OutputGranuleSizes,
		ErrorMessage:       req.ErrorMessage,
		ScrollID:           req.ScrollID,
		Hits:               req.Hits,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
