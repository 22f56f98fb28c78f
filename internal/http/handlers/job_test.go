package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eosdis/harmony-workflow/internal/services"
	"github.com/eosdis/harmony-workflow/internal/stac"
)

// stubJobService records cancel calls so handler tests can assert what
// reached the service layer.
type stubJobService struct {
	cancelJobID   uuid.UUID
	cancelRepeats bool
	cancelCalls   int
}

func (s *stubJobService) GetJobStatus(ctx context.Context, jobID uuid.UUID, v services.Viewer, linkType string, page, limit int) (*services.JobView, error) {
	return &services.JobView{}, nil
}

func (s *stubJobService) ListJobs(ctx context.Context, v services.Viewer, page, limit int) ([]*services.JobView, int64, error) {
	return nil, 0, nil
}

func (s *stubJobService) CancelJob(ctx context.Context, jobID uuid.UUID, v services.Viewer, ignoreRepeats bool) (*services.JobView, error) {
	s.cancelCalls++
	s.cancelJobID = jobID
	s.cancelRepeats = ignoreRepeats
	return &services.JobView{}, nil
}

func (s *stubJobService) PauseJob(ctx context.Context, jobID uuid.UUID, v services.Viewer) (*services.JobView, error) {
	return &services.JobView{}, nil
}

func (s *stubJobService) ResumeJob(ctx context.Context, jobID uuid.UUID, v services.Viewer) (*services.JobView, error) {
	return &services.JobView{}, nil
}

func (s *stubJobService) SkipPreview(ctx context.Context, jobID uuid.UUID, v services.Viewer) (*services.JobView, error) {
	return &services.JobView{}, nil
}

func (s *stubJobService) StacCatalog(ctx context.Context, jobID uuid.UUID, v services.Viewer, page, limit int) (*stac.Catalog, error) {
	return nil, nil
}

func (s *stubJobService) StacItem(ctx context.Context, jobID uuid.UUID, v services.Viewer, index int) (*stac.Item, error) {
	return nil, nil
}

func TestCancelJobForwardsIgnoreRepeats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &stubJobService{}
	h := NewJobHandler(stub)
	r := gin.New()
	r.POST("/jobs/:jobID/cancel", h.CancelJob(false))

	jobID := uuid.New()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/"+jobID.String()+"/cancel?ignoreRepeats=true", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if stub.cancelCalls != 1 {
		t.Fatalf("expected one cancel call, got %d", stub.cancelCalls)
	}
	if stub.cancelJobID != jobID {
		t.Fatalf("expected jobID %s, got %s", jobID, stub.cancelJobID)
	}
	if !stub.cancelRepeats {
		t.Fatalf("ignoreRepeats=true did not reach the service")
	}

	// Without the flag the cancel is strict.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/jobs/"+jobID.String()+"/cancel", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if stub.cancelRepeats {
		t.Fatalf("absent ignoreRepeats must default to false")
	}
}

func TestCancelJobRejectsMalformedID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &stubJobService{}
	h := NewJobHandler(stub)
	r := gin.New()
	r.POST("/jobs/:jobID/cancel", h.CancelJob(false))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/not-a-uuid/cancel?ignoreRepeats=true", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if stub.cancelCalls != 0 {
		t.Fatalf("malformed ID must not reach the service")
	}
}
