package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestJobValidate(t *testing.T) {
	job := &Job{
		JobID:    uuid.New(),
		Username: "joe",
		Status:   JobStatusAccepted,
		Request:  "https://example.com/ogc?granuleId=G1",
	}
	if err := job.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	job.Progress = 101
	if err := job.Validate(); err == nil {
		t.Fatalf("Validate: expected progress error")
	}
	job.Progress = 0

	job.Request = "ftp://example.com"
	if err := job.Validate(); err == nil {
		t.Fatalf("Validate: expected request URL error")
	}
	job.Request = "http://example.com"

	job.Status = "bogus"
	if err := job.Validate(); err == nil {
		t.Fatalf("Validate: expected status error")
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []JobStatus{JobStatusSuccessful, JobStatusCompleteWithErrors, JobStatusFailed, JobStatusCanceled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s terminal", s)
		}
	}
	active := []JobStatus{JobStatusAccepted, JobStatusRunning, JobStatusRunningWithErrors, JobStatusPaused, JobStatusPreviewing}
	for _, s := range active {
		if s.Terminal() {
			t.Fatalf("expected %s non-terminal", s)
		}
	}
}

func TestCollectionsRoundTrip(t *testing.T) {
	job := &Job{}
	if got := job.Collections(); len(got) != 0 {
		t.Fatalf("Collections on empty job: %v", got)
	}
	job.SetCollections([]string{"C1-PROV", "C2-PROV"})
	got := job.Collections()
	if len(got) != 2 || got[0] != "C1-PROV" || got[1] != "C2-PROV" {
		t.Fatalf("Collections: %v", got)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", MaxStringFieldLength+100)
	if got := Truncate(long); len(got) != MaxStringFieldLength {
		t.Fatalf("Truncate: len=%d", len(got))
	}
	if got := Truncate("short"); got != "short" {
		t.Fatalf("Truncate: %q", got)
	}
}

func TestWorkItemResultURIs(t *testing.T) {
	item := &WorkItem{}
	if got := item.ResultURIs(); len(got) != 0 {
		t.Fatalf("ResultURIs on empty item: %v", got)
	}
	item.SetResultURIs([]string{"s3://bucket/a.json", "s3://bucket/b.json"})
	got := item.ResultURIs()
	if len(got) != 2 || got[1] != "s3://bucket/b.json" {
		t.Fatalf("ResultURIs: %v", got)
	}
}
