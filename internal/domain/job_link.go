package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// JobLink is one output link of a job. Links are append-only while the job is
// active and are persisted in their own table rather than inline on the job
// row.
type JobLink struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"-"`
	JobID         uuid.UUID      `gorm:"type:uuid;column:job_id;not null;index" json:"-"`
	Href          string         `gorm:"not null" json:"href"`
	Title         string         `json:"title,omitempty"`
	Rel           string         `gorm:"not null;index" json:"rel"`
	Type          string         `json:"type,omitempty"`
	BBox          datatypes.JSON `gorm:"column:bbox" json:"bbox,omitempty"`
	TemporalStart *time.Time     `gorm:"column:temporal_start" json:"-"`
	TemporalEnd   *time.Time     `gorm:"column:temporal_end" json:"-"`
	CreatedAt     time.Time      `gorm:"not null" json:"-"`
	UpdatedAt     time.Time      `gorm:"not null" json:"-"`
}

func (JobLink) TableName() string { return "job_links" }

// RelData is the relation carried by step-output data links.
const (
	RelData     = "data"
	RelS3Access = "s3-access"
)

// HasSpatioTemporal reports whether the link carries enough metadata to be
// rendered as a STAC item.
func (l *JobLink) HasSpatioTemporal() bool {
	return len(l.BBox) > 0 && l.TemporalStart != nil && l.TemporalEnd != nil
}
