package work

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/eosdis/harmony-workflow/internal/domain"
	"github.com/eosdis/harmony-workflow/internal/pkg/dbctx"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

type LinkFilter struct {
	Rel string
	// RequireSpatioTemporal keeps only links renderable as STAC items.
	RequireSpatioTemporal bool
}

type JobLinkRepo interface {
	Append(dbc dbctx.Context, links []*types.JobLink) error
	// Page returns one page of a job's links in append order plus the total
	// count for the filter.
	Page(dbc dbctx.Context, jobID uuid.UUID, page, limit int, filter LinkFilter) ([]*types.JobLink, int64, error)
	DeleteByJobIDs(dbc dbctx.Context, jobIDs []uuid.UUID) (int64, error)
}

type jobLinkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobLinkRepo(db *gorm.DB, baseLog *logger.Logger) JobLinkRepo {
	return &jobLinkRepo{db: db, log: baseLog.With("repo", "JobLinkRepo")}
}

func (r *jobLinkRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *jobLinkRepo) Append(dbc dbctx.Context, links []*types.JobLink) error {
	if len(links) == 0 {
		return nil
	}
	return r.handle(dbc).Create(&links).Error
}

func (r *jobLinkRepo) Page(dbc dbctx.Context, jobID uuid.UUID, page, limit int, filter LinkFilter) ([]*types.JobLink, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	q := r.handle(dbc).Model(&types.JobLink{}).Where("job_id = ?", jobID)
	if filter.Rel != "" {
		q = q.Where("rel = ?", filter.Rel)
	}
	if filter.RequireSpatioTemporal {
		q = q.Where("bbox IS NOT NULL AND temporal_start IS NOT NULL AND temporal_end IS NOT NULL")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var links []*types.JobLink
	err := q.Order("id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&links).Error
	if err != nil {
		return nil, 0, err
	}
	return links, total, nil
}

func (r *jobLinkRepo) DeleteByJobIDs(dbc dbctx.Context, jobIDs []uuid.UUID) (int64, error) {
	if len(jobIDs) == 0 {
		return 0, nil
	}
	res := r.handle(dbc).Where("job_id IN ?", jobIDs).Delete(&types.JobLink{})
	return res.RowsAffected, res.Error
}
