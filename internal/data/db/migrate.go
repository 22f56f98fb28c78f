package db

import (
	"fmt"

	types "github.com/eosdis/harmony-workflow/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Job{},
		&types.JobLink{},
		&types.WorkflowStep{},
		&types.WorkItem{},
	)
}

// EnsureWorkIndexes creates the indexes the dispatch, failer, and reaper
// queries depend on. Forward-only: indexes are only ever added.
func EnsureWorkIndexes(db *gorm.DB) error {
	// Fair-queue candidate scan.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_work_items_ready_service
		ON work_items (service_id, status, job_id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_work_items_ready_service: %w", err)
	}
	// Failer discovery of long-running items.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_work_items_status_updated
		ON work_items (status, updated_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_work_items_status_updated: %w", err)
	}
	// Reaper discovery of long-idle terminal jobs.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_jobs_status_updated
		ON jobs (status, updated_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_jobs_status_updated: %w", err)
	}
	// Link pagination per job.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_job_links_job_id_id
		ON job_links (job_id, id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_job_links_job_id_id: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureWorkIndexes(s.db); err != nil {
		s.log.Error("Work index migration failed", "error", err)
		return err
	}
	return nil
}
