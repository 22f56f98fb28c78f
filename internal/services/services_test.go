package services

import (
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	types "github.com/eosdis/harmony-workflow/internal/domain"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

var (
	testLogOnce sync.Once
	testLog     *logger.Logger
	testLogErr  error
)

func testLogger(tb testing.TB) *logger.Logger {
	tb.Helper()
	testLogOnce.Do(func() {
		testLog, testLogErr = logger.New("test")
	})
	if testLogErr != nil {
		tb.Fatalf("failed to init logger: %v", testLogErr)
	}
	return testLog
}

func touchItem(tb testing.TB, tx *gorm.DB, id int64, at time.Time) {
	tb.Helper()
	err := tx.Model(&types.WorkItem{}).Where("id = ?", id).Update("updated_at", at).Error
	if err != nil {
		tb.Fatalf("touch work item: %v", err)
	}
}
