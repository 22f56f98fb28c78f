package app

import (
	"time"

	"github.com/eosdis/harmony-workflow/internal/platform/envutil"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

type Config struct {
	Port string

	// Auth
	SharedSecretKey string
	AdminGroup      string

	// Upstream services
	CmrEndpoint string
	EdlEndpoint string
	ClientID    string

	// Object store
	ObjectStoreType string
	ArtifactBucket  string
	HostVolumePath  string
	AwsRegion       string

	// Work dispatch
	DefaultResultPageSize int
	WorkItemRetryLimit    int
	CmrMaxPageSize        int
	AggregateMaxPageSize  int

	// Background services
	WorkFailerPeriod  time.Duration
	WorkFailerMinutes int
	WorkReaperPeriod  time.Duration
	WorkReaperMinAge  time.Duration

	// Dead letter queue
	RedisAddr        string
	DeadLetterStream string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port: envutil.Str("PORT", "3000", log),

		SharedSecretKey: envutil.Str("SHARED_SECRET_KEY", "defaultsecret", log),
		AdminGroup:      envutil.Str("ADMIN_GROUP", "Harmony Admin", log),

		CmrEndpoint: envutil.Str("CMR_ENDPOINT", "https://cmr.earthdata.nasa.gov", log),
		EdlEndpoint: envutil.Str("EDL_ENDPOINT", "https://urs.earthdata.nasa.gov", log),
		ClientID:    envutil.Str("CLIENT_ID", "harmony-workflow", log),

		ObjectStoreType: envutil.Str("OBJECT_STORE_TYPE", "s3", log),
		ArtifactBucket:  envutil.Str("ARTIFACT_BUCKET", "harmony-artifacts", log),
		HostVolumePath:  envutil.Str("HOST_VOLUME_PATH", "/tmp/harmony-artifacts", log),
		AwsRegion:       envutil.Str("AWS_DEFAULT_REGION", "us-west-2", log),

		DefaultResultPageSize: envutil.Int("DEFAULT_RESULT_PAGE_SIZE", 2000, log),
		WorkItemRetryLimit:    envutil.Int("WORK_ITEM_RETRY_LIMIT", 3, log),
		CmrMaxPageSize:        envutil.Int("CMR_MAX_PAGE_SIZE", 2000, log),
		AggregateMaxPageSize:  envutil.Int("AGGREGATE_STAC_CATALOG_MAX_PAGE_SIZE", 10000, log),

		WorkFailerPeriod:  envutil.Dur("WORK_FAILER_PERIOD_SEC", time.Minute, log),
		WorkFailerMinutes: envutil.Int("WORK_FAILER_MINUTES", 120, log),
		WorkReaperPeriod:  envutil.Dur("WORK_REAPER_PERIOD_SEC", 6*time.Minute, log),
		WorkReaperMinAge:  time.Duration(envutil.Int("WORK_REAPER_MIN_AGE_MINUTES", 1440, log)) * time.Minute,

		RedisAddr:        envutil.Str("REDIS_ADDR", "localhost:6379", log),
		DeadLetterStream: envutil.Str("DEAD_LETTER_STREAM", "harmony-dead-letter", log),
	}
}
