package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/eosdis/harmony-workflow/internal/data/repos"
	"github.com/eosdis/harmony-workflow/internal/pkg/dbctx"
	"github.com/eosdis/harmony-workflow/internal/platform/apierr"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

const deadLetterMessage = "The job failed because one of its services could not process it after exhausting all retries"

type DeadLetterConfig struct {
	Stream   string
	Group    string
	Consumer string
	// Block is how long one read waits for messages before returning.
	Block time.Duration
}

// DeadLetterService consumes retry-exhausted messages from the service
// queues and fails the referenced jobs. Messages are always acknowledged and
// deleted after processing, malformed or orphaned ones included; only a
// transient database failure leaves the message in place for redelivery.
type DeadLetterService interface {
	Start(ctx context.Context)
	// ProcessOnce reads and handles at most count pending messages.
	ProcessOnce(ctx context.Context, count int64) (int, error)
}

type deadLetterService struct {
	rdb   *redis.Client
	db    *gorm.DB
	log   *logger.Logger
	jobs  repos.JobRepo
	items repos.WorkItemRepo
	cfg   DeadLetterConfig
}

func NewDeadLetterService(
	rdb *redis.Client,
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs repos.JobRepo,
	items repos.WorkItemRepo,
	cfg DeadLetterConfig,
) DeadLetterService {
	if cfg.Group == "" {
		cfg.Group = "orchestrator"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "orchestrator-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &deadLetterService{
		rdb:   rdb,
		db:    db,
		log:   baseLog.With("service", "DeadLetterService"),
		jobs:  jobs,
		items: items,
		cfg:   cfg,
	}
}

func (s *deadLetterService) Start(ctx context.Context) {
	go func() {
		if err := s.ensureGroup(ctx); err != nil {
			s.log.Error("Failed to create dead letter consumer group", "error", err)
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if _, err := s.ProcessOnce(ctx, 10); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn("Dead letter read failed", "error", err)
				time.Sleep(time.Second)
			}
		}
	}()
}

func (s *deadLetterService) ensureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (s *deadLetterService) ProcessOnce(ctx context.Context, count int64) (int, error) {
	streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    count,
		Block:    s.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	handled := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			remove, err := s.handleMessage(ctx, msg)
			if err != nil {
				// Transient failure: leave the message pending.
				s.log.Warn("Dead letter processing failed, will retry",
					"messageID", msg.ID, "error", err)
				continue
			}
			if remove {
				if err := s.rdb.XAck(ctx, s.cfg.Stream, s.cfg.Group, msg.ID).Err(); err != nil {
					s.log.Warn("Failed to ack dead letter message", "messageID", msg.ID, "error", err)
					continue
				}
				if err := s.rdb.XDel(ctx, s.cfg.Stream, msg.ID).Err(); err != nil {
					s.log.Warn("Failed to delete dead letter message", "messageID", msg.ID, "error", err)
				}
			}
			handled++
		}
	}
	return handled, nil
}

type deadLetterBody struct {
	RequestID string `json:"requestId"`
}

// handleMessage fails the referenced job. The bool reports whether the
// message should be removed from the stream; only transient database errors
// return false with an error.
func (s *deadLetterService) handleMessage(ctx context.Context, msg redis.XMessage) (bool, error) {
	raw, ok := msg.Values["body"].(string)
	if !ok {
		s.log.Warn("Dead letter message has no body", "messageID", msg.ID)
		return true, nil
	}
	var body deadLetterBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		s.log.Warn("Dead letter message body is malformed", "messageID", msg.ID, "error", err)
		return true, nil
	}
	jobID, err := uuid.Parse(body.RequestID)
	if err != nil {
		s.log.Warn("Dead letter message carries an invalid request id",
			"messageID", msg.ID, "requestID", body.RequestID)
		return true, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		job, err := s.jobs.GetByJobID(dbc, jobID, true)
		if err != nil {
			return fmt.Errorf("load job: %w", err)
		}
		if job == nil {
			s.log.Warn("Dead letter message references an unknown job", "jobID", jobID)
			return nil
		}
		if job.Status.Terminal() {
			return nil
		}
		if err := ApplyEvent(job, EventFail, ApplyOptions{Message: deadLetterMessage}); err != nil {
			if apierr.IsCode(err, apierr.CodeConflict) {
				// Not a transient condition; dropping the message is safe.
				s.log.Warn("Dead letter message for a job that cannot fail",
					"jobID", jobID, "status", job.Status)
				return nil
			}
			return err
		}
		if err := s.jobs.Save(dbc, job); err != nil {
			return fmt.Errorf("save failed job: %w", err)
		}
		_, err = s.items.CancelPending(dbc, jobID)
		return err
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
