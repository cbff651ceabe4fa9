package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/internal/actions"
	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
	"github.com/angelmondragon/atelie-backend/pkg/metrics"
	"github.com/angelmondragon/atelie-backend/pkg/outbox"
)

const (
	defaultBatchSize      = 25
	defaultPollMs         = 1000
	defaultMaxAttempts    = 8
	defaultLease          = 2 * time.Minute
	defaultHandlerTimeout = 90 * time.Second
	defaultRetryBase      = 10 * time.Second
	defaultRetryMax       = 30 * time.Minute
	defaultReauthDelay    = 15 * time.Minute
	maxIdleBackoff        = 10 * time.Second
	jitterPercent         = 20
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]models.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error, next time.Time) error
	Defer(ctx context.Context, id uuid.UUID, err error, next time.Time) error
	DeleteTx(tx *gorm.DB, id uuid.UUID) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type decoder interface {
	Resolve(kind enums.ActionKind, raw []byte) (outbox.PayloadEnvelope, outbox.Action, error)
}

type handler interface {
	Handle(ctx context.Context, action outbox.Action) error
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	Repository    outboxRepository
	DLQRepository dlqRepository
	Decoders      decoder
	Handlers      handler
	Metrics       *metrics.ActionMetrics
}

type Service struct {
	logg           *logger.Logger
	db             dbClient
	repo           outboxRepository
	dlq            dlqRepository
	decoders       decoder
	handlers       handler
	metrics        *metrics.ActionMetrics
	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	lease          time.Duration
	handlerTimeout time.Duration
	retryBase      time.Duration
	retryMax       time.Duration
	reauthDelay    time.Duration
	now            func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.DLQRepository == nil {
		return nil, errors.New("dlq repository is required")
	}
	if params.Decoders == nil {
		return nil, errors.New("decoder registry is required")
	}
	if params.Handlers == nil {
		return nil, errors.New("action handlers are required")
	}

	cfg := params.Config.Outbox
	pollMs := positive(cfg.PollIntervalMS, defaultPollMs)
	return &Service{
		logg:           params.Logger,
		db:             params.DB,
		repo:           params.Repository,
		dlq:            params.DLQRepository,
		decoders:       params.Decoders,
		handlers:       params.Handlers,
		metrics:        params.Metrics,
		batchSize:      positive(cfg.BatchSize, defaultBatchSize),
		maxAttempts:    positive(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval:   time.Duration(pollMs) * time.Millisecond,
		lease:          positiveDuration(cfg.Lease, defaultLease),
		handlerTimeout: positiveDuration(cfg.HandlerTimeout, defaultHandlerTimeout),
		retryBase:      positiveDuration(cfg.RetryBase, defaultRetryBase),
		retryMax:       positiveDuration(cfg.RetryMax, defaultRetryMax),
		reauthDelay:    positiveDuration(cfg.ReauthDelay, defaultReauthDelay),
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

func positive(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func positiveDuration(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}

	interval := s.pollInterval
	backoff := interval
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "action dispatcher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "action dispatcher batch error", err)
			backoff = min(backoff*2, maxIdleBackoff)
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			continue
		}
		backoff = interval
		if processed {
			continue
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// processBatch claims due rows and runs each handler outside any
// transaction. Failures of one row never stop the rest of the batch.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	events, err := s.repo.ClaimPending(ctx, s.batchSize, s.lease)
	if err != nil {
		return false, fmt.Errorf("claim pending actions: %w", err)
	}
	if len(events) == 0 {
		return false, nil
	}
	for _, event := range events {
		if err := s.dispatch(ctx, event); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) error {
	fields := eventFields(event)
	envelope, action, err := s.decoders.Resolve(event.Kind, event.Payload)
	if err != nil {
		return s.deadLetter(ctx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["action_id"] = envelope.ActionID
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, action.OrderID.String()), fields)

	runCtx, cancel := context.WithTimeout(logCtx, s.handlerTimeout)
	err = s.handlers.Handle(runCtx, action)
	cancel()

	outcome := actions.Classify(err)
	s.metrics.Inc(string(event.Kind), string(outcome))
	switch outcome {
	case actions.OutcomeDone:
		if markErr := s.repo.MarkDispatched(ctx, event.ID); markErr != nil {
			return fmt.Errorf("mark dispatched %s: %w", event.ID, markErr)
		}
		s.logg.Info(logCtx, "action dispatched")
		return nil
	case actions.OutcomeDefer:
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "action deferred until the erp is reauthorized")
		return s.repo.Defer(ctx, event.ID, err, s.now().Add(s.reauthDelay))
	case actions.OutcomeTerminal:
		return s.deadLetter(ctx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}

	attempt := event.AttemptCount + 1
	if attempt >= s.maxAttempts {
		fields["terminal_reason"] = "max_attempts"
		return s.deadLetter(ctx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max dispatch attempts reached: %w", err), fields)
	}
	next := s.now().Add(s.retryDelay(attempt))
	s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
		"attempt_count": attempt,
		"next_attempt":  next.Format(time.RFC3339),
		"error":         err.Error(),
	}), "action failed, will retry")
	if markErr := s.repo.MarkFailed(ctx, event.ID, err, next); markErr != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	return nil
}

// retryDelay is the capped, jittered exponential delay before the given
// attempt number.
func (s *Service) retryDelay(attempt int) time.Duration {
	b := retry.NewExponential(s.retryBase)
	b = retry.WithCappedDuration(s.retryMax, b)
	b = retry.WithJitterPercent(jitterPercent, b)
	var d time.Duration
	for i := 0; i < attempt; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		d = next
	}
	return d
}

func (s *Service) deadLetter(ctx context.Context, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, err error, fields map[string]any) error {
	fields["error_reason"] = reason
	s.logg.Warn(s.logg.WithFields(s.logg.WithField(ctx, "error", err.Error()), fields), "action will not be retried")
	msg := err.Error()
	entry := models.OutboxDLQ{
		EventID:      event.ID,
		Kind:         event.Kind,
		OrderID:      event.OrderID,
		Payload:      event.Payload,
		ErrorReason:  reason,
		ErrorMessage: &msg,
		AttemptCount: event.AttemptCount + 1,
		FailedAt:     s.now(),
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.DeleteTx(tx, event.ID); err != nil {
			return fmt.Errorf("delete dead action %s: %w", event.ID, err)
		}
		return nil
	})
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"kind":          string(event.Kind),
		"attempt_count": event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
