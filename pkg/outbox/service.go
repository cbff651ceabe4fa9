package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
)

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit queues action inside tx. A duplicate of an already queued action is
// dropped silently.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, action Action) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !action.Kind.IsValid() {
		return errors.New("unknown action kind " + string(action.Kind))
	}
	if action.OrderID == uuid.Nil {
		return errors.New("action order id required")
	}
	data, err := json.Marshal(action)
	if err != nil {
		return err
	}
	envelope := PayloadEnvelope{
		Version:    CurrentVersion,
		ActionID:   uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	dedupe := action.DedupeKey()
	row := &models.OutboxEvent{
		Kind:      action.Kind,
		OrderID:   action.OrderID,
		DedupeKey: &dedupe,
		Payload:   payload,
	}
	inserted, err := s.repo.Insert(tx, row)
	if err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"action_id":  envelope.ActionID,
			"kind":       action.Kind,
			"order_id":   action.OrderID.String(),
			"duplicated": !inserted,
		})
		s.logg.Info(logCtx, "outbox action queued")
	}
	return nil
}

// EmitAll queues every action in order.
func (s *Service) EmitAll(ctx context.Context, tx *gorm.DB, actions []Action) error {
	for _, action := range actions {
		if err := s.Emit(ctx, tx, action); err != nil {
			return err
		}
	}
	return nil
}
