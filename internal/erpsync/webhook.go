package erpsync

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/internal/orders"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/outbox"
	"github.com/angelmondragon/atelie-backend/pkg/security"
)

const webhookConsumer = "erp_webhook"

var ErrUnknownEvent = errors.New("unrecognized erp event")

// WebhookEvent is a situation change for either a sales order or an NF-e.
type WebhookEvent struct {
	EventID          string
	OrderID          int64
	FiscalDocumentID int64
	SituationID      int64
}

// flexID accepts ids sent as numbers or strings.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return err
	}
	*f = flexID(n)
	return nil
}

type rawWebhook struct {
	EventID     string `json:"eventId"`
	Event       string `json:"event"`
	OrderID     flexID `json:"orderId"`
	NFeID       flexID `json:"nfeId"`
	SituationID flexID `json:"situationId"`
	Data        *struct {
		ID        flexID `json:"id"`
		Situation *struct {
			ID flexID `json:"id"`
		} `json:"situacao"`
	} `json:"data"`
}

// ParseWebhook reads either the flat {orderId|nfeId, situationId} form or
// the versioned {eventId, event, data} envelope. Bodies without an event id
// are identified by their hash.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var raw rawWebhook
	if err := json.Unmarshal(body, &raw); err != nil {
		return WebhookEvent{}, ErrUnknownEvent
	}
	ev := WebhookEvent{
		EventID:          strings.TrimSpace(raw.EventID),
		OrderID:          int64(raw.OrderID),
		FiscalDocumentID: int64(raw.NFeID),
		SituationID:      int64(raw.SituationID),
	}
	if raw.Data != nil && raw.Data.Situation != nil {
		switch {
		case strings.HasPrefix(raw.Event, "order."):
			ev.OrderID = int64(raw.Data.ID)
		case strings.HasPrefix(raw.Event, "invoice."):
			ev.FiscalDocumentID = int64(raw.Data.ID)
		}
		ev.SituationID = int64(raw.Data.Situation.ID)
	}
	if ev.SituationID <= 0 || (ev.OrderID <= 0) == (ev.FiscalDocumentID <= 0) {
		return WebhookEvent{}, ErrUnknownEvent
	}
	if ev.EventID == "" {
		ev.EventID = security.SHA256Hex(body)
	}
	return ev, nil
}

// WebhookOutcome reports what an ERP notification did.
type WebhookOutcome struct {
	Duplicate    bool
	Ignored      bool
	Reason       string
	Change       *orders.StatusChange
	FiscalStatus enums.FiscalDocumentStatus
}

func ignored(reason string) WebhookOutcome {
	return WebhookOutcome{Ignored: true, Reason: reason}
}

// HandleWebhook applies one ERP notification. Events that cannot affect
// local state are acknowledged; only infrastructure failures are returned,
// after releasing the dedupe mark so the redelivery is processed.
func (s *Service) HandleWebhook(ctx context.Context, body []byte) (WebhookOutcome, error) {
	ev, err := ParseWebhook(body)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "body_bytes", len(body)), "erp notification ignored: unknown payload")
		return ignored("unknown payload"), nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     ev.EventID,
		"situation_id": ev.SituationID,
		"erp_order_id": ev.OrderID,
		"erp_nfe_id":   ev.FiscalDocumentID,
	})

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, webhookConsumer, ev.EventID)
		if err != nil {
			return WebhookOutcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check erp event")
		}
		if seen {
			s.logg.Info(ctx, "erp notification already processed")
			return WebhookOutcome{Duplicate: true}, nil
		}
	}

	var out WebhookOutcome
	if ev.OrderID > 0 {
		out, err = s.applyOrderSituation(ctx, ev)
	} else {
		out, err = s.applyFiscalSituation(ctx, ev)
	}
	if err != nil {
		s.logg.Error(ctx, "failed to apply erp notification", err)
		if s.guard != nil {
			if ferr := s.guard.Forget(ctx, webhookConsumer, ev.EventID); ferr != nil {
				s.logg.Error(ctx, "failed to release erp event mark", ferr)
			}
		}
		return WebhookOutcome{}, err
	}
	if out.Ignored {
		s.logg.Warn(s.logg.WithField(ctx, "reason", out.Reason), "erp notification ignored")
	} else {
		s.logg.Info(ctx, "erp notification applied")
	}
	return out, nil
}

func (s *Service) applyOrderSituation(ctx context.Context, ev WebhookEvent) (WebhookOutcome, error) {
	link, err := s.repo.FindOrderLinkByERPID(ctx, ev.OrderID)
	if err != nil {
		return WebhookOutcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order link")
	}
	if link == nil {
		return ignored("unknown erp order"), nil
	}
	orderID, err := uuid.Parse(link.LocalKey)
	if err != nil {
		return ignored("malformed order link"), nil
	}
	situation, err := s.repo.FindSituation(ctx, ev.SituationID)
	if err != nil {
		return WebhookOutcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load situation")
	}
	if situation == nil || situation.OrderStatus == nil {
		return ignored("situation has no local effect"), nil
	}
	target := *situation.OrderStatus

	var change orders.StatusChange
	illegal := false
	err = s.orders.WithTx(ctx, func(tx *gorm.DB) error {
		c, err := s.orders.TransitionTx(ctx, tx, orders.TransitionInput{
			OrderID: orderID,
			To:      target,
			Source:  SourceERPWebhook,
		})
		if pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition) {
			illegal = true
			return nil
		}
		if err != nil {
			return err
		}
		change = c
		if target != enums.OrderStatusProcessingShipment {
			return nil
		}
		doc, err := s.repo.WithTx(tx).FindFiscalDocumentByOrder(ctx, orderID)
		if err != nil || doc != nil {
			return err
		}
		return s.orders.EnqueueTx(ctx, tx, []outbox.Action{{Kind: enums.ActionEmitFiscalDocument, OrderID: orderID}})
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return ignored("order not found"), nil
	}
	if err != nil {
		return WebhookOutcome{}, err
	}
	if illegal {
		return ignored("transition not allowed"), nil
	}
	return WebhookOutcome{Change: &change}, nil
}

func (s *Service) applyFiscalSituation(ctx context.Context, ev WebhookEvent) (WebhookOutcome, error) {
	doc, err := s.repo.FindFiscalDocumentByERPID(ctx, ev.FiscalDocumentID)
	if err != nil {
		return WebhookOutcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load fiscal document")
	}
	if doc == nil {
		return ignored("unknown fiscal document"), nil
	}
	st, ok := s.fiscal[ev.SituationID]
	if !ok {
		return ignored("unmapped fiscal situation"), nil
	}
	if !fiscalAdvances(doc.Status, st) {
		return ignored("fiscal status unchanged"), nil
	}
	if err := s.applyRemoteFiscal(ctx, doc, st, nil); err != nil {
		return WebhookOutcome{}, err
	}
	return WebhookOutcome{FiscalStatus: st}, nil
}
