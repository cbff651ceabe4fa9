// Package erpsync keeps the ERP's view of products, contacts and orders in
// step with the shop, emits NF-e documents and applies the ERP's situation
// changes back to orders.
package erpsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/internal/orders"
	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/gateway"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/erp"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
	"github.com/angelmondragon/atelie-backend/pkg/outbox"
)

const (
	SourceERPWebhook = "erp_webhook"

	productPushConcurrency = 4
)

type erpClient interface {
	FindProductByCode(ctx context.Context, code string) (int64, bool, error)
	CreateProduct(ctx context.Context, p erp.Product, localID string) (int64, error)
	UpdateProduct(ctx context.Context, id int64, p erp.Product) error
	FindContactByDocument(ctx context.Context, document string) (int64, bool, error)
	CreateContact(ctx context.Context, ct erp.Contact, localKey string) (int64, error)
	CreateOrder(ctx context.Context, o erp.Order, localID string) (int64, error)
	UpdateOrder(ctx context.Context, id int64, o erp.Order) error
	EmitFiscalDocument(ctx context.Context, req erp.FiscalDocumentRequest, localID string) (int64, error)
	GetFiscalDocument(ctx context.Context, id int64) (*erp.FiscalDocument, error)
}

type orderStore interface {
	GetForERPSync(ctx context.Context, orderID uuid.UUID) (*orders.ERPSyncView, error)
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	TransitionTx(ctx context.Context, tx *gorm.DB, in orders.TransitionInput) (orders.StatusChange, error)
	EnqueueTx(ctx context.Context, tx *gorm.DB, actions []outbox.Action) error
	FiscalIssuedActions(orderID uuid.UUID) []outbox.Action
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, consumer, eventID string) (bool, error)
	Forget(ctx context.Context, consumer, eventID string) error
}

type ServiceParams struct {
	Repository Repository
	Orders     orderStore
	ERP        erpClient
	Guard      eventGuard
	Logger     *logger.Logger
	ERPConfig  config.ERPConfig
	Shop       config.ShopConfig
	Shipping   config.ShippingConfig
}

type Service struct {
	repo     Repository
	orders   orderStore
	erp      erpClient
	guard    eventGuard
	logg     *logger.Logger
	cfg      config.ERPConfig
	shop     config.ShopConfig
	carriers map[string]string
	fiscal   map[int64]enums.FiscalDocumentStatus

	contacts sync.Map

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "erp repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order store required")
	}
	if params.ERP == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "erp client required")
	}
	fiscal, err := parseFiscalSituations(params.ERPConfig.FiscalSituationMap)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fiscal situation map")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:     params.Repository,
		orders:   params.Orders,
		erp:      params.ERP,
		guard:    params.Guard,
		logg:     logg,
		cfg:      params.ERPConfig,
		shop:     params.Shop,
		carriers: params.Shipping.CarrierDocuments(),
		fiscal:   fiscal,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepContext,
	}, nil
}

func parseFiscalSituations(raw string) (map[int64]enums.FiscalDocumentStatus, error) {
	pairs, err := config.ParseSituationMap(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]enums.FiscalDocumentStatus, len(pairs))
	for id, value := range pairs {
		st, err := enums.ParseFiscalDocumentStatus(value)
		if err != nil {
			return nil, fmt.Errorf("situation %d: %w", id, err)
		}
		out[id] = st
	}
	return out, nil
}

// erpError translates an ERP call failure. Expired credentials become
// ReauthorizationRequired so callers can degrade instead of retrying.
func erpError(err error) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeReauthorization) {
		return pkgerrors.ReauthorizationRequired(err)
	}
	gerr, ok := gateway.AsError(err)
	if !ok {
		return pkgerrors.GatewayUnavailable("erp", err)
	}
	details := map[string]any{"gateway": "erp", "op": gerr.Op, "kind": string(gerr.Kind)}
	if gerr.Status != 0 {
		details["status"] = gerr.Status
	}
	if gerr.Kind == gateway.KindBadRequest {
		details["body"] = gerr.Body
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "erp rejected the request").WithDetails(details)
	}
	if gerr.Kind == gateway.KindRateLimited {
		details["retry_after_seconds"] = int(gerr.RetryAfter.Seconds())
	}
	return pkgerrors.GatewayUnavailable("erp", err).WithDetails(details)
}

func isReauthorization(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeReauthorization)
}

// failedLink records a failed push. A previously known ERP id is kept.
func (s *Service) failedLink(key, code string, erpID *int64, err error) models.ERPLink {
	msg := err.Error()
	return models.ERPLink{
		LocalKey:   key,
		ERPID:      erpID,
		ERPCode:    code,
		SyncStatus: enums.ERPSyncError,
		LastError:  &msg,
	}
}

func (s *Service) syncedLink(key, code string, erpID int64) models.ERPLink {
	now := s.now()
	return models.ERPLink{
		LocalKey:     key,
		ERPID:        &erpID,
		ERPCode:      code,
		SyncStatus:   enums.ERPSyncSynced,
		LastSyncedAt: &now,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
