package orders

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/internal/status"
	"github.com/angelmondragon/atelie-backend/pkg/config"
	dbpkg "github.com/angelmondragon/atelie-backend/pkg/db"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
	"github.com/angelmondragon/atelie-backend/pkg/outbox"
	"github.com/angelmondragon/atelie-backend/pkg/security"
)

const (
	publicTokenBytes  = 24
	mintTokenAttempts = 3
	sourceCheckout    = "checkout"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, action outbox.Action) error
}

// Store owns the order aggregate: creation with stock, payments, public
// tokens and the status state machine.
type Store struct {
	repo         Repository
	tx           txRunner
	outbox       outboxPublisher
	codes        *CodeGenerator
	logg         *logger.Logger
	labelTrigger string
	now          func() time.Time
}

type StoreParams struct {
	Repository   Repository
	Tx           txRunner
	Outbox       outboxPublisher
	Codes        *CodeGenerator
	Logger       *logger.Logger
	LabelTrigger string
}

func NewStore(params StoreParams) (*Store, error) {
	if params.Repository == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	if params.Codes == nil {
		return nil, errors.New("order code generator required")
	}
	trigger := params.LabelTrigger
	if trigger == "" {
		trigger = config.LabelTriggerPayment
	}
	return &Store{
		repo:         params.Repository,
		tx:           params.Tx,
		outbox:       params.Outbox,
		codes:        params.Codes,
		logg:         params.Logger,
		labelTrigger: trigger,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithTx exposes the store's transaction runner to callers composing
// several store operations atomically.
func (s *Store) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.tx.WithTx(ctx, fn)
}

// CreateOrder reserves stock for every line and persists the order with its
// item snapshots in one transaction. Any shortfall aborts the whole order.
func (s *Store) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	lines := append([]Line(nil), in.Lines...)
	// fixed lock order across concurrent checkouts
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].VariantID.String() < lines[j].VariantID.String()
	})

	order := &models.Order{
		Code:              s.codes.Next(),
		UserID:            in.UserID,
		SessionID:         in.SessionID,
		Status:            enums.OrderStatusCreated,
		PaymentMethod:     in.PaymentMethod,
		Subtotal:          in.Totals.Subtotal,
		ShippingAmount:    in.Totals.Shipping,
		Discount:          in.Totals.Discount,
		Total:             in.Totals.Total(),
		ShipTo:            in.ShipTo,
		Fiscal:            in.Fiscal,
		ShippingSelection: in.Selection,
		ClientIP:          in.ClientIP,
		UserAgent:         in.UserAgent,
	}
	if in.Selection.EstimateDays > 0 {
		estimate := s.now().AddDate(0, 0, in.Selection.EstimateDays)
		order.DeliveryEstimate = &estimate
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, line := range lines {
			ok, err := repo.DecrementStock(ctx, line.VariantID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.InsufficientStock(line.VariantID.String())
			}
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}
		items := make([]models.OrderItem, 0, len(in.Lines))
		for _, line := range in.Lines {
			items = append(items, models.OrderItem{
				OrderID:     order.ID,
				VariantID:   line.VariantID,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Subtotal:    line.Subtotal(),
				ProductName: line.ProductName,
				SKU:         line.SKU,
				NCM:         line.NCM,
				WeightKG:    line.WeightKG,
				Details:     line.Details,
			})
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return err
		}
		order.Items = items
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderCode(ctx, order.Code), map[string]any{
			"order_id": order.ID.String(),
			"total":    order.Total.StringFixed(2),
			"items":    len(order.Items),
		})
		s.logg.Info(logCtx, "order created")
	}
	return order, nil
}

func validateCreate(in CreateOrderInput) error {
	if len(in.Lines) == 0 {
		return pkgerrors.Validation("cart", "empty")
	}
	if !in.PaymentMethod.IsValid() {
		return pkgerrors.Validation("payment", "method")
	}
	sum := decimal.Zero
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return pkgerrors.Validation("cart", "quantity")
		}
		if line.UnitPrice.IsNegative() {
			return pkgerrors.Validation("cart", "price")
		}
		sum = sum.Add(line.Subtotal())
	}
	if !sum.Equal(in.Totals.Subtotal) {
		return pkgerrors.Validation("cart", "subtotal mismatch")
	}
	if in.Totals.Shipping.IsNegative() || in.Totals.Discount.IsNegative() {
		return pkgerrors.Validation("cart", "negative amount")
	}
	if !in.Totals.Total().IsPositive() {
		return pkgerrors.Validation("cart", "total")
	}
	return nil
}

// RecordedPayment is the result of RecordPayment.
type RecordedPayment struct {
	Payment *models.Payment
	Order   *models.Order
	Changes []StatusChange
}

// RecordPayment stores the gateway's first answer for the order, moves the
// order to AWAITING_PAYMENT and then applies whatever transition the charge
// status implies, all in one transaction.
func (s *Store) RecordPayment(ctx context.Context, in RecordPaymentInput) (*RecordedPayment, error) {
	var out RecordedPayment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		p, err := s.buildPayment(in)
		if err != nil {
			return err
		}
		if err := repo.CreatePayment(ctx, p); err != nil {
			return err
		}
		out.Payment = p

		change, err := s.TransitionTx(ctx, tx, TransitionInput{
			OrderID: in.OrderID,
			To:      enums.OrderStatusAwaitingPayment,
			Source:  sourceCheckout,
		})
		if err != nil {
			return err
		}
		out.Changes = append(out.Changes, change)

		if target, ok := status.OrderTargetForPayment(p.Status); ok {
			change, err := s.TransitionTx(ctx, tx, TransitionInput{
				OrderID: in.OrderID,
				To:      target,
				Source:  sourceCheckout,
			})
			if err != nil {
				return err
			}
			out.Changes = append(out.Changes, change)
		}

		order, err := repo.FindOrderByID(ctx, in.OrderID)
		if err != nil {
			return err
		}
		out.Order = order
		return nil
	})
	if err != nil {
		return nil, asDomainError(err, "record payment")
	}
	return &out, nil
}

func (s *Store) buildPayment(in RecordPaymentInput) (*models.Payment, error) {
	charge := in.Charge
	p := &models.Payment{
		OrderID:       in.OrderID,
		Method:        in.Method,
		Status:        status.PaymentFromGateway(charge.Status),
		GatewayStatus: strings.ToUpper(strings.TrimSpace(charge.Status)),
		Amount:        in.Amount,
	}
	if charge.ID != "" {
		id := charge.ID
		p.TransactionID = &id
	}
	if in.GatewayOrderID != "" {
		id := in.GatewayOrderID
		p.GatewayOrderID = &id
	}

	switch in.Method {
	case enums.PaymentMethodPix:
		p.PixQRText = optional(charge.QRText())
		p.PixQRLink = optional(charge.QRLink())
	case enums.PaymentMethodBoleto:
		if charge.Boleto != nil {
			p.BoletoBarcode = optional(charge.Boleto.Barcode.Content)
		}
		p.BoletoLink = optional(charge.BoletoLink())
		if due, ok := charge.BoletoDueDate(); ok {
			p.BoletoDueDate = &due
		}
	case enums.PaymentMethodCreditCard:
		if card := charge.PaymentMethod.Card; card != nil {
			p.CardBrand = optional(card.Brand)
		}
		if n := charge.PaymentMethod.Installments; n > 0 {
			p.Installments = &n
		}
	}
	if p.Status == enums.PaymentStatusCancelled {
		p.DeclineReason = optional(charge.DeclineMessage())
	}

	history, _, err := appendEnvelope(datatypes.JSON("[]"), sourceCheckout, in.Raw, s.now())
	if err != nil {
		return nil, err
	}
	p.RawHistory = history
	return p, nil
}

// UpdatePaymentStatus appends the raw notification to the payment's history
// and applies the mapped status.
func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, gatewayStatus string, raw []byte, source string) (PaymentUpdate, error) {
	var out PaymentUpdate
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = s.UpdatePaymentStatusTx(ctx, tx, paymentID, gatewayStatus, raw, source)
		return err
	})
	return out, err
}

// UpdatePaymentStatusTx is UpdatePaymentStatus inside the caller's
// transaction. An envelope identical to one already in the history is not
// appended again. A settled or cancelled payment never moves back to pending.
func (s *Store) UpdatePaymentStatusTx(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, gatewayStatus string, raw []byte, source string) (PaymentUpdate, error) {
	repo := s.repo.WithTx(tx)
	p, err := repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return PaymentUpdate{}, asDomainError(err, "payment")
	}
	out := PaymentUpdate{Payment: p, Previous: p.Status}

	history, appended, err := appendEnvelope(p.RawHistory, source, raw, s.now())
	if err != nil {
		return PaymentUpdate{}, err
	}
	out.Appended = appended

	next := status.PaymentFromGateway(gatewayStatus)
	if next == enums.PaymentStatusPending && p.Status != enums.PaymentStatusPending {
		next = p.Status
	}
	updates := map[string]any{}
	if appended {
		updates["raw_history"] = history
		p.RawHistory = history
	}
	if next != p.Status {
		updates["status"] = next
		updates["gateway_status"] = strings.ToUpper(strings.TrimSpace(gatewayStatus))
		p.Status = next
		p.GatewayStatus = updates["gateway_status"].(string)
		out.StatusChanged = true
	}
	if len(updates) == 0 {
		return out, nil
	}
	if err := repo.UpdatePayment(ctx, p.ID, updates); err != nil {
		return PaymentUpdate{}, err
	}
	return out, nil
}

// UpdateOrderStatus applies a transition in its own transaction.
func (s *Store) UpdateOrderStatus(ctx context.Context, in TransitionInput) (StatusChange, error) {
	var change StatusChange
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		change, err = s.TransitionTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return StatusChange{}, asDomainError(err, "update order status")
	}
	return change, nil
}

// TransitionTx moves the order along the state machine inside tx. Moving to
// the current status is a no-op. On success the public token mirrors the new
// status, cancelled orders return their stock, and follow-on actions are
// queued in the outbox within the same transaction.
func (s *Store) TransitionTx(ctx context.Context, tx *gorm.DB, in TransitionInput) (StatusChange, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.LockOrder(ctx, in.OrderID)
	if err != nil {
		return StatusChange{}, asDomainError(err, "order")
	}
	change := StatusChange{OrderID: order.ID, From: order.Status, To: in.To}
	if order.Status == in.To {
		return change, nil
	}
	if !CanTransition(order.Status, in.To) {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_id": order.ID.String(),
				"from":     order.Status,
				"to":       in.To,
				"source":   in.Source,
			})
			s.logg.Warn(logCtx, "illegal order transition rejected")
		}
		return StatusChange{}, pkgerrors.IllegalTransition(strings.ToUpper(string(order.Status)), strings.ToUpper(string(in.To)))
	}

	now := s.now()
	updates := map[string]any{"status": in.To}
	switch {
	case in.To == enums.OrderStatusShipped:
		updates["shipped_at"] = now
	case in.To == enums.OrderStatusDelivered:
		updates["delivered_at"] = now
	case in.To.IsCancelled():
		updates["cancelled_at"] = now
	}
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return StatusChange{}, err
	}

	if in.To.IsCancelled() && restocksOnCancel(order.Status) {
		full, err := repo.FindOrderByID(ctx, order.ID)
		if err != nil {
			return StatusChange{}, err
		}
		for _, item := range full.Items {
			if err := repo.RestoreStock(ctx, item.VariantID, item.Quantity); err != nil {
				return StatusChange{}, err
			}
		}
	}

	tokenUpdates := map[string]any{"status": status.PublicFromOrder(in.To)}
	if in.To == enums.OrderStatusDelivered {
		tokenUpdates["token"] = nil
		tokenUpdates["cleared_at"] = now
	}
	if err := repo.UpdatePublicToken(ctx, order.ID, tokenUpdates); err != nil {
		return StatusChange{}, err
	}

	change.Changed = true
	change.Actions = s.actionsFor(order.ID, in.To, in.TrackingCode)
	if err := s.EnqueueTx(ctx, tx, change.Actions); err != nil {
		return StatusChange{}, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderCode(ctx, order.Code), map[string]any{
			"order_id": order.ID.String(),
			"from":     change.From,
			"to":       change.To,
			"source":   in.Source,
			"actions":  len(change.Actions),
		})
		s.logg.Info(logCtx, "order status changed")
	}
	return change, nil
}

func (s *Store) actionsFor(orderID uuid.UUID, to enums.OrderStatus, trackingCode string) []outbox.Action {
	var actions []outbox.Action
	switch to {
	case enums.OrderStatusProcessingShipment:
		actions = append(actions,
			outbox.Action{Kind: enums.ActionPushOrder, OrderID: orderID},
			outbox.Action{Kind: enums.ActionEmitFiscalDocument, OrderID: orderID},
		)
		if s.labelTrigger == config.LabelTriggerPayment {
			actions = append(actions, outbox.Action{Kind: enums.ActionCreateLabel, OrderID: orderID})
		}
	case enums.OrderStatusShipped:
		if trackingCode != "" {
			actions = append(actions, outbox.Action{Kind: enums.ActionForwardTracking, OrderID: orderID, TrackingCode: trackingCode})
		}
	}
	return actions
}

// FiscalIssuedActions returns the actions due once the order's invoice is
// authorized. Labels wait for the invoice only under the invoice trigger.
func (s *Store) FiscalIssuedActions(orderID uuid.UUID) []outbox.Action {
	if s.labelTrigger != config.LabelTriggerInvoice {
		return nil
	}
	return []outbox.Action{{Kind: enums.ActionCreateLabel, OrderID: orderID}}
}

// EnqueueTx queues actions in tx.
func (s *Store) EnqueueTx(ctx context.Context, tx *gorm.DB, actions []outbox.Action) error {
	for _, action := range actions {
		if err := s.outbox.Emit(ctx, tx, action); err != nil {
			return err
		}
	}
	return nil
}

// MintPublicToken generates and stores the order's tracking token.
func (s *Store) MintPublicToken(ctx context.Context, orderID uuid.UUID, public enums.PublicStatus) (string, error) {
	for attempt := 0; attempt < mintTokenAttempts; attempt++ {
		value, err := security.RandomToken(publicTokenBytes)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint public token")
		}
		row := &models.PublicToken{OrderID: orderID, Token: &value, Status: public}
		err = s.repo.CreatePublicToken(ctx, row)
		if err == nil {
			return value, nil
		}
		if dbpkg.IsUniqueViolation(err, "ux_public_tokens_order") {
			return "", pkgerrors.New(pkgerrors.CodeConflict, "order already has a public token")
		}
		if !dbpkg.IsUniqueViolation(err, "") {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store public token")
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "could not mint a unique public token")
}

// ClearPublicToken revokes the token value but keeps the row for audit.
func (s *Store) ClearPublicToken(ctx context.Context, orderID uuid.UUID) error {
	err := s.repo.UpdatePublicToken(ctx, orderID, map[string]any{
		"token":      nil,
		"cleared_at": s.now(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear public token")
	}
	return nil
}

// DiscardUnpaidOrder compensates an order whose payment was never created:
// stock returns and the CREATED order and its items are removed. Orders in
// any other status, or with a payment, are left untouched.
func (s *Store) DiscardUnpaidOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if locked.Status != enums.OrderStatusCreated {
			return pkgerrors.IllegalTransition(strings.ToUpper(string(locked.Status)), "DISCARDED")
		}
		payments, err := repo.CountPayments(ctx, orderID)
		if err != nil {
			return err
		}
		if payments > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has a payment")
		}
		order, err := repo.FindOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := repo.RestoreStock(ctx, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}
		return repo.DeleteOrder(ctx, orderID)
	})
	if err != nil {
		return asDomainError(err, "discard order")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String(), "reason": reason})
		s.logg.Warn(logCtx, "unpaid order discarded")
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, id)
	if err != nil {
		return nil, asDomainError(err, "order")
	}
	return order, nil
}

func (s *Store) GetByCode(ctx context.Context, code string) (*models.Order, error) {
	order, err := s.repo.FindOrderByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, asDomainError(err, "order")
	}
	return order, nil
}

// GetByPublicToken resolves an active token to its order view. Cleared or
// unknown tokens are NotFound.
func (s *Store) GetByPublicToken(ctx context.Context, token string) (*TrackingView, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.NotFound("order")
	}
	tok, err := s.repo.FindPublicToken(ctx, token)
	if err != nil {
		return nil, asDomainError(err, "order")
	}
	order, err := s.repo.FindOrderByID(ctx, tok.OrderID)
	if err != nil {
		return nil, asDomainError(err, "order")
	}
	view := &TrackingView{Order: order, PublicStatus: tok.Status, UpdatedAt: tok.UpdatedAt}
	if p, err := s.repo.FindLatestPayment(ctx, order.ID); err == nil {
		view.Payment = p
	} else if !dbpkg.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	label, err := s.repo.FindActiveLabel(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load label")
	}
	view.Label = label
	return view, nil
}

// FindPaymentByTransaction resolves a gateway charge id.
func (s *Store) FindPaymentByTransaction(ctx context.Context, transactionID string) (*models.Payment, error) {
	p, err := s.repo.FindPaymentByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, asDomainError(err, "payment")
	}
	return p, nil
}

// LatestPayment returns the most recent payment of the order.
func (s *Store) LatestPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	p, err := s.repo.FindLatestPayment(ctx, orderID)
	if err != nil {
		return nil, asDomainError(err, "payment")
	}
	return p, nil
}

// GetForERPSync loads the order with the ERP ids of its products and the
// documents the ERP flows need.
func (s *Store) GetForERPSync(ctx context.Context, orderID uuid.UUID) (*ERPSyncView, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, asDomainError(err, "order")
	}
	variantIDs := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		variantIDs = append(variantIDs, item.VariantID)
	}
	ids, err := s.repo.ProductERPIDs(ctx, variantIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product links")
	}
	view := &ERPSyncView{Order: order, ProductERPIDs: ids}
	if view.OrderLink, err = s.repo.FindOrderLink(ctx, orderID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order link")
	}
	if view.FiscalDocument, err = s.repo.FindFiscalDocument(ctx, orderID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load fiscal document")
	}
	if view.Label, err = s.repo.FindActiveLabel(ctx, orderID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load label")
	}
	return view, nil
}

// ListStale returns orders still in status that were created before cutoff.
func (s *Store) ListStale(ctx context.Context, st enums.OrderStatus, cutoff time.Time, limit int) ([]models.Order, error) {
	return s.repo.ListOrdersByStatus(ctx, st, cutoff, limit)
}

func appendEnvelope(history datatypes.JSON, source string, raw []byte, at time.Time) (datatypes.JSON, bool, error) {
	var entries []models.PaymentEnvelope
	if len(history) > 0 {
		if err := json.Unmarshal(history, &entries); err != nil {
			return nil, false, err
		}
	}
	digest := security.SHA256Hex(raw)
	for _, entry := range entries {
		if entry.SHA256 == digest {
			return history, false, nil
		}
	}
	payload := raw
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(raw))
		if err != nil {
			return nil, false, err
		}
		payload = quoted
	}
	entries = append(entries, models.PaymentEnvelope{
		ReceivedAt: at,
		Source:     source,
		SHA256:     digest,
		Payload:    datatypes.JSON(payload),
	})
	encoded, err := json.Marshal(entries)
	if err != nil {
		return nil, false, err
	}
	return datatypes.JSON(encoded), true, nil
}

func asDomainError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if dbpkg.IsNotFound(err) {
		return pkgerrors.NotFound(resource)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, resource)
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
