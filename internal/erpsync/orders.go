package erpsync

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/atelie-backend/internal/orders"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/erp"
)

const (
	freightBySender = 0
	discountUnit    = "REAL"
	erpDateLayout   = "2006-01-02"
)

// PushOrder creates or updates the sales order at the ERP, pushing any
// product that has no ERP id yet.
func (s *Service) PushOrder(ctx context.Context, orderID uuid.UUID) (*models.ERPOrderLink, error) {
	return s.pushOrder(ctx, orderID, "")
}

// ForwardTracking updates the ERP order with the carrier tracking code.
func (s *Service) ForwardTracking(ctx context.Context, orderID uuid.UUID, trackingCode string) (*models.ERPOrderLink, error) {
	if trackingCode == "" {
		return nil, pkgerrors.Validation("tracking", "code")
	}
	return s.pushOrder(ctx, orderID, trackingCode)
}

func (s *Service) pushOrder(ctx context.Context, orderID uuid.UUID, trackingCode string) (*models.ERPOrderLink, error) {
	view, err := s.orders.GetForERPSync(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order := view.Order
	ctx = s.logg.WithFields(s.logg.WithOrderCode(ctx, order.Code), map[string]any{"order_id": order.ID.String()})

	productIDs, err := s.ensureProducts(ctx, view)
	if err != nil {
		return nil, err
	}
	contactID, err := s.EnsureCustomerContact(ctx, order)
	if err != nil {
		return nil, err
	}
	carrier, err := s.EnsureCarrierContact(ctx, order.ShippingSelection.CarrierCompany)
	if err != nil {
		return nil, err
	}

	if trackingCode == "" && view.Label != nil && view.Label.TrackingCode != nil {
		trackingCode = *view.Label.TrackingCode
	}
	payload := orderPayload(order, productIDs, contactID, carrier, trackingCode)

	var known *int64
	if view.OrderLink != nil {
		known = view.OrderLink.ERPID
	}
	var erpID int64
	if known != nil {
		erpID = *known
		err = s.erp.UpdateOrder(ctx, erpID, payload)
	} else {
		erpID, err = s.erp.CreateOrder(ctx, payload, order.ID.String())
	}
	if err != nil {
		failed := &models.ERPOrderLink{ERPLink: s.failedLink(order.ID.String(), order.Code, known, err)}
		if saveErr := s.repo.SaveOrderLink(ctx, failed); saveErr != nil {
			s.logg.Error(ctx, "failed to record order push failure", saveErr)
		}
		s.logg.Error(ctx, "order push failed", err)
		return nil, erpError(err)
	}

	link := &models.ERPOrderLink{ERPLink: s.syncedLink(order.ID.String(), order.Code, erpID)}
	if err := s.repo.SaveOrderLink(ctx, link); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save order link")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"erp_id":   erpID,
		"created":  known == nil,
		"tracking": trackingCode != "",
	}), "order pushed to erp")
	return link, nil
}

// ensureProducts pushes the order's unlinked products concurrently and
// returns the ERP id of every variant in the order.
func (s *Service) ensureProducts(ctx context.Context, view *orders.ERPSyncView) (map[uuid.UUID]int64, error) {
	ids := make(map[uuid.UUID]int64, len(view.ProductERPIDs))
	for k, v := range view.ProductERPIDs {
		ids[k] = v
	}
	missing := view.MissingProducts()
	if len(missing) == 0 {
		return ids, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(productPushConcurrency)
	seen := map[uuid.UUID]struct{}{}
	for _, variantID := range missing {
		if _, dup := seen[variantID]; dup {
			continue
		}
		seen[variantID] = struct{}{}
		g.Go(func() error {
			link, err := s.PushProduct(gctx, variantID)
			if err != nil {
				return err
			}
			mu.Lock()
			ids[variantID] = *link.ERPID
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

func orderPayload(order *models.Order, productIDs map[uuid.UUID]int64, contactID int64, carrier *Carrier, trackingCode string) erp.Order {
	items := make([]erp.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, erp.OrderItem{
			Product:     erp.Ref{ID: productIDs[item.VariantID]},
			Code:        item.SKU,
			Description: item.ProductName,
			Quantity:    item.Quantity,
			Value:       item.UnitPrice.InexactFloat64(),
			Unit:        productUnit,
		})
	}
	transport := erp.Transport{
		FreightBy: freightBySender,
		Freight:   order.ShippingAmount.InexactFloat64(),
	}
	if carrier != nil {
		transport.Carrier = &erp.Ref{ID: carrier.ERPID}
	}
	if trackingCode != "" {
		transport.Volumes = []erp.Volume{{
			Service:      order.ShippingSelection.ServiceName,
			TrackingCode: trackingCode,
		}}
	}
	out := erp.Order{
		StoreNumber: order.Code,
		Date:        order.CreatedAt.Format(erpDateLayout),
		Contact:     erp.Ref{ID: contactID},
		Items:       items,
		Transport:   transport,
		Notes:       "Pedido " + order.Code,
	}
	if order.Discount.IsPositive() {
		out.Discount = &erp.Discount{Value: order.Discount.InexactFloat64(), Unit: discountUnit}
	}
	return out
}
