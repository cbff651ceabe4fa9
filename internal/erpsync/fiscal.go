package erpsync

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/pkg/brdoc"
	"github.com/angelmondragon/atelie-backend/pkg/db"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/erp"
)

const (
	fiscalTypeOutbound = 1
	fiscalPurposeNorm  = 1
	fiscalDateLayout   = "2006-01-02 15:04:05"
)

// EmitFiscalDocument issues the NF-e for a paid order and polls the ERP
// until the tax authority answers or the poll budget runs out. A document
// still processing afterwards is picked up by RetryPendingFiscal.
func (s *Service) EmitFiscalDocument(ctx context.Context, orderID uuid.UUID) (*models.FiscalDocument, error) {
	view, err := s.orders.GetForERPSync(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order := view.Order
	ctx = s.logg.WithFields(s.logg.WithOrderCode(ctx, order.Code), map[string]any{"order_id": order.ID.String()})

	if order.Status != enums.OrderStatusProcessingShipment && order.Status != enums.OrderStatusShipped {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is not ready for invoicing").
			WithDetails(map[string]any{"status": string(order.Status)})
	}

	doc, err := s.repo.FindFiscalDocumentByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load fiscal document")
	}
	if doc != nil {
		switch {
		case doc.Status == enums.FiscalStatusIssued || doc.Status == enums.FiscalStatusCancelled:
			return doc, nil
		case doc.ERPDocumentID != nil && (doc.Status == enums.FiscalStatusPending || doc.Status == enums.FiscalStatusProcessing):
			return s.pollFiscal(ctx, doc)
		}
	} else {
		if doc, err = s.createPendingDocument(ctx, orderID); err != nil {
			return nil, err
		}
	}

	carrier, err := s.EnsureCarrierContact(ctx, order.ShippingSelection.CarrierCompany)
	if err != nil {
		s.markFiscalPending(ctx, doc, err)
		return nil, err
	}

	req := s.fiscalRequest(order, carrier)
	erpID, err := s.erp.EmitFiscalDocument(ctx, req, order.ID.String())
	if err != nil {
		if erpID > 0 {
			doc.ERPDocumentID = &erpID
		}
		s.markFiscalPending(ctx, doc, err)
		s.logg.Error(ctx, "fiscal document emission failed", err)
		return nil, erpError(err)
	}

	now := s.now()
	updates := map[string]any{
		"erp_document_id": erpID,
		"status":          enums.FiscalStatusProcessing,
		"emitted_at":      now,
		"error_message":   nil,
	}
	if err := s.repo.UpdateFiscalDocument(ctx, doc.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save fiscal document")
	}
	doc.ERPDocumentID = &erpID
	doc.Status = enums.FiscalStatusProcessing
	doc.EmittedAt = &now
	s.logg.Info(s.logg.WithField(ctx, "erp_document_id", erpID), "fiscal document sent")

	return s.pollFiscal(ctx, doc)
}

func (s *Service) createPendingDocument(ctx context.Context, orderID uuid.UUID) (*models.FiscalDocument, error) {
	doc := &models.FiscalDocument{OrderID: orderID, Status: enums.FiscalStatusPending}
	err := s.repo.CreateFiscalDocument(ctx, doc)
	if err == nil {
		return doc, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create fiscal document")
	}
	existing, ferr := s.repo.FindFiscalDocumentByOrder(ctx, orderID)
	if ferr != nil || existing == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create fiscal document")
	}
	return existing, nil
}

// markFiscalPending keeps the document retryable and records why it stalled.
func (s *Service) markFiscalPending(ctx context.Context, doc *models.FiscalDocument, cause error) {
	msg := cause.Error()
	updates := map[string]any{
		"status":        enums.FiscalStatusPending,
		"error_message": msg,
	}
	if doc.ERPDocumentID != nil {
		updates["erp_document_id"] = *doc.ERPDocumentID
	}
	if err := s.repo.UpdateFiscalDocument(ctx, doc.ID, updates); err != nil {
		s.logg.Error(ctx, "failed to record fiscal document failure", err)
	}
}

func (s *Service) pollFiscal(ctx context.Context, doc *models.FiscalDocument) (*models.FiscalDocument, error) {
	for attempt := 0; attempt < s.cfg.FiscalPollAttempts; attempt++ {
		if err := s.sleep(ctx, s.cfg.FiscalPollInterval); err != nil {
			return doc, err
		}
		remote, err := s.erp.GetFiscalDocument(ctx, *doc.ERPDocumentID)
		if err != nil {
			if isReauthorization(err) {
				return nil, erpError(err)
			}
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt+1), "fiscal document poll failed: "+err.Error())
			continue
		}
		st, ok := s.fiscal[remote.Situation]
		if !ok || st == enums.FiscalStatusPending || st == enums.FiscalStatusProcessing {
			continue
		}
		if err := s.applyRemoteFiscal(ctx, doc, st, remote); err != nil {
			return nil, err
		}
		return s.reloadFiscal(ctx, doc)
	}
	s.logg.Info(ctx, "fiscal document still processing")
	return doc, nil
}

func (s *Service) reloadFiscal(ctx context.Context, doc *models.FiscalDocument) (*models.FiscalDocument, error) {
	fresh, err := s.repo.FindFiscalDocumentByOrder(ctx, doc.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload fiscal document")
	}
	if fresh == nil {
		return nil, pkgerrors.NotFound("fiscal document")
	}
	return fresh, nil
}

// fiscalAdvances reports whether a document may move from one status to
// another. Issued documents only move to cancelled; cancelled is final.
func fiscalAdvances(from, to enums.FiscalDocumentStatus) bool {
	switch {
	case from == to:
		return false
	case from == enums.FiscalStatusCancelled:
		return false
	case from == enums.FiscalStatusIssued:
		return to == enums.FiscalStatusCancelled
	}
	return true
}

// applyRemoteFiscal persists a status reported by the ERP. Issuing an
// invoice queues the work that waits for it in the same transaction.
func (s *Service) applyRemoteFiscal(ctx context.Context, doc *models.FiscalDocument, st enums.FiscalDocumentStatus, remote *erp.FiscalDocument) error {
	if remote == nil && st == enums.FiscalStatusIssued && doc.ERPDocumentID != nil {
		fetched, err := s.erp.GetFiscalDocument(ctx, *doc.ERPDocumentID)
		if err != nil {
			return erpError(err)
		}
		remote = fetched
	}

	updates := map[string]any{"status": st}
	switch st {
	case enums.FiscalStatusIssued:
		updates["error_message"] = nil
	case enums.FiscalStatusCancelled:
		updates["cancelled_at"] = s.now()
	case enums.FiscalStatusError:
		msg := "rejected by the tax authority"
		if remote != nil && remote.Message != "" {
			msg = remote.Message
		}
		updates["error_message"] = msg
	}
	if remote != nil {
		if remote.Number != "" {
			updates["number"] = remote.Number
		}
		if remote.Series != "" {
			updates["series"] = remote.Series
		}
		if remote.AccessKey != "" {
			updates["access_key"] = remote.AccessKey
		}
		if raw, err := json.Marshal(remote); err == nil {
			updates["envelope"] = datatypes.JSON(raw)
		}
	}

	err := s.orders.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateFiscalDocument(ctx, doc.ID, updates); err != nil {
			return err
		}
		if st != enums.FiscalStatusIssued {
			return nil
		}
		return s.orders.EnqueueTx(ctx, tx, s.orders.FiscalIssuedActions(doc.OrderID))
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save fiscal status")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"fiscal_document_id": doc.ID.String(),
		"from":               string(doc.Status),
		"to":                 string(st),
	}), "fiscal document status updated")
	return nil
}

func (s *Service) fiscalRequest(order *models.Order, carrier *Carrier) erp.FiscalDocumentRequest {
	contact := customerContact(order)
	items := make([]erp.FiscalItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, erp.FiscalItem{
			Code:           item.SKU,
			Description:    item.ProductName,
			Unit:           productUnit,
			Quantity:       item.Quantity,
			Value:          item.UnitPrice.InexactFloat64(),
			Type:           productType,
			Classification: brdoc.Digits(item.NCM),
			Origin:         productOriginBR,
		})
	}
	transport := erp.FiscalTransport{
		FreightBy: freightBySender,
		Freight:   order.ShippingAmount.InexactFloat64(),
	}
	if carrier != nil {
		transport.Carrier = &erp.FiscalCarrier{Name: carrier.Name, Document: carrier.Document}
	}
	req := erp.FiscalDocumentRequest{
		Type:          fiscalTypeOutbound,
		OperationDate: s.now().Format(fiscalDateLayout),
		Contact: erp.FiscalParty{
			Name:              contact.Name,
			PersonType:        contact.PersonType,
			Document:          contact.Document,
			StateRegistration: contact.StateRegistration,
			Email:             contact.Email,
			Address:           contact.Address.General,
		},
		Purpose:    fiscalPurposeNorm,
		Items:      items,
		Transport:  transport,
		StoreOrder: order.Code,
	}
	if s.cfg.NatureOperationID > 0 {
		req.NatureOperation = &erp.Ref{ID: s.cfg.NatureOperationID}
	}
	return req
}

// RetryPendingFiscal resumes emission for documents left pending or
// processing. It stops early when the ERP needs reauthorization.
func (s *Service) RetryPendingFiscal(ctx context.Context, limit int) (int, error) {
	docs, err := s.repo.ListFiscalDocumentsByStatus(ctx, []enums.FiscalDocumentStatus{
		enums.FiscalStatusPending,
		enums.FiscalStatusProcessing,
	}, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list fiscal documents")
	}
	var (
		errs    error
		retried int
	)
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return retried, multierr.Append(errs, err)
		}
		if _, err := s.EmitFiscalDocument(ctx, doc.OrderID); err != nil {
			if isReauthorization(err) {
				return retried, multierr.Append(errs, err)
			}
			errs = multierr.Append(errs, err)
			continue
		}
		retried++
	}
	return retried, errs
}
