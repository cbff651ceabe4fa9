package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/atelie-backend/api/responses"
	"github.com/angelmondragon/atelie-backend/api/validators"
	"github.com/angelmondragon/atelie-backend/internal/orders"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
)

const adminSource = "admin"

type OrderTransitioner interface {
	UpdateOrderStatus(ctx context.Context, in orders.TransitionInput) (orders.StatusChange, error)
}

// AdminOrderStatus applies an operator transition through the order state
// machine. Follow-on actions are queued by the store.
func AdminOrderStatus(store OrderTransitioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := uuidParam(r, "orderID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload adminStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		to, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Validation("status", "unknown status"))
			return
		}

		change, err := store.UpdateOrderStatus(ctx, orders.TransitionInput{
			OrderID:      orderID,
			To:           to,
			TrackingCode: strings.TrimSpace(payload.TrackingCode),
			Source:       adminSource,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		kinds := make([]enums.ActionKind, 0, len(change.Actions))
		for _, a := range change.Actions {
			kinds = append(kinds, a.Kind)
		}
		responses.WriteSuccess(w, adminStatusResponse{
			OrderID: change.OrderID,
			From:    change.From,
			To:      change.To,
			Changed: change.Changed,
			Actions: kinds,
		})
	}
}

type adminStatusRequest struct {
	Status       string `json:"status" validate:"required"`
	TrackingCode string `json:"tracking_code,omitempty"`
}

type adminStatusResponse struct {
	OrderID uuid.UUID          `json:"order_id"`
	From    enums.OrderStatus  `json:"from"`
	To      enums.OrderStatus  `json:"to"`
	Changed bool               `json:"changed"`
	Actions []enums.ActionKind `json:"actions"`
}

type ERPOperator interface {
	PushOrder(ctx context.Context, orderID uuid.UUID) (*models.ERPOrderLink, error)
	EmitFiscalDocument(ctx context.Context, orderID uuid.UUID) (*models.FiscalDocument, error)
	PushProduct(ctx context.Context, variantID uuid.UUID) (*models.ERPProductLink, error)
	ListSituations(ctx context.Context) ([]models.ERPSituation, error)
	SetSituation(ctx context.Context, situationID int64, st *enums.OrderStatus, description string) (*models.ERPSituation, error)
}

func AdminOrderERPSync(erp ERPOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := uuidParam(r, "orderID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		link, err := erp.PushOrder(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newERPLinkResponse(link.ERPLink))
	}
}

func AdminOrderFiscal(erp ERPOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := uuidParam(r, "orderID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		doc, err := erp.EmitFiscalDocument(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, fiscalDocumentResponse{
			ID:            doc.ID,
			OrderID:       doc.OrderID,
			Status:        doc.Status,
			ERPDocumentID: doc.ERPDocumentID,
			Number:        doc.Number,
			Series:        doc.Series,
			AccessKey:     doc.AccessKey,
			ErrorMessage:  doc.ErrorMessage,
			EmittedAt:     doc.EmittedAt,
		})
	}
}

func AdminProductERPSync(erp ERPOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		variantID, err := uuidParam(r, "variantID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		link, err := erp.PushProduct(ctx, variantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newERPLinkResponse(link.ERPLink))
	}
}

func AdminListSituations(erp ERPOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := erp.ListSituations(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]situationResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, newSituationResponse(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminPutSituation maps an ERP situation id to an order status. A null
// status marks the situation as informational.
func AdminPutSituation(erp ERPOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		situationID, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "situationID")), 10, 64)
		if err != nil || situationID <= 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.Validation("situation_id", "must be a positive integer"))
			return
		}
		var payload situationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var status *enums.OrderStatus
		if payload.OrderStatus != nil && strings.TrimSpace(*payload.OrderStatus) != "" {
			st, err := enums.ParseOrderStatus(*payload.OrderStatus)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Validation("order_status", "unknown status"))
				return
			}
			status = &st
		}
		row, err := erp.SetSituation(ctx, situationID, status, validators.SanitizeString(payload.Description, 255))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSituationResponse(*row))
	}
}

type situationRequest struct {
	OrderStatus *string `json:"order_status"`
	Description string  `json:"description,omitempty" validate:"max=255"`
}

type situationResponse struct {
	SituationID int64              `json:"situation_id"`
	OrderStatus *enums.OrderStatus `json:"order_status"`
	Description string             `json:"description,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func newSituationResponse(row models.ERPSituation) situationResponse {
	return situationResponse{
		SituationID: row.SituationID,
		OrderStatus: row.OrderStatus,
		Description: row.Description,
		UpdatedAt:   row.UpdatedAt,
	}
}

type erpLinkResponse struct {
	LocalKey     string              `json:"local_key"`
	ERPID        *int64              `json:"erp_id,omitempty"`
	ERPCode      string              `json:"erp_code,omitempty"`
	SyncStatus   enums.ERPSyncStatus `json:"sync_status"`
	LastSyncedAt *time.Time          `json:"last_synced_at,omitempty"`
	LastError    *string             `json:"last_error,omitempty"`
}

func newERPLinkResponse(l models.ERPLink) erpLinkResponse {
	return erpLinkResponse{
		LocalKey:     l.LocalKey,
		ERPID:        l.ERPID,
		ERPCode:      l.ERPCode,
		SyncStatus:   l.SyncStatus,
		LastSyncedAt: l.LastSyncedAt,
		LastError:    l.LastError,
	}
}

type fiscalDocumentResponse struct {
	ID            uuid.UUID                  `json:"id"`
	OrderID       uuid.UUID                  `json:"order_id"`
	Status        enums.FiscalDocumentStatus `json:"status"`
	ERPDocumentID *int64                     `json:"erp_document_id,omitempty"`
	Number        *string                    `json:"number,omitempty"`
	Series        *string                    `json:"series,omitempty"`
	AccessKey     *string                    `json:"access_key,omitempty"`
	ErrorMessage  *string                    `json:"error_message,omitempty"`
	EmittedAt     *time.Time                 `json:"emitted_at,omitempty"`
}
