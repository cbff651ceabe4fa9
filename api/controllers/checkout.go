package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/atelie-backend/api/middleware"
	"github.com/angelmondragon/atelie-backend/api/responses"
	"github.com/angelmondragon/atelie-backend/api/validators"
	"github.com/angelmondragon/atelie-backend/internal/catalog"
	checkoutsvc "github.com/angelmondragon/atelie-backend/internal/checkout"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
	"github.com/angelmondragon/atelie-backend/pkg/types"
)

type CheckoutService interface {
	Execute(ctx context.Context, in checkoutsvc.Input) (*checkoutsvc.Result, error)
}

// Checkout turns the caller's cart into an order and a gateway charge.
func Checkout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Validation("payment_method", "unsupported"))
			return
		}

		input := checkoutsvc.Input{
			Owner:     owner,
			Selection: payload.Shipping,
			ShipTo:    payload.ShipTo,
			Fiscal:    payload.Fiscal,
			Customer: checkoutsvc.Customer{
				Name:  payload.Customer.Name,
				Email: payload.Customer.Email,
				Phone: payload.Customer.Phone,
			},
			Method:    method,
			ClientIP:  middleware.ClientIP(r),
			UserAgent: r.UserAgent(),
		}
		if payload.Card != nil {
			input.Card = &checkoutsvc.CardInput{
				Token:        payload.Card.Token,
				CVV:          payload.Card.CVV,
				HolderName:   payload.Card.HolderName,
				CardRef:      payload.Card.CardRef,
				Installments: payload.Card.Installments,
			}
		}

		result, err := svc.Execute(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type checkoutRequest struct {
	Shipping      types.ShippingSelection `json:"shipping"`
	ShipTo        types.ShippingSnapshot  `json:"ship_to"`
	Fiscal        types.FiscalSnapshot    `json:"fiscal"`
	Customer      customerRequest         `json:"customer"`
	PaymentMethod string                  `json:"payment_method" validate:"required"`
	Card          *cardRequest            `json:"card,omitempty"`
}

type customerRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty"`
}

type cardRequest struct {
	Token        string `json:"token,omitempty"`
	CVV          string `json:"cvv,omitempty"`
	HolderName   string `json:"holder_name,omitempty"`
	CardRef      string `json:"card_ref,omitempty"`
	Installments int    `json:"installments,omitempty" validate:"omitempty,min=1,max=12"`
}

func cartOwner(r *http.Request) (catalog.Owner, error) {
	ctx := r.Context()
	owner := catalog.Owner{SessionID: strings.TrimSpace(middleware.SessionIDFromContext(ctx))}
	if raw := middleware.UserIDFromContext(ctx); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return catalog.Owner{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid user id")
		}
		owner.UserID = &id
	}
	if !owner.Valid() {
		return catalog.Owner{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user session or session id required")
	}
	return owner, nil
}
