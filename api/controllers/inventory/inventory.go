package inventory

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/sareehub-backend/api/middleware"
	"github.com/angelmondragon/sareehub-backend/api/responses"
	"github.com/angelmondragon/sareehub-backend/api/validators"
	internalinventory "github.com/angelmondragon/sareehub-backend/internal/inventory"
	internalorders "github.com/angelmondragon/sareehub-backend/internal/orders"
	"github.com/angelmondragon/sareehub-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/sareehub-backend/pkg/errors"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
)

// orderAccess authorizes ledger calls against the order they reference.
type orderAccess interface {
	Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*internalorders.OrderView, error)
}

// Available returns the public availability view of a variant.
func Available(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.ParseUUIDParam(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Availability(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func Reserve(svc internalinventory.Service, orders orderAccess, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input internalinventory.ReserveInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeOrder(r, orders, input.OrderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movement, err := svc.Reserve(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, movement)
	}
}

func Commit(svc internalinventory.Service, orders orderAccess, logg *logger.Logger) http.HandlerFunc {
	return movementHandler(svc.Commit, orders, logg)
}

func Release(svc internalinventory.Service, orders orderAccess, logg *logger.Logger) http.HandlerFunc {
	return movementHandler(svc.Release, orders, logg)
}

func movementHandler(op func(context.Context, internalinventory.MovementInput) (*internalinventory.Movement, error), orders orderAccess, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input internalinventory.MovementInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeOrder(r, orders, input.OrderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movement, err := op(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, movement)
	}
}

// Adjust applies an admin stock correction.
func Adjust(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		var input internalinventory.AdjustInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movement, err := svc.Adjust(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, movement)
	}
}

// History pages through the ledger of one variant, newest first.
func History(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.ParseUUIDParam(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.History(r.Context(), variantID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func authorizeOrder(r *http.Request, orders orderAccess, orderID uuid.UUID) error {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if orders == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable")
	}
	_, err := orders.Get(r.Context(), actor, orderID)
	return err
}
