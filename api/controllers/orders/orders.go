package orders

import (
	"context"
	"net/http"

	"github.com/sportedge/sportedge-backend/api/middleware"
	"github.com/sportedge/sportedge-backend/api/responses"
	"github.com/sportedge/sportedge-backend/api/validators"
	internalorders "github.com/sportedge/sportedge-backend/internal/orders"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/pagination"
)

var errUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable")

// endpoint is one orders handler body. It receives the authenticated caller
// and returns the status and payload to write.
type endpoint func(r *http.Request, who internalorders.Requester) (int, any, error)

func serve(svc internalorders.Service, logg *logger.Logger, fn endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errUnavailable)
			return
		}
		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status, body, err := fn(r, internalorders.Requester{UserID: userID, Role: middleware.RoleFromContext(ctx)})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, body)
	}
}

// Place turns the caller's cart into an order shipped to the posted address.
func Place(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, func(r *http.Request, who internalorders.Requester) (int, any, error) {
		var shipping internalorders.ShippingInfo
		if err := validators.DecodeJSONBody(r, &shipping); err != nil {
			return 0, nil, err
		}
		order, err := svc.PlaceOrder(r.Context(), who.UserID, shipping)
		return http.StatusCreated, order, err
	})
}

// Detail returns one order. Shoppers only see their own.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, func(r *http.Request, who internalorders.Requester) (int, any, error) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			return 0, nil, err
		}
		order, err := svc.GetOrder(r.Context(), orderID, who)
		return http.StatusOK, order, err
	})
}

// ListMine pages through the caller's orders, newest first.
func ListMine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, paged(svc, internalorders.Service.ListMyOrders))
}

// ListAll pages through every order. Admin only.
func ListAll(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, paged(svc, internalorders.Service.ListAllOrders))
}

type lister func(internalorders.Service, context.Context, internalorders.Requester, pagination.Params) (pagination.Page[internalorders.OrderDTO], error)

func paged(svc internalorders.Service, list lister) endpoint {
	return func(r *http.Request, who internalorders.Requester) (int, any, error) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			return 0, nil, err
		}
		page, err := list(svc, r.Context(), who, params)
		return http.StatusOK, page, err
	}
}
