package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const maxReasonLen = 500

// List returns the caller's own orders, newest first. Admins get their own
// purchases here too.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := listPage(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderPageView(page))
	}
}

func listPage(r *http.Request, svc internalorders.Service) (pagination.Page[models.Order], error) {
	if svc == nil {
		return pagination.Page[models.Order]{}, errServiceUnavailable
	}
	userID, err := callerID(r)
	if err != nil {
		return pagination.Page[models.Order]{}, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Page[models.Order]{}, err
	}
	cursor, err := validators.ParseQueryString(r, "cursor", 256)
	if err != nil {
		return pagination.Page[models.Order]{}, err
	}
	return svc.ListForUser(r.Context(), internalorders.UserActor(userID), pagination.Params{Limit: limit, Cursor: cursor})
}

// Detail returns one order. Customers only see their own.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderEndpoint(svc, logg, noBody, func(ctx context.Context, call orderCall[struct{}]) (*models.Order, error) {
		return svc.Get(ctx, call.orderID, call.actor)
	})
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// Cancel cancels an unshipped order for its owner or an admin.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderEndpoint(svc, logg, optionalBody, func(ctx context.Context, call orderCall[cancelRequest]) (*models.Order, error) {
		return svc.Cancel(ctx, call.orderID, call.actor, validators.SanitizeString(call.body.Reason, maxReasonLen))
	})
}

type returnItemRequest struct {
	ItemID   string `json:"itemId" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type returnRequest struct {
	Items  []returnItemRequest `json:"items" validate:"required,min=1,dive"`
	Reason string              `json:"reason,omitempty" validate:"max=500"`
}

// RequestReturn opens a return for delivered items.
func RequestReturn(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderEndpoint(svc, logg, requiredBody, func(ctx context.Context, call orderCall[returnRequest]) (*models.Order, error) {
		lines, err := itemLines(call.body.Items,
			func(item returnItemRequest, id uuid.UUID) internalorders.ReturnLine {
				return internalorders.ReturnLine{ItemID: id, Quantity: item.Quantity}
			},
			func(item returnItemRequest) string { return item.ItemID },
		)
		if err != nil {
			return nil, err
		}
		return svc.RequestReturn(ctx, call.orderID, call.actor, lines, validators.SanitizeString(call.body.Reason, maxReasonLen))
	})
}
