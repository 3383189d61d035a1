package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	rawOrderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if rawOrderID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(rawOrderID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

// actorFromRequest maps the authenticated caller onto an order actor.
func actorFromRequest(r *http.Request) (internalorders.Actor, error) {
	userID, err := callerID(r)
	if err != nil {
		return internalorders.Actor{}, err
	}
	if middleware.RoleFromContext(r.Context()) == string(enums.RoleAdmin) {
		return internalorders.AdminActor(userID), nil
	}
	return internalorders.UserActor(userID), nil
}

func parseItemID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id")
	}
	return id, nil
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}

type bodyMode int

const (
	noBody bodyMode = iota
	optionalBody
	requiredBody
)

// orderCall is a request against a single order, parsed and authorized.
type orderCall[B any] struct {
	orderID uuid.UUID
	actor   internalorders.Actor
	body    B
}

// orderEndpoint parses the order id, the caller and an optional JSON body,
// runs op and renders the resulting order.
func orderEndpoint[B any](svc internalorders.Service, logg *logger.Logger, mode bodyMode, op func(context.Context, orderCall[B]) (*models.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := runOrderCall(r, svc, mode, op)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

func runOrderCall[B any](r *http.Request, svc internalorders.Service, mode bodyMode, op func(context.Context, orderCall[B]) (*models.Order, error)) (*models.Order, error) {
	if svc == nil {
		return nil, errServiceUnavailable
	}
	orderID, err := parseOrderID(r)
	if err != nil {
		return nil, err
	}
	actor, err := actorFromRequest(r)
	if err != nil {
		return nil, err
	}
	call := orderCall[B]{orderID: orderID, actor: actor}
	if mode == requiredBody || (mode == optionalBody && r.ContentLength != 0) {
		if err := validators.DecodeJSONBody(r, &call.body); err != nil {
			return nil, err
		}
	}
	return op(r.Context(), call)
}

var errServiceUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable")

// itemLines converts request items into service lines, failing on the first
// malformed item id.
func itemLines[In, Out any](items []In, convert func(In, uuid.UUID) Out, rawID func(In) string) ([]Out, error) {
	out := make([]Out, 0, len(items))
	for _, item := range items {
		id, err := parseItemID(rawID(item))
		if err != nil {
			return nil, err
		}
		out = append(out, convert(item, id))
	}
	return out, nil
}
