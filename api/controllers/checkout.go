package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/checkout/helpers"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type checkoutExecutor interface {
	Execute(ctx context.Context, input checkout.CheckoutInput) (*models.Order, error)
}

type checkoutItemRequest struct {
	VariantID string `json:"variantId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=10000"`
}

// checkoutRequest carries no prices; totals come from the catalog.
type checkoutRequest struct {
	Items          []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
	Email          string                `json:"email,omitempty" validate:"omitempty,email,max=320"`
	ShippingMethod string                `json:"shippingMethod,omitempty"`
	PaymentMethod  string                `json:"paymentMethod,omitempty" validate:"max=64"`
}

// Checkout turns a cart snapshot into a PENDING order with reserved stock.
// Authenticated callers check out as themselves; guests must supply an email.
func Checkout(svc checkoutExecutor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := req.toInput(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Execute(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.NewOrderView(order))
	}
}

func (req checkoutRequest) toInput(ctx context.Context) (checkout.CheckoutInput, error) {
	lines := make([]helpers.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		variantID, err := uuid.Parse(item.VariantID)
		if err != nil {
			return checkout.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id")
		}
		lines = append(lines, helpers.CartLine{VariantID: variantID, Quantity: item.Quantity})
	}

	buyer := checkout.Buyer{Email: validators.SanitizeString(req.Email, 320)}
	if raw := middleware.UserIDFromContext(ctx); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return checkout.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
		}
		buyer.UserID = &userID
		if buyer.Email == "" {
			buyer.Email = middleware.EmailFromContext(ctx)
		}
	}

	return checkout.CheckoutInput{
		Lines:          lines,
		Buyer:          buyer,
		ShippingMethod: enums.ShippingMethod(validators.SanitizeString(req.ShippingMethod, 32)),
		PaymentMethod:  validators.SanitizeString(req.PaymentMethod, 64),
	}, nil
}
