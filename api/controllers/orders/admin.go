package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type markPaidRequest struct {
	Note string `json:"note,omitempty" validate:"max=500"`
}

// AdminMarkPaid records a payment confirmed outside the provider.
func AdminMarkPaid(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderEndpoint(svc, logg, optionalBody, func(ctx context.Context, call orderCall[markPaidRequest]) (*models.Order, error) {
		metadata := map[string]string{}
		if note := validators.SanitizeString(call.body.Note, maxReasonLen); note != "" {
			metadata["note"] = note
		}
		return svc.MarkPaid(ctx, call.orderID, call.actor, metadata)
	})
}

type returnDecisionRequest struct {
	ItemID           string `json:"itemId" validate:"required,uuid"`
	AcceptedQuantity int    `json:"acceptedQuantity" validate:"min=0"`
}

type resolveReturnRequest struct {
	Items           []returnDecisionRequest `json:"items" validate:"required,min=1,dive"`
	RejectionReason string                  `json:"rejectionReason,omitempty" validate:"max=500"`
}

// AdminResolveReturn accepts all, part or none of a pending return.
func AdminResolveReturn(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderEndpoint(svc, logg, requiredBody, func(ctx context.Context, call orderCall[resolveReturnRequest]) (*models.Order, error) {
		decisions, err := itemLines(call.body.Items,
			func(item returnDecisionRequest, id uuid.UUID) internalorders.ReturnDecision {
				return internalorders.ReturnDecision{ItemID: id, Accepted: item.AcceptedQuantity}
			},
			func(item returnDecisionRequest) string { return item.ItemID },
		)
		if err != nil {
			return nil, err
		}
		reason := validators.SanitizeString(call.body.RejectionReason, maxReasonLen)
		return svc.ProcessReturn(ctx, call.orderID, call.actor, decisions, reason)
	})
}

type fulfillmentRequest struct {
	Status string `json:"status" validate:"required"`
}

// AdminAdvanceFulfillment moves a paid order along the fulfillment track.
func AdminAdvanceFulfillment(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderEndpoint(svc, logg, requiredBody, func(ctx context.Context, call orderCall[fulfillmentRequest]) (*models.Order, error) {
		to, err := enums.ParseFulfillmentStatus(strings.ToUpper(strings.TrimSpace(call.body.Status)))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fulfillment status")
		}
		return svc.AdvanceFulfillment(ctx, call.orderID, call.actor, to)
	})
}
