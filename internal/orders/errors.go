package orders

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// TransitionDetails is attached to illegal transition errors so clients can
// render the current state.
type TransitionDetails struct {
	OrderID           uuid.UUID `json:"orderId"`
	Status            string    `json:"status"`
	PaymentStatus     string    `json:"paymentStatus"`
	FulfillmentStatus string    `json:"fulfillmentStatus"`
	Action            Action    `json:"action"`
}

func NewOrderNotFound(id uuid.UUID) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
		WithDetails(map[string]any{"orderId": id})
}

func illegalTransition(order models.Order, action Action) *pkgerrors.Error {
	msg := fmt.Sprintf("%s not allowed while order is %s/%s/%s", action, order.Status, order.PaymentStatus, order.FulfillmentStatus)
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).
		WithDetails(TransitionDetails{
			OrderID:           order.ID,
			Status:            string(order.Status),
			PaymentStatus:     string(order.PaymentStatus),
			FulfillmentStatus: string(order.FulfillmentStatus),
			Action:            action,
		})
}

func invalidInput(msg string, details any) *pkgerrors.Error {
	err := pkgerrors.New(pkgerrors.CodeValidation, msg)
	if details != nil {
		err = err.WithDetails(details)
	}
	return err
}
