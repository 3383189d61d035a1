package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Action names a state machine command in logs, metrics and events.
type Action string

const (
	ActionPaymentSucceeded   Action = "payment_succeeded"
	ActionPaymentFailed      Action = "payment_failed"
	ActionExpire             Action = "expire"
	ActionCancel             Action = "cancel"
	ActionRequestReturn      Action = "request_return"
	ActionResolveReturn      Action = "resolve_return"
	ActionAdvanceFulfillment Action = "advance_fulfillment"
	ActionMarkPaid           Action = "mark_paid"
)

// Command is an input to Plan.
type Command interface {
	Action() Action
}

// PaymentSucceeded is a verified provider notification that the order was paid.
type PaymentSucceeded struct {
	Metadata map[string]string
}

// PaymentFailed is a provider notification that a payment attempt failed.
type PaymentFailed struct {
	Reason string
}

// Expire closes an unpaid order older than Timeout at Now.
type Expire struct {
	Now     time.Time
	Timeout time.Duration
}

type Cancel struct {
	Reason string
}

type ReturnLine struct {
	ItemID   uuid.UUID
	Quantity int
}

type RequestReturn struct {
	Items  []ReturnLine
	Reason string
}

// ReturnDecision is the number of units an admin accepts for one item.
// Items with a pending request and no decision are treated as zero accepted.
type ReturnDecision struct {
	ItemID   uuid.UUID
	Accepted int
}

type ResolveReturn struct {
	Items           []ReturnDecision
	RejectionReason string
}

type AdvanceFulfillment struct {
	To enums.FulfillmentStatus
}

// MarkPaid is the admin override for payments confirmed outside the provider.
type MarkPaid struct {
	Note string
}

func (PaymentSucceeded) Action() Action   { return ActionPaymentSucceeded }
func (PaymentFailed) Action() Action      { return ActionPaymentFailed }
func (Expire) Action() Action             { return ActionExpire }
func (Cancel) Action() Action             { return ActionCancel }
func (RequestReturn) Action() Action      { return ActionRequestReturn }
func (ResolveReturn) Action() Action      { return ActionResolveReturn }
func (AdvanceFulfillment) Action() Action { return ActionAdvanceFulfillment }
func (MarkPaid) Action() Action           { return ActionMarkPaid }
