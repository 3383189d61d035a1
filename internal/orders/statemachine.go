package orders

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// StockRelease returns Qty units of a variant to the ledger.
type StockRelease struct {
	VariantID uuid.UUID
	Qty       int
}

// ItemUpdate carries the new absolute return counters for one item.
type ItemUpdate struct {
	ItemID                  uuid.UUID
	QuantityReturned        int
	QuantityReturnRequested int
}

type HistoryEntry struct {
	Type   enums.HistoryType
	Label  string
	Reason string
}

// Transition is the full effect of one command on one order. A Noop
// transition has no effects at all.
type Transition struct {
	Action     Action
	Noop       bool
	NoopReason string

	From              enums.OrderStatus
	Status            enums.OrderStatus
	PaymentStatus     enums.PaymentStatus
	FulfillmentStatus enums.FulfillmentStatus
	IsCancelled       bool

	ReturnReason         *string
	PaymentFailureReason *string

	Releases    []StockRelease
	ItemUpdates []ItemUpdate
	History     HistoryEntry
	Event       enums.OutboxEventType
}

// Plan decides what cmd does to order based only on its stored state. It
// performs no I/O; the caller applies the result atomically.
func Plan(order models.Order, cmd Command) (Transition, error) {
	if cmd == nil {
		return Transition{}, invalidInput("command required", nil)
	}
	t := Transition{
		Action:            cmd.Action(),
		From:              order.Status,
		Status:            order.Status,
		PaymentStatus:     order.PaymentStatus,
		FulfillmentStatus: order.FulfillmentStatus,
		IsCancelled:       order.IsCancelled,
		History:           HistoryEntry{Type: enums.HistoryStatusChange},
		Event:             enums.EventOrderStatusChanged,
	}

	switch c := cmd.(type) {
	case PaymentSucceeded:
		return planPaid(order, t, false, "")
	case MarkPaid:
		return planPaid(order, t, true, c.Note)
	case PaymentFailed:
		return planPaymentFailed(order, t, c)
	case Expire:
		return planExpire(order, t, c)
	case Cancel:
		return planCancel(order, t, c)
	case RequestReturn:
		return planRequestReturn(order, t, c)
	case ResolveReturn:
		return planResolveReturn(order, t, c)
	case AdvanceFulfillment:
		return planAdvance(order, t, c)
	default:
		return Transition{}, invalidInput("unsupported command", map[string]any{"action": cmd.Action()})
	}
}

func noop(t Transition, reason string) (Transition, error) {
	return Transition{
		Action:            t.Action,
		Noop:              true,
		NoopReason:        reason,
		From:              t.From,
		Status:            t.From,
		PaymentStatus:     t.PaymentStatus,
		FulfillmentStatus: t.FulfillmentStatus,
		IsCancelled:       t.IsCancelled,
	}, nil
}

func planPaid(order models.Order, t Transition, override bool, note string) (Transition, error) {
	switch order.Status {
	case enums.OrderStatusPendingPayment:
		t.Status = enums.OrderStatusPaid
		t.PaymentStatus = enums.PaymentStatusPaid
		t.History.Label = LabelPaymentConfirmed
		t.History.Reason = strings.TrimSpace(note)
		return t, nil
	case enums.OrderStatusPaid, enums.OrderStatusReturnRequested, enums.OrderStatusReturned:
		return noop(t, "order already paid")
	case enums.OrderStatusExpired, enums.OrderStatusCancelled:
		if override {
			return Transition{}, illegalTransition(order, t.Action)
		}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			return noop(t, "late payment already recorded")
		}
		// Money arrived for a closed order: no state change, but the capture
		// is recorded so an operator can refund it.
		t.PaymentStatus = enums.PaymentStatusPaid
		t.History = HistoryEntry{
			Type:   enums.HistoryIncident,
			Label:  LabelPaidOnClosedOrder,
			Reason: "payment captured after order was " + strings.ToLower(string(order.Status)),
		}
		t.Event = enums.EventOrderIncident
		return t, nil
	default:
		return Transition{}, illegalTransition(order, t.Action)
	}
}

func planPaymentFailed(order models.Order, t Transition, c PaymentFailed) (Transition, error) {
	if order.Status != enums.OrderStatusPendingPayment {
		return noop(t, "order no longer awaiting payment")
	}
	if order.PaymentStatus == enums.PaymentStatusFailed {
		return noop(t, "payment already marked failed")
	}
	t.PaymentStatus = enums.PaymentStatusFailed
	t.History.Label = LabelPaymentFailed
	if reason := strings.TrimSpace(c.Reason); reason != "" {
		t.PaymentFailureReason = &reason
		t.History.Reason = reason
	}
	return t, nil
}

func planExpire(order models.Order, t Transition, c Expire) (Transition, error) {
	if c.Timeout <= 0 {
		return Transition{}, invalidInput("expiry timeout must be positive", nil)
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return noop(t, "order no longer awaiting payment")
	}
	if !order.CreatedAt.Before(c.Now.Add(-c.Timeout)) {
		return noop(t, "order not stale yet")
	}
	t.Status = enums.OrderStatusExpired
	t.Releases = releaseRemaining(order.Items)
	t.History.Label = LabelOrderExpired
	return t, nil
}

func planCancel(order models.Order, t Transition, c Cancel) (Transition, error) {
	switch order.Status {
	case enums.OrderStatusCancelled:
		return noop(t, "order already cancelled")
	case enums.OrderStatusPendingPayment:
	case enums.OrderStatusPaid:
		if order.FulfillmentStatus != enums.FulfillmentUnfulfilled && order.FulfillmentStatus != enums.FulfillmentPreparing {
			return Transition{}, illegalTransition(order, t.Action)
		}
	default:
		return Transition{}, illegalTransition(order, t.Action)
	}
	t.Status = enums.OrderStatusCancelled
	t.IsCancelled = true
	t.Releases = releaseRemaining(order.Items)
	t.History.Label = LabelOrderCancelled
	t.History.Reason = strings.TrimSpace(c.Reason)
	return t, nil
}

func planRequestReturn(order models.Order, t Transition, c RequestReturn) (Transition, error) {
	if order.Status != enums.OrderStatusPaid ||
		order.PaymentStatus != enums.PaymentStatusPaid ||
		order.FulfillmentStatus != enums.FulfillmentDelivered ||
		order.IsCancelled {
		return Transition{}, illegalTransition(order, t.Action)
	}
	reason := strings.TrimSpace(c.Reason)
	if reason == "" {
		return Transition{}, invalidInput("return reason required", nil)
	}
	if len(c.Items) == 0 {
		return Transition{}, invalidInput("at least one item must be returned", nil)
	}

	items := indexItems(order.Items)
	seen := make(map[uuid.UUID]struct{}, len(c.Items))
	for _, line := range c.Items {
		item, ok := items[line.ItemID]
		if !ok {
			return Transition{}, invalidInput("item is not part of this order", map[string]any{"itemId": line.ItemID})
		}
		if _, dup := seen[line.ItemID]; dup {
			return Transition{}, invalidInput("item listed more than once", map[string]any{"itemId": line.ItemID})
		}
		seen[line.ItemID] = struct{}{}
		if line.Quantity <= 0 {
			return Transition{}, invalidInput("return quantity must be positive", map[string]any{"itemId": line.ItemID})
		}
		if line.Quantity > item.Remaining() {
			return Transition{}, invalidInput("return quantity exceeds units held", map[string]any{
				"itemId":    line.ItemID,
				"requested": line.Quantity,
				"remaining": item.Remaining(),
			})
		}
		t.ItemUpdates = append(t.ItemUpdates, ItemUpdate{
			ItemID:                  item.ID,
			QuantityReturned:        item.QuantityReturned,
			QuantityReturnRequested: line.Quantity,
		})
	}

	t.Status = enums.OrderStatusReturnRequested
	t.ReturnReason = &reason
	t.History.Label = LabelReturnRequested
	t.History.Reason = reason
	return t, nil
}

func planResolveReturn(order models.Order, t Transition, c ResolveReturn) (Transition, error) {
	if order.Status != enums.OrderStatusReturnRequested {
		return Transition{}, illegalTransition(order, t.Action)
	}

	items := indexItems(order.Items)
	accepted := make(map[uuid.UUID]int, len(c.Items))
	for _, decision := range c.Items {
		item, ok := items[decision.ItemID]
		if !ok {
			return Transition{}, invalidInput("item is not part of this order", map[string]any{"itemId": decision.ItemID})
		}
		if _, dup := accepted[decision.ItemID]; dup {
			return Transition{}, invalidInput("item listed more than once", map[string]any{"itemId": decision.ItemID})
		}
		if decision.Accepted < 0 || decision.Accepted > item.QuantityReturnRequested {
			return Transition{}, invalidInput("accepted quantity must be between zero and the requested quantity", map[string]any{
				"itemId":    decision.ItemID,
				"accepted":  decision.Accepted,
				"requested": item.QuantityReturnRequested,
			})
		}
		accepted[decision.ItemID] = decision.Accepted
	}

	shortfall := false
	remaining := 0
	for _, item := range order.Items {
		returned := item.QuantityReturned
		if item.QuantityReturnRequested > 0 {
			qty := accepted[item.ID]
			if qty < item.QuantityReturnRequested {
				shortfall = true
			}
			returned += qty
			if qty > 0 && item.VariantID != nil {
				t.Releases = append(t.Releases, StockRelease{VariantID: *item.VariantID, Qty: qty})
			}
			t.ItemUpdates = append(t.ItemUpdates, ItemUpdate{
				ItemID:                  item.ID,
				QuantityReturned:        returned,
				QuantityReturnRequested: 0,
			})
		}
		remaining += item.Quantity - returned
	}

	rejection := strings.TrimSpace(c.RejectionReason)
	if shortfall && rejection == "" {
		return Transition{}, invalidInput("rejection reason required when accepting fewer units than requested", nil)
	}

	if remaining == 0 {
		t.Status = enums.OrderStatusReturned
		t.FulfillmentStatus = enums.FulfillmentReturned
	} else {
		t.Status = enums.OrderStatusPaid
	}
	if shortfall {
		t.History.Label = LabelReturnPartial
		t.History.Reason = rejection
	} else {
		t.History.Label = LabelReturnProcessed
	}
	return t, nil
}

func planAdvance(order models.Order, t Transition, c AdvanceFulfillment) (Transition, error) {
	switch c.To {
	case enums.FulfillmentPreparing, enums.FulfillmentShipped, enums.FulfillmentReadyForPickup, enums.FulfillmentDelivered:
	default:
		return Transition{}, invalidInput("unsupported fulfillment target", map[string]any{"status": c.To})
	}
	if order.IsCancelled || order.Status != enums.OrderStatusPaid || order.PaymentStatus != enums.PaymentStatusPaid {
		return Transition{}, illegalTransition(order, t.Action)
	}
	if order.FulfillmentStatus == c.To {
		return noop(t, "fulfillment already at target")
	}
	if !fulfillmentAllowed(order, c.To) {
		return Transition{}, illegalTransition(order, t.Action)
	}
	t.FulfillmentStatus = c.To
	t.History.Label = fulfillmentLabels[c.To]
	return t, nil
}

var fulfillmentLabels = map[enums.FulfillmentStatus]string{
	enums.FulfillmentPreparing:      LabelPreparing,
	enums.FulfillmentShipped:        LabelShipped,
	enums.FulfillmentReadyForPickup: LabelReadyForPickup,
	enums.FulfillmentDelivered:      LabelDelivered,
}

func fulfillmentAllowed(order models.Order, to enums.FulfillmentStatus) bool {
	switch order.FulfillmentStatus {
	case enums.FulfillmentUnfulfilled:
		return to == enums.FulfillmentPreparing
	case enums.FulfillmentPreparing:
		if order.ShippingMethod == enums.ShippingPickup {
			return to == enums.FulfillmentReadyForPickup
		}
		return to == enums.FulfillmentShipped
	case enums.FulfillmentShipped, enums.FulfillmentReadyForPickup:
		return to == enums.FulfillmentDelivered
	default:
		return false
	}
}

// releaseRemaining returns every unit still held by the order. Items whose
// variant was deleted have nothing to return to.
func releaseRemaining(items []models.OrderItem) []StockRelease {
	var out []StockRelease
	for _, item := range items {
		if item.VariantID == nil || item.Remaining() <= 0 {
			continue
		}
		out = append(out, StockRelease{VariantID: *item.VariantID, Qty: item.Remaining()})
	}
	return out
}

func indexItems(items []models.OrderItem) map[uuid.UUID]models.OrderItem {
	out := make(map[uuid.UUID]models.OrderItem, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out
}
