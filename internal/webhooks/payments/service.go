package paymentwebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
)

// ConsumerName scopes processed-event markers and names the webhook actor.
const ConsumerName = "payment-webhook"

// WebhookActor is recorded on transitions driven by the payment provider.
var WebhookActor = orders.SystemActor(ConsumerName)

// Outcome describes how a delivery was handled. Every outcome is
// acknowledged to the provider with 200.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeOrderNotFound Outcome = "order_not_found"
)

// Event is the provider payload.
type Event struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	OrderID  string            `json:"orderId"`
	Metadata map[string]string `json:"metadata"`
}

type orderPayments interface {
	MarkPaid(ctx context.Context, orderID uuid.UUID, actor orders.Actor, metadata map[string]string) (*models.Order, error)
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, actor orders.Actor, reason string) (*models.Order, error)
}

type idempotencyGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type ServiceParams struct {
	Orders  orderPayments
	Guard   idempotencyGuard
	Config  config.PaymentsConfig
	Logger  *logger.Logger
	Metrics *metrics.OrderMetrics
	Clock   func() time.Time
}

// Service authenticates and applies payment provider events.
type Service struct {
	orders    orderPayments
	guard     idempotencyGuard
	secret    string
	tolerance time.Duration
	logg      *logger.Logger
	metrics   *metrics.OrderMetrics
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if strings.TrimSpace(params.Config.WebhookSecret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment webhook secret required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		orders:    params.Orders,
		guard:     params.Guard,
		secret:    params.Config.WebhookSecret,
		tolerance: params.Config.SignatureMaxAge,
		logg:      logg,
		metrics:   params.Metrics,
		now:       clock,
	}, nil
}

// Process verifies, de-duplicates and applies one delivery. A returned error
// means nothing was committed and the provider should retry, unless the
// error is a signature or validation failure.
func (s *Service) Process(ctx context.Context, signature string, payload []byte) (Outcome, error) {
	outcome, err := s.process(ctx, signature, payload)
	if err != nil {
		s.metrics.IncWebhook("error")
	} else {
		s.metrics.IncWebhook(string(outcome))
	}
	return outcome, err
}

func (s *Service) process(ctx context.Context, signature string, payload []byte) (Outcome, error) {
	if err := VerifySignature(signature, payload, s.secret, s.tolerance, s.now()); err != nil {
		return "", err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment event")
	}
	event.ID = strings.TrimSpace(event.ID)
	if event.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	if event.Type != EventPaymentSucceeded && event.Type != EventPaymentFailed {
		s.logg.Warn(ctx, "ignoring unknown payment event type")
		return OutcomeIgnored, nil
	}
	orderID, err := uuid.Parse(strings.TrimSpace(event.OrderID))
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "orderId must be a uuid")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	if s.guard != nil {
		seen, guardErr := s.guard.CheckAndMark(ctx, event.ID)
		switch {
		case guardErr != nil:
			s.logg.Warn(ctx, fmt.Sprintf("idempotency guard unavailable: %v", guardErr))
		case seen:
			s.logg.Info(ctx, "duplicate payment event")
			return OutcomeDuplicate, nil
		}
	}

	if err := s.apply(ctx, orderID, event); err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(ctx, "payment event for unknown order")
			return OutcomeOrderNotFound, nil
		}
		s.forget(ctx, event.ID)
		return "", err
	}
	s.logg.Info(ctx, "payment event processed")
	return OutcomeApplied, nil
}

func (s *Service) apply(ctx context.Context, orderID uuid.UUID, event Event) error {
	switch event.Type {
	case EventPaymentSucceeded:
		_, err := s.orders.MarkPaid(ctx, orderID, WebhookActor, event.Metadata)
		return err
	default:
		reason := strings.TrimSpace(event.Metadata["reason"])
		if reason == "" {
			reason = "payment failed"
		}
		_, err := s.orders.MarkPaymentFailed(ctx, orderID, WebhookActor, reason)
		return err
	}
}

func (s *Service) forget(ctx context.Context, eventID string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Forget(ctx, eventID); err != nil {
		s.logg.Error(ctx, "failed to clear idempotency key", err)
	}
}
