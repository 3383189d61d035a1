package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes every order operation. Mutations all funnel through one
// locked, compare-and-set transaction driven by Plan.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	ListForUser(ctx context.Context, actor Actor, params pagination.Params) (pagination.Page[models.Order], error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, actor Actor, metadata map[string]string) (*models.Order, error)
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	Expire(ctx context.Context, orderID uuid.UUID, now time.Time) (Result, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	RequestReturn(ctx context.Context, orderID uuid.UUID, actor Actor, lines []ReturnLine, reason string) (*models.Order, error)
	ProcessReturn(ctx context.Context, orderID uuid.UUID, actor Actor, decisions []ReturnDecision, rejectionReason string) (*models.Order, error)
	AdvanceFulfillment(ctx context.Context, orderID uuid.UUID, actor Actor, to enums.FulfillmentStatus) (*models.Order, error)
}

// Result reports what a mutation did. Order is the state after commit.
type Result struct {
	Order   *models.Order
	Applied bool
	Action  Action
}

// ExpirySystemActor is recorded on orders closed by the sweeper.
const ExpirySystemActor = "expiry-sweeper"

type service struct {
	repo    Repository
	tx      db.TxRunner
	stock   StockReleaser
	outbox  outboxPublisher
	retry   db.RetryPolicy
	timeout time.Duration
	metrics *metrics.OrderMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// Option customises optional service collaborators.
type Option func(*service)

func WithRetryPolicy(policy db.RetryPolicy) Option {
	return func(s *service) { s.retry = policy }
}

// WithPaymentTimeout sets how long an unpaid order holds its stock.
func WithPaymentTimeout(timeout time.Duration) Option {
	return func(s *service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *service) { s.metrics = m }
}

func WithLogger(logg *logger.Logger) Option {
	return func(s *service) {
		if logg != nil {
			s.logg = logg
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// DefaultPaymentTimeout is how long a PENDING_PAYMENT order may hold stock.
const DefaultPaymentTimeout = 30 * time.Minute

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx db.TxRunner, stock StockReleaser, outbox outboxPublisher, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock releaser required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	s := &service{
		repo:    repo,
		tx:      tx,
		stock:   stock,
		outbox:  outbox,
		retry:   db.DefaultRetryPolicy(),
		timeout: DefaultPaymentTimeout,
		logg:    logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if orderID == uuid.Nil {
		return nil, invalidInput("order id required", nil)
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err, orderID)
	}
	if err := authorizeOwner(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, actor Actor, params pagination.Params) (pagination.Page[models.Order], error) {
	userID, ok := actor.UserID()
	if !ok {
		return pagination.Page[models.Order]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	page, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return page, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return page, nil
}

func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID, actor Actor, metadata map[string]string) (*models.Order, error) {
	var cmd Command = PaymentSucceeded{Metadata: metadata}
	if actor.Kind == enums.ActorAdmin {
		cmd = MarkPaid{Note: metadata["note"]}
	}
	res, err := s.apply(ctx, orderID, actor, cmd)
	return res.Order, err
}

func (s *service) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	res, err := s.apply(ctx, orderID, actor, PaymentFailed{Reason: reason})
	return res.Order, err
}

func (s *service) Expire(ctx context.Context, orderID uuid.UUID, now time.Time) (Result, error) {
	if now.IsZero() {
		now = s.now()
	}
	return s.apply(ctx, orderID, SystemActor(ExpirySystemActor), Expire{Now: now, Timeout: s.timeout})
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	res, err := s.apply(ctx, orderID, actor, Cancel{Reason: reason})
	return res.Order, err
}

func (s *service) RequestReturn(ctx context.Context, orderID uuid.UUID, actor Actor, lines []ReturnLine, reason string) (*models.Order, error) {
	res, err := s.apply(ctx, orderID, actor, RequestReturn{Items: lines, Reason: reason})
	return res.Order, err
}

func (s *service) ProcessReturn(ctx context.Context, orderID uuid.UUID, actor Actor, decisions []ReturnDecision, rejectionReason string) (*models.Order, error) {
	res, err := s.apply(ctx, orderID, actor, ResolveReturn{Items: decisions, RejectionReason: rejectionReason})
	return res.Order, err
}

func (s *service) AdvanceFulfillment(ctx context.Context, orderID uuid.UUID, actor Actor, to enums.FulfillmentStatus) (*models.Order, error) {
	res, err := s.apply(ctx, orderID, actor, AdvanceFulfillment{To: to})
	return res.Order, err
}

// apply is the only path that mutates an existing order: lock, plan, release
// stock, update items, compare-and-set the order, append history and queue
// the event, all in one retried transaction.
func (s *service) apply(ctx context.Context, orderID uuid.UUID, actor Actor, cmd Command) (Result, error) {
	result := Result{Action: cmd.Action()}
	if orderID == uuid.Nil {
		return result, invalidInput("order id required", nil)
	}
	if err := actor.Validate(); err != nil {
		return result, err
	}
	if err := authorizeAction(actor, cmd.Action()); err != nil {
		return result, err
	}

	ctx = s.logg.WithOrderID(ctx, orderID.String())
	ctx = s.logg.WithActor(ctx, string(actor.Kind), actor.ID)
	ctx = s.logg.WithField(ctx, "action", string(cmd.Action()))

	var plan Transition
	err := db.RetryTx(ctx, s.tx, s.retry, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindForUpdate(ctx, orderID)
		if err != nil {
			return mapLoadError(err, orderID)
		}
		if err := authorizeOwner(order, actor); err != nil {
			return err
		}

		plan, err = Plan(*order, cmd)
		if err != nil {
			return err
		}
		if plan.Noop {
			return nil
		}

		if len(plan.Releases) > 0 {
			if err := s.stock.ReleaseAll(ctx, tx, ledgerLines(plan.Releases)); err != nil {
				return err
			}
		}
		for _, update := range plan.ItemUpdates {
			if err := repo.UpdateItemQuantities(ctx, order.ID, update); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order item")
			}
		}

		now := s.now().UTC()
		swapped, err := repo.CompareAndSwap(ctx, *order, orderUpdates(*order, plan, now))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		if !swapped {
			return pkgerrors.New(pkgerrors.CodeTransient, "order changed concurrently")
		}

		entry := &models.OrderHistory{
			OrderID:        order.ID,
			Type:           plan.History.Type,
			SnapshotStatus: plan.History.Label,
			Actor:          actor.String(),
			Reason:         optionalString(plan.History.Reason),
			CreatedAt:      now,
		}
		if err := repo.AppendHistory(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}

		return s.outbox.Emit(ctx, tx, transitionEvent(*order, plan, actor, now))
	})
	if err != nil {
		if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) && !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			s.logg.Error(ctx, "order transition failed", err)
		}
		return result, err
	}

	if plan.Noop {
		s.logg.Info(s.logg.WithField(ctx, "noop_reason", plan.NoopReason), "order transition skipped")
	} else {
		s.metrics.IncTransition(string(plan.Action), string(plan.From), string(plan.Status))
		s.logg.Info(s.logg.WithField(ctx, "to_status", string(plan.Status)), "order transition applied")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return result, mapLoadError(err, orderID)
	}
	result.Order = order
	result.Applied = !plan.Noop
	return result, nil
}

func orderUpdates(order models.Order, t Transition, now time.Time) map[string]any {
	updates := map[string]any{
		"status":             t.Status,
		"payment_status":     t.PaymentStatus,
		"fulfillment_status": t.FulfillmentStatus,
		"is_cancelled":       t.IsCancelled,
		"updated_at":         now,
	}
	if t.ReturnReason != nil {
		updates["return_reason"] = *t.ReturnReason
	}
	if t.PaymentFailureReason != nil {
		updates["payment_failure_reason"] = *t.PaymentFailureReason
	}
	if t.PaymentStatus == enums.PaymentStatusPaid && order.PaymentStatus != enums.PaymentStatusPaid {
		updates["paid_at"] = now
	}
	if t.Status != order.Status {
		switch t.Status {
		case enums.OrderStatusCancelled:
			updates["cancelled_at"] = now
		case enums.OrderStatusExpired:
			updates["expired_at"] = now
		}
	}
	return updates
}

func transitionEvent(order models.Order, t Transition, actor Actor, now time.Time) outbox.DomainEvent {
	event := outbox.DomainEvent{
		EventType:     t.Event,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.ref(),
		OccurredAt:    now,
	}
	if t.Event == enums.EventOrderIncident {
		event.Data = payloads.OrderIncidentEvent{
			OrderID:    order.ID,
			Status:     order.Status,
			Action:     string(t.Action),
			Reason:     t.History.Reason,
			OccurredAt: now,
		}
		return event
	}
	event.Data = payloads.OrderStatusChangedEvent{
		OrderID:           order.ID,
		FromStatus:        t.From,
		ToStatus:          t.Status,
		PaymentStatus:     t.PaymentStatus,
		FulfillmentStatus: t.FulfillmentStatus,
		Action:            string(t.Action),
		Actor:             actor.String(),
		OccurredAt:        now,
	}
	return event
}

// authorizeAction limits which actor kinds may issue each command. Users
// can only act on their own orders, checked under the row lock.
func authorizeAction(actor Actor, action Action) error {
	allowed := false
	switch action {
	case ActionPaymentSucceeded, ActionPaymentFailed, ActionExpire:
		allowed = actor.Kind == enums.ActorSystem
	case ActionMarkPaid, ActionResolveReturn, ActionAdvanceFulfillment:
		allowed = actor.Kind == enums.ActorAdmin || actor.Kind == enums.ActorSystem
	case ActionCancel:
		allowed = true
	case ActionRequestReturn:
		allowed = actor.Kind == enums.ActorUser || actor.Kind == enums.ActorAdmin
	}
	if !allowed {
		return pkgerrors.Newf(pkgerrors.CodeForbidden, "%s cannot %s", actor.Kind, action)
	}
	return nil
}

func authorizeOwner(order *models.Order, actor Actor) error {
	if actor.Kind != enums.ActorUser {
		return nil
	}
	userID, _ := actor.UserID()
	if order.UserID == nil || *order.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return nil
}

func mapLoadError(err error, orderID uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewOrderNotFound(orderID)
	}
	if pkgerrors.As(err) != nil || db.IsTransient(err) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func ledgerLines(releases []StockRelease) []inventory.Line {
	lines := make([]inventory.Line, len(releases))
	for i, release := range releases {
		lines[i] = inventory.Line{VariantID: release.VariantID, Qty: release.Qty}
	}
	return lines
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
