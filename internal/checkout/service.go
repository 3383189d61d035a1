package checkout

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type variantLoader interface {
	GetVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.VariantView, error)
}

type stockReserver interface {
	ReserveAll(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service turns a cart into a PENDING_PAYMENT order with its stock reserved.
type Service interface {
	Execute(ctx context.Context, input CheckoutInput) (*models.Order, error)
}

// Buyer identifies who is checking out. Guests supply only an email.
type Buyer struct {
	UserID *uuid.UUID
	Email  string
}

// CheckoutInput is the submitted cart plus buyer and delivery choices.
type CheckoutInput struct {
	Lines          []helpers.CartLine
	Buyer          Buyer
	ShippingMethod enums.ShippingMethod
	PaymentMethod  string
}

type service struct {
	tx       db.TxRunner
	catalog  variantLoader
	ledger   stockReserver
	orders   orders.Repository
	outbox   outboxPublisher
	cfg      config.CheckoutConfig
	retry    db.RetryPolicy
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	currency enums.Currency
}

// Option customises optional checkout collaborators.
type Option func(*service)

func WithRetryPolicy(policy db.RetryPolicy) Option {
	return func(s *service) { s.retry = policy }
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

// NewService builds the checkout service.
func NewService(
	tx db.TxRunner,
	catalog variantLoader,
	ledger stockReserver,
	ordersRepo orders.Repository,
	publisher outboxPublisher,
	cfg config.CheckoutConfig,
	opts ...Option,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	currency := enums.CurrencyEUR
	if cfg.DefaultCurrency != "" {
		parsed, err := enums.ParseCurrency(cfg.DefaultCurrency)
		if err != nil {
			return nil, fmt.Errorf("checkout default currency: %w", err)
		}
		currency = parsed
	}
	s := &service{
		tx:       tx,
		catalog:  catalog,
		ledger:   ledger,
		orders:   ordersRepo,
		outbox:   publisher,
		cfg:      cfg,
		retry:    db.DefaultRetryPolicy(),
		logg:     logger.Nop(),
		currency: currency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Execute(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	order, err := s.execute(ctx, input)
	s.metrics.IncCheckout(outcome(err))
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) execute(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	buyer, err := normalizeBuyer(input.Buyer)
	if err != nil {
		return nil, err
	}
	method := input.ShippingMethod
	if method == "" {
		method = enums.ShippingStandard
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping method")
	}

	lines, err := helpers.DedupeLines(input.Lines)
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxLines > 0 && len(lines) > s.cfg.MaxLines {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "cart exceeds %d lines", s.cfg.MaxLines)
	}

	ids := make([]uuid.UUID, len(lines))
	for i, line := range lines {
		ids[i] = line.VariantID
	}
	views, err := s.catalog.GetVariants(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := helpers.ValidateAvailability(lines, views); err != nil {
		return nil, err
	}
	totals, err := helpers.ComputeTotals(lines, views, method, helpers.ShippingRates{
		StandardMinor: s.cfg.StandardShippingMinor,
		PickupMinor:   s.cfg.PickupShippingMinor,
		FreeOverMinor: s.cfg.FreeShippingMinorTotal,
	}, s.currency)
	if err != nil {
		return nil, err
	}

	var created *models.Order
	err = db.RetryTx(ctx, s.tx, s.retry, func(tx *gorm.DB) error {
		if err := s.ledger.ReserveAll(ctx, tx, helpers.LedgerLines(lines)); err != nil {
			return err
		}

		order := buildOrder(buyer, method, lines, views, totals)
		repo := s.orders.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		entry := &models.OrderHistory{
			OrderID:        order.ID,
			Type:           enums.HistoryStatusChange,
			SnapshotStatus: orders.LabelOrderCreated,
			Actor:          buyer.actor(),
			CreatedAt:      order.CreatedAt,
		}
		if err := repo.AppendHistory(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}
		order.History = []models.OrderHistory{*entry}

		if err := s.outbox.Emit(ctx, tx, createdEvent(order, buyer, input.PaymentMethod)); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, created.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"lines":             len(created.Items),
		"grand_total_minor": created.GrandTotalMinor,
		"currency":          created.Currency,
	})
	s.logg.Info(logCtx, "order created")
	return created, nil
}

type normalizedBuyer struct {
	userID *uuid.UUID
	email  string
}

func (b normalizedBuyer) actor() string {
	if b.userID != nil {
		return orders.UserActor(*b.userID).String()
	}
	return "guest:" + b.email
}

func (b normalizedBuyer) ref() *outbox.ActorRef {
	if b.userID != nil {
		return &outbox.ActorRef{Kind: enums.ActorUser, ID: b.userID.String()}
	}
	return nil
}

func normalizeBuyer(buyer Buyer) (normalizedBuyer, error) {
	out := normalizedBuyer{email: strings.ToLower(strings.TrimSpace(buyer.Email))}
	if buyer.UserID != nil && *buyer.UserID != uuid.Nil {
		id := *buyer.UserID
		out.userID = &id
	}
	if out.email != "" {
		if _, err := mail.ParseAddress(out.email); err != nil {
			return normalizedBuyer{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
		}
	}
	if out.userID == nil && out.email == "" {
		return normalizedBuyer{}, pkgerrors.New(pkgerrors.CodeValidation, "buyer email required for guest checkout")
	}
	return out, nil
}

func buildOrder(buyer normalizedBuyer, method enums.ShippingMethod, lines []helpers.CartLine, views map[uuid.UUID]inventory.VariantView, totals helpers.Totals) *models.Order {
	order := &models.Order{
		ID:                uuid.New(),
		UserID:            buyer.userID,
		Email:             buyer.email,
		Currency:          totals.Currency,
		ItemsTotalMinor:   totals.ItemsMinor,
		ShippingMinor:     totals.ShippingMinor,
		GrandTotalMinor:   totals.GrandMinor,
		Status:            enums.OrderStatusPendingPayment,
		PaymentStatus:     enums.PaymentStatusPending,
		FulfillmentStatus: enums.FulfillmentUnfulfilled,
		ShippingMethod:    method,
		Items:             make([]models.OrderItem, 0, len(lines)),
	}
	for _, line := range lines {
		view := views[line.VariantID]
		variantID := view.ID
		order.Items = append(order.Items, models.OrderItem{
			VariantID: &variantID,
			Snapshot: models.ItemSnapshot{
				ProductName: view.ProductName,
				PriceMinor:  view.PriceMinor,
				Size:        view.Size,
				Color:       view.Color,
				SKU:         view.SKU,
			},
			Quantity: line.Quantity,
		})
	}
	return order
}

func createdEvent(order *models.Order, buyer normalizedBuyer, paymentMethod string) outbox.DomainEvent {
	items := make([]payloads.OrderCreatedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payloads.OrderCreatedItem{
			VariantID:   item.VariantID,
			ProductName: item.Snapshot.ProductName,
			Size:        item.Snapshot.Size,
			Color:       item.Snapshot.Color,
			Quantity:    item.Quantity,
			PriceMinor:  item.Snapshot.PriceMinor,
		})
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         buyer.ref(),
		OccurredAt:    order.CreatedAt,
		Data: payloads.OrderCreatedEvent{
			OrderID:         order.ID,
			UserID:          order.UserID,
			Email:           order.Email,
			GrandTotalMinor: order.GrandTotalMinor,
			Currency:        order.Currency,
			ShippingMethod:  order.ShippingMethod,
			PaymentMethod:   strings.TrimSpace(paymentMethod),
			Items:           items,
		},
	}
}

func outcome(err error) string {
	if err == nil {
		return "created"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "error"
}
