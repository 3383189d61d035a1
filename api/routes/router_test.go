package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/expiry"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	paymentwebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/payments"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubCheckout struct {
	got checkout.CheckoutInput
}

func (s *stubCheckout) Execute(_ context.Context, input checkout.CheckoutInput) (*models.Order, error) {
	s.got = input
	return &models.Order{
		ID:                uuid.New(),
		UserID:            input.Buyer.UserID,
		Email:             input.Buyer.Email,
		Currency:          enums.CurrencyEUR,
		Status:            enums.OrderStatusPendingPayment,
		PaymentStatus:     enums.PaymentStatusPending,
		FulfillmentStatus: enums.FulfillmentUnfulfilled,
		ShippingMethod:    enums.ShippingStandard,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

type stubOrders struct {
	lastActor  orders.Actor
	lastAction string
}

func (s *stubOrders) record(actor orders.Actor, action string) *models.Order {
	s.lastActor = actor
	s.lastAction = action
	return &models.Order{ID: uuid.New(), Status: enums.OrderStatusPaid, CreatedAt: time.Now().UTC()}
}

func (s *stubOrders) Get(_ context.Context, _ uuid.UUID, actor orders.Actor) (*models.Order, error) {
	return s.record(actor, "get"), nil
}

func (s *stubOrders) ListForUser(_ context.Context, actor orders.Actor, _ pagination.Params) (pagination.Page[models.Order], error) {
	s.record(actor, "list")
	return pagination.Page[models.Order]{}, nil
}

func (s *stubOrders) MarkPaid(_ context.Context, _ uuid.UUID, actor orders.Actor, _ map[string]string) (*models.Order, error) {
	return s.record(actor, "mark-paid"), nil
}

func (s *stubOrders) MarkPaymentFailed(_ context.Context, _ uuid.UUID, actor orders.Actor, _ string) (*models.Order, error) {
	return s.record(actor, "payment-failed"), nil
}

func (s *stubOrders) Expire(context.Context, uuid.UUID, time.Time) (orders.Result, error) {
	return orders.Result{}, nil
}

func (s *stubOrders) Cancel(_ context.Context, _ uuid.UUID, actor orders.Actor, _ string) (*models.Order, error) {
	return s.record(actor, "cancel"), nil
}

func (s *stubOrders) RequestReturn(_ context.Context, _ uuid.UUID, actor orders.Actor, _ []orders.ReturnLine, _ string) (*models.Order, error) {
	return s.record(actor, "return"), nil
}

func (s *stubOrders) ProcessReturn(_ context.Context, _ uuid.UUID, actor orders.Actor, _ []orders.ReturnDecision, _ string) (*models.Order, error) {
	return s.record(actor, "resolve"), nil
}

func (s *stubOrders) AdvanceFulfillment(_ context.Context, _ uuid.UUID, actor orders.Actor, _ enums.FulfillmentStatus) (*models.Order, error) {
	return s.record(actor, "fulfillment"), nil
}

type stubSweeper struct{}

func (stubSweeper) Sweep(context.Context, time.Time) (expiry.Summary, error) {
	return expiry.Summary{Processed: 3, Succeeded: 2, Failed: 1}, nil
}

type stubWebhook struct {
	err error
}

func (s stubWebhook) Process(_ context.Context, signature string, _ []byte) (paymentwebhook.Outcome, error) {
	if s.err != nil {
		return "", s.err
	}
	if signature == "" {
		return "", pkgerrors.New(pkgerrors.CodeSignature, "missing signature")
	}
	return paymentwebhook.OutcomeApplied, nil
}

type routerFixture struct {
	handler  http.Handler
	cfg      *config.Config
	checkout *stubCheckout
	orders   *stubOrders
}

func newRouterFixture(t *testing.T, dbErr error) routerFixture {
	t.Helper()
	cfg := &config.Config{
		App:  config.AppConfig{Env: "test"},
		JWT:  config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 60},
		Cron: config.CronConfig{Secret: "cron-secret"},
	}
	fx := routerFixture{cfg: cfg, checkout: &stubCheckout{}, orders: &stubOrders{}}
	fx.handler = NewRouter(
		cfg,
		logger.Nop(),
		stubPinger{err: dbErr},
		nil,
		prometheus.NewRegistry(),
		fx.checkout,
		fx.orders,
		stubSweeper{},
		stubWebhook{},
	)
	return fx
}

func (fx routerFixture) token(t *testing.T, role enums.Role) (string, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	token, err := pkgAuth.MintAccessToken(fx.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: userID,
		Email:  "member@example.com",
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, userID
}

func (fx routerFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	fx := newRouterFixture(t, nil)
	if resp := fx.do(http.MethodGet, "/health/live", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", resp.Code)
	}
	if resp := fx.do(http.MethodGet, "/health/ready", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d", resp.Code)
	}

	down := newRouterFixture(t, errors.New("connection refused"))
	if resp := down.do(http.MethodGet, "/health/ready", "", ""); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with db down: expected 503 got %d", resp.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	fx := newRouterFixture(t, nil)
	if resp := fx.do(http.MethodGet, "/metrics", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestGuestCheckout(t *testing.T) {
	fx := newRouterFixture(t, nil)
	variantID := uuid.New()
	body := `{"items":[{"variantId":"` + variantID.String() + `","quantity":2}],"email":"guest@example.com"}`

	resp := fx.do(http.MethodPost, "/api/v1/checkout", "", body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if fx.checkout.got.Buyer.UserID != nil {
		t.Fatal("guest checkout must not carry a user id")
	}
	if len(fx.checkout.got.Lines) != 1 || fx.checkout.got.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines %+v", fx.checkout.got.Lines)
	}
}

func TestCheckoutRejectsClientPrices(t *testing.T) {
	fx := newRouterFixture(t, nil)
	body := `{"items":[{"variantId":"` + uuid.NewString() + `","quantity":1,"price":1}],"email":"guest@example.com"}`

	resp := fx.do(http.MethodPost, "/api/v1/checkout", "", body)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutCapsLineQuantity(t *testing.T) {
	fx := newRouterFixture(t, nil)
	variantID := uuid.NewString()
	for _, qty := range []string{"10001", "9223372036854775807"} {
		body := `{"items":[{"variantId":"` + variantID + `","quantity":` + qty + `}],"email":"guest@example.com"}`
		resp := fx.do(http.MethodPost, "/api/v1/checkout", "", body)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("quantity %s: expected 400 got %d", qty, resp.Code)
		}
	}
	if fx.checkout.got.Lines != nil {
		t.Fatalf("checkout must not run, got %+v", fx.checkout.got.Lines)
	}
}

func TestAuthenticatedCheckoutUsesTokenIdentity(t *testing.T) {
	fx := newRouterFixture(t, nil)
	token, userID := fx.token(t, enums.RoleCustomer)
	body := `{"items":[{"variantId":"` + uuid.NewString() + `","quantity":1}]}`

	resp := fx.do(http.MethodPost, "/api/v1/checkout", token, body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if fx.checkout.got.Buyer.UserID == nil || *fx.checkout.got.Buyer.UserID != userID {
		t.Fatalf("expected buyer %s", userID)
	}
	if fx.checkout.got.Buyer.Email != "member@example.com" {
		t.Fatalf("expected token email, got %q", fx.checkout.got.Buyer.Email)
	}
}

func TestOrderRoutesRequireAuth(t *testing.T) {
	fx := newRouterFixture(t, nil)
	if resp := fx.do(http.MethodGet, "/api/v1/orders", "", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	token, userID := fx.token(t, enums.RoleCustomer)
	resp := fx.do(http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/cancel", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if fx.orders.lastActor != orders.UserActor(userID) || fx.orders.lastAction != "cancel" {
		t.Fatalf("unexpected call %s by %s", fx.orders.lastAction, fx.orders.lastActor)
	}
}

func TestAdminListsOwnOrdersAsUser(t *testing.T) {
	fx := newRouterFixture(t, nil)
	admin, adminID := fx.token(t, enums.RoleAdmin)

	resp := fx.do(http.MethodGet, "/api/v1/orders", admin, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if fx.orders.lastActor != orders.UserActor(adminID) || fx.orders.lastAction != "list" {
		t.Fatalf("unexpected call %s by %s", fx.orders.lastAction, fx.orders.lastActor)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	fx := newRouterFixture(t, nil)
	path := "/api/admin/v1/orders/" + uuid.NewString() + "/mark-paid"

	customer, _ := fx.token(t, enums.RoleCustomer)
	if resp := fx.do(http.MethodPost, path, customer, ""); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	admin, adminID := fx.token(t, enums.RoleAdmin)
	resp := fx.do(http.MethodPost, path, admin, `{"note":"bank transfer"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if fx.orders.lastActor != orders.AdminActor(adminID) {
		t.Fatalf("expected admin actor, got %s", fx.orders.lastActor)
	}
}

func TestAdminFulfillmentValidatesStatus(t *testing.T) {
	fx := newRouterFixture(t, nil)
	admin, _ := fx.token(t, enums.RoleAdmin)
	path := "/api/admin/v1/orders/" + uuid.NewString() + "/fulfillment"

	if resp := fx.do(http.MethodPost, path, admin, `{"status":"teleported"}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if resp := fx.do(http.MethodPost, path, admin, `{"status":"shipped"}`); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestCronExpireOrders(t *testing.T) {
	fx := newRouterFixture(t, nil)
	if resp := fx.do(http.MethodPost, "/api/cron/expire-orders", "wrong", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	resp := fx.do(http.MethodPost, "/api/cron/expire-orders", "cron-secret", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var body struct {
		Data struct {
			Processed int `json:"processed"`
			Succeeded int `json:"succeeded"`
			Failed    int `json:"failed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Processed != 3 || body.Data.Succeeded != 2 || body.Data.Failed != 1 {
		t.Fatalf("unexpected summary %+v", body.Data)
	}
}

func TestPaymentWebhookRoute(t *testing.T) {
	fx := newRouterFixture(t, nil)
	if resp := fx.do(http.MethodPost, "/api/v1/webhooks/payments", "", `{}`); resp.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned delivery: expected 401 got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(`{}`))
	req.Header.Set(paymentwebhook.SignatureHeader, "t=1,v1=abc")
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"outcome":"applied"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}
