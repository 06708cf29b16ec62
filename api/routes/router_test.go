package routes

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sareehub-backend/internal/audit"
	"github.com/angelmondragon/sareehub-backend/internal/inventory"
	"github.com/angelmondragon/sareehub-backend/internal/orders"
	"github.com/angelmondragon/sareehub-backend/internal/realtime"
	paymentwebhook "github.com/angelmondragon/sareehub-backend/internal/webhooks/payment"
	"github.com/angelmondragon/sareehub-backend/pkg/auth"
	"github.com/angelmondragon/sareehub-backend/pkg/config"
	"github.com/angelmondragon/sareehub-backend/pkg/db"
	"github.com/angelmondragon/sareehub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
	"github.com/angelmondragon/sareehub-backend/pkg/metrics"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

func (m *memoryStore) WebhookKey(provider, deliveryID string) string {
	return "test:webhook:" + provider + ":" + deliveryID
}

func (m *memoryStore) MarkWebhookSeen(ctx context.Context, provider, deliveryID string, ttl time.Duration) (bool, error) {
	return m.SetNX(ctx, m.WebhookKey(provider, deliveryID), "1", ttl)
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type harness struct {
	t        *testing.T
	cfg      *config.Config
	client   *db.Client
	hub      *realtime.Hub
	store    *memoryStore
	handler  http.Handler
	customer auth.Actor
	admin    auth.Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-test-secret", Issuer: "sareehub-test", ExpirationMinutes: 60},
		Webhooks: config.WebhookConfig{
			PaymentRateLimit:  120,
			PaymentRateWindow: time.Minute,
			DedupTTL:          time.Hour,
		},
	}

	client := dbtest.New(t)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	recorder := audit.NewRecorder()
	m := metrics.NewInventoryMetrics(nil)

	inv, err := inventory.NewService(inventory.ServiceParams{
		Repo:           inventory.NewRepository(client.DB()),
		DB:             client,
		Outbox:         emitter,
		Audit:          recorder,
		Metrics:        m,
		ReservationTTL: 30 * time.Minute,
	})
	require.NoError(t, err)

	ord, err := orders.NewService(orders.ServiceParams{
		Repo:           orders.NewRepository(client.DB()),
		DB:             client,
		Inventory:      inv,
		Outbox:         emitter,
		Audit:          recorder,
		Metrics:        m,
		ReservationTTL: 30 * time.Minute,
	})
	require.NoError(t, err)

	store := newMemoryStore()
	guard, err := paymentwebhook.NewGuard(store, cfg.Webhooks.DedupTTL)
	require.NoError(t, err)

	hub := realtime.NewHub(8, nil)
	t.Cleanup(hub.Close)

	h := &harness{
		t:        t,
		cfg:      cfg,
		client:   client,
		hub:      hub,
		store:    store,
		customer: auth.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer},
		admin:    auth.Actor{UserID: uuid.New(), Role: enums.MemberRoleAdmin},
	}
	h.handler = NewRouter(Dependencies{
		Config:           cfg,
		DB:               okPinger{},
		Redis:            okPinger{},
		IdempotencyStore: store,
		Inventory:        inv,
		Orders:           ord,
		PaymentGuard:     guard,
		Hub:              hub,
		Metrics:          http.NotFoundHandler(),
		SSEHeartbeat:     time.Hour,
	})
	return h
}

func (h *harness) token(actor auth.Actor) string {
	h.t.Helper()
	token, err := auth.MintAccessToken(h.cfg.JWT, time.Now(), auth.AccessTokenPayload{
		UserID: actor.UserID,
		Role:   actor.Role,
		JTI:    uuid.NewString(),
	})
	require.NoError(h.t, err)
	return token
}

func (h *harness) variant(stock int, price string) *models.Variant {
	h.t.Helper()
	v := &models.Variant{
		ProductID:      uuid.New(),
		SKU:            "SKU-" + uuid.NewString()[:8],
		Name:           "Banarasi georgette",
		Price:          decimal.RequireFromString(price),
		StockQuantity:  stock,
		TrackInventory: true,
		IsActive:       true,
	}
	require.NoError(h.t, h.client.DB().Create(v).Error)
	return v
}

type requestOpts struct {
	actor          *auth.Actor
	idempotencyKey string
	body           any
}

func (h *harness) do(method, path string, opts requestOpts) *httptest.ResponseRecorder {
	h.t.Helper()
	var body io.Reader
	if opts.body != nil {
		raw, err := json.Marshal(opts.body)
		require.NoError(h.t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.actor != nil {
		req.Header.Set("Authorization", "Bearer "+h.token(*opts.actor))
	}
	if opts.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", opts.idempotencyKey)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func (h *harness) createOrder(variantID uuid.UUID, qty int, key string) orders.OrderView {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/orders", requestOpts{
		actor:          &h.customer,
		idempotencyKey: key,
		body: orders.CreateInput{Items: []orders.CreateItemInput{
			{VariantID: variantID, Quantity: qty},
		}},
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	var view orders.OrderView
	require.NoError(h.t, json.Unmarshal(decodeEnvelope(h.t, rec).Data, &view))
	return view
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)

	live := h.do(http.MethodGet, "/health/live", requestOpts{})
	assert.Equal(t, http.StatusOK, live.Code)
	assert.Equal(t, "test", live.Header().Get("X-SareeHub-Env"))

	ready := h.do(http.MethodGet, "/health/ready", requestOpts{})
	assert.Equal(t, http.StatusOK, ready.Code)
}

func TestAvailabilityIsPublic(t *testing.T) {
	h := newHarness(t)
	v := h.variant(7, "2400.00")

	rec := h.do(http.MethodGet, "/api/inventory/available/"+v.ID.String(), requestOpts{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var availability inventory.Availability
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &availability))
	assert.Equal(t, 7, availability.AvailableStock)
	assert.Equal(t, 0, availability.ReservedStock)
}

func TestAvailabilityRejectsMalformedID(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/inventory/available/not-a-uuid", requestOpts{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrderRequiresAuth(t *testing.T) {
	h := newHarness(t)
	v := h.variant(3, "1000.00")

	rec := h.do(http.MethodPost, "/api/orders", requestOpts{
		idempotencyKey: "anon",
		body: orders.CreateInput{Items: []orders.CreateItemInput{
			{VariantID: v.ID, Quantity: 1},
		}},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateOrderReservesStockAndReplays(t *testing.T) {
	h := newHarness(t)
	v := h.variant(5, "1500.00")

	first := h.createOrder(v.ID, 2, "checkout-1")
	assert.Equal(t, enums.OrderStatusPending, first.Status)
	assert.Equal(t, "3000.00", first.TotalAmount)

	replay := h.createOrder(v.ID, 2, "checkout-1")
	assert.Equal(t, first.ID, replay.ID)

	rec := h.do(http.MethodGet, "/api/inventory/available/"+v.ID.String(), requestOpts{})
	var availability inventory.Availability
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &availability))
	assert.Equal(t, 3, availability.AvailableStock)
	assert.Equal(t, 2, availability.ReservedStock)
}

func TestCreateOrderRequiresIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	v := h.variant(5, "1500.00")

	rec := h.do(http.MethodPost, "/api/orders", requestOpts{
		actor: &h.customer,
		body: orders.CreateInput{Items: []orders.CreateItemInput{
			{VariantID: v.ID, Quantity: 1},
		}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	h := newHarness(t)
	v := h.variant(1, "1500.00")

	rec := h.do(http.MethodPost, "/api/orders", requestOpts{
		actor:          &h.customer,
		idempotencyKey: "too-many",
		body: orders.CreateInput{Items: []orders.CreateItemInput{
			{VariantID: v.ID, Quantity: 4},
		}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", decodeEnvelope(t, rec).Error.Code)
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	h := newHarness(t)
	v := h.variant(2, "800.00")

	history := h.do(http.MethodGet, "/api/inventory/history/"+v.ID.String(), requestOpts{actor: &h.customer})
	assert.Equal(t, http.StatusForbidden, history.Code)

	adjust := h.do(http.MethodPost, "/api/inventory/adjust", requestOpts{
		actor:          &h.customer,
		idempotencyKey: "adjust-1",
		body:           map[string]any{"variant_id": v.ID, "quantity_change": 5},
	})
	assert.Equal(t, http.StatusForbidden, adjust.Code)

	events := h.do(http.MethodGet, "/api/admin/events", requestOpts{actor: &h.customer})
	assert.Equal(t, http.StatusForbidden, events.Code)
}

func TestAdminHistoryListsMovements(t *testing.T) {
	h := newHarness(t)
	v := h.variant(4, "800.00")
	h.createOrder(v.ID, 1, "history-order")

	rec := h.do(http.MethodGet, "/api/inventory/history/"+v.ID.String(), requestOpts{actor: &h.admin})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &page))
	require.NotEmpty(t, page.Items)
	assert.Equal(t, "reserve", page.Items[0]["type"])
}

func TestPaymentWebhookConfirmsOrderOnce(t *testing.T) {
	h := newHarness(t)
	v := h.variant(3, "1200.00")
	order := h.createOrder(v.ID, 1, "pay-1")

	payload := orders.PaymentWebhookInput{
		OrderID:              order.ID,
		PaymentStatus:        enums.PaymentStatusPaid,
		PaymentMethod:        "upi",
		PaymentTransactionID: "txn-001",
	}

	first := h.do(http.MethodPost, "/api/orders/webhook/payment", requestOpts{body: payload})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	var result orders.PaymentResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, first).Data, &result))
	assert.False(t, result.Replayed)
	require.NotNil(t, result.Order)
	assert.Equal(t, enums.OrderStatusConfirmed, result.Order.Status)
	assert.Equal(t, enums.PaymentStatusPaid, result.Order.PaymentStatus)

	second := h.do(http.MethodPost, "/api/orders/webhook/payment", requestOpts{body: payload})
	require.Equal(t, http.StatusOK, second.Code)
	var replay orders.PaymentResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, second).Data, &replay))
	assert.True(t, replay.Replayed)

	var stored models.Variant
	require.NoError(t, h.client.DB().First(&stored, "id = ?", v.ID).Error)
	assert.Equal(t, 2, stored.StockQuantity)
}

func TestPaymentWebhookFailureForgetsDelivery(t *testing.T) {
	h := newHarness(t)

	payload := orders.PaymentWebhookInput{
		OrderID:              uuid.New(),
		PaymentStatus:        enums.PaymentStatusPaid,
		PaymentTransactionID: "txn-missing",
	}
	rec := h.do(http.MethodPost, "/api/orders/webhook/payment", requestOpts{body: payload})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := h.store.Get(context.Background(), h.store.WebhookKey(paymentwebhook.Provider, "txn-missing:paid"))
	assert.ErrorIs(t, err, redis.Nil)
}

func TestCustomerCannotReadOtherOrders(t *testing.T) {
	h := newHarness(t)
	v := h.variant(3, "1200.00")
	order := h.createOrder(v.ID, 1, "own-order")

	other := auth.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}
	rec := h.do(http.MethodGet, "/api/orders/"+order.ID.String(), requestOpts{actor: &other})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	own := h.do(http.MethodGet, "/api/orders/"+order.ID.String(), requestOpts{actor: &h.customer})
	assert.Equal(t, http.StatusOK, own.Code)
}

func TestCancelReleasesReservation(t *testing.T) {
	h := newHarness(t)
	v := h.variant(3, "1200.00")
	order := h.createOrder(v.ID, 2, "cancel-order")

	rec := h.do(http.MethodPost, "/api/orders/"+order.ID.String()+"/cancel", requestOpts{
		actor:          &h.customer,
		idempotencyKey: "cancel-1",
		body:           map[string]any{"reason": "changed my mind"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view orders.OrderView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &view))
	assert.Equal(t, enums.OrderStatusCancelled, view.Status)

	availability := h.do(http.MethodGet, "/api/inventory/available/"+v.ID.String(), requestOpts{})
	var a inventory.Availability
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, availability).Data, &a))
	assert.Equal(t, 3, a.AvailableStock)
}

func TestAdminEventStreamDeliversBroadcasts(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/admin/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+h.token(h.admin))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return h.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	eventID := uuid.NewString()
	delivered := h.hub.Broadcast(realtime.Event{
		ID:            eventID,
		Type:          "order_created",
		AggregateType: "order",
		AggregateID:   uuid.NewString(),
		OccurredAt:    time.Now().UTC(),
		Data:          json.RawMessage(`{"order_number":"SH-1"}`),
	})
	assert.Equal(t, 1, delivered)

	reader := bufio.NewReader(resp.Body)
	var frame []string
	for {
		line, readErr := reader.ReadString('\n')
		require.NoError(t, readErr)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(frame) > 0 {
				break
			}
			continue
		}
		frame = append(frame, line)
	}

	require.Len(t, frame, 3)
	assert.Equal(t, "id: "+eventID, frame[0])
	assert.Equal(t, "event: order_created", frame[1])
	assert.True(t, strings.HasPrefix(frame[2], "data: "))
	assert.Contains(t, frame[2], "SH-1")

	cancel()
	require.Eventually(t, func() bool { return h.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
