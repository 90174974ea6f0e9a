package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/kitchen-orders/internal/domain/auth"
	"github.com/xenking/kitchen-orders/internal/domain/branch"
	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/domain/product"
	"github.com/xenking/kitchen-orders/internal/domain/schedule"
	"github.com/xenking/kitchen-orders/internal/domain/stock"
	"github.com/xenking/kitchen-orders/internal/notify"
	"github.com/xenking/kitchen-orders/internal/storage/memory"
)

// Tuesday.
var fixedNow = time.Date(2025, 6, 17, 12, 0, 0, 0, time.UTC)

var (
	customer = auth.Principal{UserID: "u1", Role: auth.RoleCustomer}
	other    = auth.Principal{UserID: "u2", Role: auth.RoleCustomer}
	staffB1  = auth.Principal{UserID: "s1", Role: auth.RoleStaff, BranchID: "b1"}
	staffB2  = auth.Principal{UserID: "s2", Role: auth.RoleStaff, BranchID: "b2"}
	super    = auth.Principal{UserID: "root", Role: auth.RoleSuperAdmin}
)

type testServer struct {
	t     *testing.T
	authn *Authenticator
	srv   *httptest.Server
	hub   *notify.Hub
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.Catalog.UpsertProduct(ctx, product.Product{
		ID: "burger", BranchID: "b1", Name: "Burger", Price: decimal.NewFromInt(10),
	}))
	require.NoError(t, store.Catalog.SetStock(ctx, stock.Record{ProductID: "burger", BranchID: "b1", Quantity: 3, Tracked: true}))
	require.NoError(t, store.Catalog.UpsertCoupon(ctx, coupon.Coupon{
		ID: "c1", BranchID: "b1", Code: "SAVE10", Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(10),
		BranchEnabled: map[string]bool{"b1": true},
		DaysAvailable: map[string]bool{"tuesday": true},
		ServiceTypes:  map[branch.ServiceType]bool{branch.Collection: true, branch.DeliveryType: true},
		MinSpend:      decimal.NewFromInt(50),
		State:         coupon.StateActive,
	}))
	require.NoError(t, store.Catalog.UpsertOrderingTimes(ctx, schedule.OrderingTimes{
		BranchID: "b1",
		Weekly: map[string]schedule.Day{"tuesday": {Services: map[branch.ServiceType]schedule.Service{
			branch.DeliveryType: {Allowed: true},
		}}},
	}))

	runCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	hub := notify.NewHub(zap.NewNop(), nil)
	go hub.Run(runCtx)

	svc, err := order.NewService(order.Deps{
		Products:  store.Products,
		Stock:     store.Stock,
		Coupons:   store.Coupons,
		Schedules: store.Schedules,
		Orders:    store.Orders,
		Numbers:   store.Numbers,
		Events:    hub,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	authn := NewAuthenticator([]byte("test-secret"))
	h := New(cfg, svc, hub)
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(authn.Middleware)
		h.Routes(r)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{t: t, authn: authn, srv: srv, hub: hub}
}

func (s *testServer) token(p auth.Principal) string {
	s.t.Helper()
	tok, err := s.authn.Sign(p, time.Hour)
	require.NoError(s.t, err)
	return tok
}

type response struct {
	Code int
	Body map[string]any
}

func (s *testServer) do(p *auth.Principal, method, path, body string) response {
	s.t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	require.NoError(s.t, err)
	if p != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(*p))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer func() { _ = resp.Body.Close() }()

	out := response{Code: resp.StatusCode}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&out.Body))
	}
	return out
}

const pickupBody = `{"branchId":"b1","deliveryMethod":"pickup","lines":[{"productId":"burger","quantity":1}]}`

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t, Config{})

	res := s.do(&customer, http.MethodPost, "/api/orders", pickupBody)
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	assert.Equal(t, "pending", res.Body["status"])
	assert.Equal(t, "B1-000001", res.Body["number"])
	assert.Equal(t, 10.0, res.Body["finalTotal"])
	assert.Equal(t, "u1", res.Body["userId"])

	guest := s.do(nil, http.MethodPost, "/api/orders", pickupBody)
	require.Equal(t, http.StatusCreated, guest.Code)
	assert.NotContains(t, guest.Body, "userId")
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"malformed", `{"lines":`, http.StatusBadRequest, KindBadRequest},
		{"validation", `{"branchId":"b1","deliveryMethod":"pickup","lines":[]}`, http.StatusUnprocessableEntity, KindValidation},
		{"unknown product", `{"branchId":"b1","deliveryMethod":"pickup","lines":[{"productId":"ghost","quantity":1}]}`, http.StatusNotFound, KindNotFound},
		{"stock", `{"branchId":"b1","deliveryMethod":"pickup","lines":[{"productId":"burger","quantity":4}]}`, http.StatusConflict, KindStock},
		{"coupon", `{"branchId":"b1","deliveryMethod":"pickup","couponCode":"save10","lines":[{"productId":"burger","quantity":1}]}`, http.StatusUnprocessableEntity, KindCoupon},
	}
	s := newTestServer(t, Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.do(&customer, http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, tt.status, res.Code)
			assert.Equal(t, tt.kind, res.Body["kind"])
		})
	}

	res := s.do(&customer, http.MethodPost, "/api/orders",
		`{"branchId":"b1","deliveryMethod":"pickup","lines":[{"productId":"burger","quantity":4}]}`)
	stockLines := res.Body["stock"].([]any)
	require.Len(t, stockLines, 1)
	assert.Equal(t, 3.0, stockLines[0].(map[string]any)["available"])

	res = s.do(&customer, http.MethodPost, "/api/orders",
		`{"branchId":"b1","deliveryMethod":"pickup","couponCode":"save10","lines":[{"productId":"burger","quantity":1}]}`)
	assert.Equal(t, "min_spend", res.Body["reason"])
}

func TestCreateOrder_EnforceSchedule(t *testing.T) {
	s := newTestServer(t, Config{EnforceSchedule: true})

	res := s.do(&customer, http.MethodPost, "/api/orders", pickupBody)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Equal(t, KindUnavailable, res.Body["kind"])
	assert.Equal(t, "not_offered", res.Body["reason"])

	res = s.do(&customer, http.MethodPost, "/api/orders",
		`{"branchId":"b1","deliveryMethod":"delivery","deliveryAddress":"1 High St","lines":[{"productId":"burger","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	assert.Equal(t, 45.0, res.Body["estimatedMinutes"])
}

func TestOrderLifecycle(t *testing.T) {
	s := newTestServer(t, Config{})
	created := s.do(&customer, http.MethodPost, "/api/orders", pickupBody)
	require.Equal(t, http.StatusCreated, created.Code)
	path := "/api/orders/" + created.Body["id"].(string)

	assert.Equal(t, http.StatusOK, s.do(&customer, http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(&other, http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(&staffB2, http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(&staffB1, http.MethodGet, "/api/orders/ghost", "").Code)

	res := s.do(&customer, http.MethodPatch, path+"/status", `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(&staffB1, http.MethodPatch, path+"/status", `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, "confirmed", res.Body["status"])

	res = s.do(&staffB1, http.MethodPatch, path+"/status", `{"status":"delivered"}`)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, KindConflict, res.Body["kind"])

	res = s.do(&staffB1, http.MethodPatch, path+"/status", `{"status":"bogus"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = s.do(&customer, http.MethodPost, path+"/cancel", "")
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(&staffB1, http.MethodPost, path+"/cancel", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "cancelled", res.Body["status"])
	assert.Contains(t, res.Body, "cancelledAt")

	assert.Equal(t, http.StatusForbidden, s.do(&staffB2, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNoContent, s.do(&staffB1, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(&super, http.MethodGet, path, "").Code)
}

func TestListOrders(t *testing.T) {
	s := newTestServer(t, Config{})
	for range 2 {
		require.Equal(t, http.StatusCreated, s.do(&customer, http.MethodPost, "/api/orders", pickupBody).Code)
	}
	require.Equal(t, http.StatusCreated, s.do(&other, http.MethodPost, "/api/orders", pickupBody).Code)

	res := s.do(&customer, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, res.Body["orders"], 2)

	res = s.do(&staffB1, http.MethodGet, "/api/orders?limit=1", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, res.Body["orders"], 1)

	res = s.do(&super, http.MethodGet, "/api/branches/b1/orders?status=pending", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, res.Body["orders"], 3)

	assert.Equal(t, http.StatusForbidden, s.do(&staffB2, http.MethodGet, "/api/branches/b1/orders", "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(nil, http.MethodGet, "/api/orders", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(&staffB1, http.MethodGet, "/api/orders?limit=x", "").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, s.do(&super, http.MethodGet, "/api/orders", "").Code)
}

func TestAvailability(t *testing.T) {
	s := newTestServer(t, Config{})

	res := s.do(nil, http.MethodGet, "/api/branches/b1/availability?deliveryMethod=delivery", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, true, res.Body["allowed"])

	res = s.do(nil, http.MethodGet, "/api/branches/b1/availability", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, false, res.Body["allowed"])
	assert.Equal(t, "not_offered", res.Body["reason"])

	res = s.do(nil, http.MethodGet, "/api/branches/b9/availability?deliveryMethod=dine_in", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, true, res.Body["allowed"])

	res = s.do(nil, http.MethodGet, "/api/branches/b1/availability?deliveryMethod=drone", "")
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, Config{})

	call := func(header string) int {
		req, err := http.NewRequest(http.MethodGet, s.srv.URL+"/api/orders", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", header)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, call("Basic dXNlcg=="))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer not-a-jwt"))

	forged, err := NewAuthenticator([]byte("other-secret")).Sign(customer, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+forged))

	expired, err := s.authn.Sign(customer, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+expired))

	badRole, err := s.authn.Sign(auth.Principal{UserID: "x", Role: "owner"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+badRole))

	assert.Equal(t, http.StatusOK, call("Bearer "+s.token(customer)))
}

func TestAuthenticator_Principal(t *testing.T) {
	a := NewAuthenticator([]byte("k"))
	tok, err := a.Sign(staffB1, time.Hour)
	require.NoError(t, err)

	p, err := a.Principal(tok)
	require.NoError(t, err)
	assert.Equal(t, staffB1, p)

	_, err = NewAuthenticator(nil).Principal(tok)
	require.Error(t, err)
}

func TestStaffFeed(t *testing.T) {
	s := newTestServer(t, Config{})
	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/staff/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token(customer))
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Authorization", "Bearer "+s.token(staffB1))
	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?branchId=b2", header)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	created := s.do(&customer, http.MethodPost, "/api/orders", pickupBody)
	require.Equal(t, http.StatusCreated, created.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var event struct {
		Type  string `json:"type"`
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "order_created", event.Type)
	assert.Equal(t, created.Body["id"], event.Order.ID)
}

func TestToError(t *testing.T) {
	tests := []struct {
		err  error
		code int
		kind string
	}{
		{&order.ValidationError{Field: "lines", Message: "required"}, http.StatusUnprocessableEntity, KindValidation},
		{&stock.StockError{}, http.StatusConflict, KindStock},
		{&coupon.Error{Reason: coupon.ReasonExpired}, http.StatusUnprocessableEntity, KindCoupon},
		{&order.AuthorizationError{Action: "x", Reason: "y"}, http.StatusForbidden, KindForbidden},
		{&order.NotFoundError{Resource: "order", ID: "o1"}, http.StatusNotFound, KindNotFound},
		{errors.Wrap(order.ErrConflict, "raced"), http.StatusConflict, KindConflict},
		{&order.TransitionError{From: order.StatusReady, To: order.StatusPending}, http.StatusConflict, KindConflict},
		{errors.New("db down"), http.StatusInternalServerError, KindInternal},
	}
	for _, tt := range tests {
		got := toError(tt.err)
		assert.Equal(t, tt.code, got.Code, tt.err.Error())
		assert.Equal(t, tt.kind, got.Kind, tt.err.Error())
	}
}
