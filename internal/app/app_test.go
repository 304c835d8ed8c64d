package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = ""
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func call(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestApp_PlaceOrderThroughAPI(t *testing.T) {
	a := newTestApp(t, testConfig())
	api := a.Handler()

	w := call(t, api, http.MethodPost, "/api/products", `{"name":"A","price":"100","stockCount":5}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var product struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &product))

	w = call(t, api, http.MethodPost, "/api/orders",
		fmt.Sprintf(`{"lines":[{"productId":%d,"quantity":3}],"shippingAddress":"Lenina 1","paymentMethod":"card"}`, product.ID),
		map[string]string{"X-User-ID": "1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order struct {
		OrderNumber string `json:"orderNumber"`
		Total       string `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	require.Regexp(t, `^ORD-\d{8}-001$`, order.OrderNumber)
	require.Equal(t, "300", order.Total)

	ops := a.OpsHandler()
	w = call(t, ops, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "storefront_orders_placed_total 1")
	require.Contains(t, w.Body.String(), "storefront_http_requests_total")
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func TestApp_OpsEndpoints(t *testing.T) {
	a := newTestApp(t, testConfig())
	ops := a.OpsHandler()

	w := call(t, ops, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report healthcheck.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, healthcheck.StatusHealthy, report.Status)
	require.Contains(t, report.Checks, "storage")

	require.Equal(t, http.StatusOK, call(t, ops, http.MethodGet, "/readyz", "", nil).Code)
	require.Equal(t, http.StatusOK, call(t, ops, http.MethodGet, "/livez", "", nil).Code)
}

func TestApp_KafkaUnavailableDegrades(t *testing.T) {
	cfg := testConfig()
	cfg.KafkaBrokers = []string{"127.0.0.1:1"}

	a := newTestApp(t, cfg)
	require.Nil(t, a.producer)
	require.Nil(t, a.outbox, "outbox worker needs a producer")

	report := a.health.Run(context.Background())
	require.Equal(t, healthcheck.StatusDegraded, report.Status)
	require.Equal(t, errKafkaUnavailable.Error(), report.Checks["kafka"].Message)
}

func TestApp_WithoutBrokersSkipsKafka(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	require.Nil(t, a.producer)
	require.Nil(t, a.outbox)

	_, registered := a.health.Run(context.Background()).Checks["kafka"]
	require.False(t, registered)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, testConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_ServesHTTP(t *testing.T) {
	a := newTestApp(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/products?size=5")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.JSONEq(t, `{"content":[],"total":0,"currentPage":1,"size":5,"totalPages":0,"sortBy":"id","sortDirection":"ASC"}`, string(body))
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported storage_driver")
}

func TestRun_AddressInUse(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	cfg := testConfig()
	cfg.HTTPAddr = busy.Listener.Addr().String()

	err := Run(context.Background(), cfg)
	require.Error(t, err)
}
