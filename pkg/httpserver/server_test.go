package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantfold/perpsim/internal/book"
	"github.com/quantfold/perpsim/internal/events"
	"github.com/quantfold/perpsim/internal/exchange"
	"github.com/quantfold/perpsim/internal/feed"
	"github.com/quantfold/perpsim/internal/journal"
	"github.com/quantfold/perpsim/internal/matching"
	"github.com/quantfold/perpsim/internal/testutil"
	"github.com/quantfold/perpsim/pkg/healthprobe"
	"github.com/quantfold/perpsim/pkg/types"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*httptest.Server, *exchange.Core, *events.Bus) {
	t.Helper()

	logger := zap.NewNop()
	books := book.NewManager(&book.Config{
		Source:   &testutil.StubBookSource{},
		Registry: feed.DefaultRegistry(),
		Logger:   logger,
	})
	books.Set("BTC", testutil.Book(100, 10, 100, 10))

	bus := events.NewBus(logger)
	core := exchange.New(&exchange.Config{
		Enabled:        true,
		InitialCapital: 1000,
		QuoteCurrency:  "USDT",
		Matching: matching.Config{
			LatencyMinMs: 5, LatencyMaxMs: 40,
			MaxSlippageBps: 3, MakerFeeBps: 2, TakerFeeBps: 5,
		},
		FundingPeriod:   8 * time.Hour,
		RatesInterval:   5 * time.Minute,
		RefreshInterval: 15 * time.Second,
		Books:           books,
		Journal:         journal.NewConsoleJournal(logger),
		Bus:             bus,
		Source:          testutil.FixedSource{V: 0},
		Logger:          logger,
	})

	probe := healthprobe.New()
	probe.SetReady(true)

	srv := New(&Config{
		Port:          "0",
		Logger:        logger,
		HealthChecker: probe,
		Core:          core,
		Bus:           bus,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, core, bus
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestServer_HealthAndReady(t *testing.T) {
	ts, _, _ := newTestServer(t)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestServer_OrderBook(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/orderbook?symbol=BTCUSDT")
	if err != nil {
		t.Fatalf("get orderbook: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	snap := decodeBody[types.BookSnapshot](t, resp)
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 100 {
		t.Errorf("unexpected book: %+v", snap)
	}
}

func TestServer_OrderBookErrors(t *testing.T) {
	ts, _, _ := newTestServer(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantError  string
	}{
		{name: "missing symbol", query: "", wantStatus: http.StatusBadRequest, wantError: "Symbol is required"},
		{name: "unknown market", query: "?symbol=SHIB", wantStatus: http.StatusNotFound, wantError: "Unknown market"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/orderbook" + tt.query)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			body := decodeBody[ErrorResponse](t, resp)
			if body.Error != tt.wantError {
				t.Errorf("expected error %q, got %q", tt.wantError, body.Error)
			}
		})
	}
}

func TestServer_PlaceOrderWithSideAlias(t *testing.T) {
	ts, core, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/orders", map[string]any{
		"symbol":   "BTC",
		"side":     "long",
		"quantity": 1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	exec := decodeBody[types.Execution](t, resp)
	if exec.Status != types.ExecFilled {
		t.Fatalf("expected filled, got %+v", exec)
	}

	if len(core.GetOpenPositions("")) != 1 {
		t.Error("expected position opened through the API")
	}
}

func TestServer_PlaceOrderValidation(t *testing.T) {
	ts, _, _ := newTestServer(t)

	tests := []struct {
		name      string
		body      map[string]any
		wantError string
	}{
		{
			name:      "bad side",
			body:      map[string]any{"symbol": "BTC", "side": "hold", "quantity": 1},
			wantError: "Unsupported order side",
		},
		{
			name:      "missing symbol",
			body:      map[string]any{"side": "buy", "quantity": 1},
			wantError: "Symbol is required",
		},
		{
			name:      "zero quantity",
			body:      map[string]any{"symbol": "BTC", "side": "buy", "quantity": 0},
			wantError: "Quantity must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/orders", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
			body := decodeBody[ErrorResponse](t, resp)
			if body.Error != tt.wantError {
				t.Errorf("expected %q, got %q", tt.wantError, body.Error)
			}
		})
	}
}

func TestServer_RejectedOrderIs200(t *testing.T) {
	ts, _, _ := newTestServer(t)

	// 100 BTC at 100 is far beyond the 1000 starting capital.
	resp := postJSON(t, ts.URL+"/api/orders", map[string]any{
		"symbol": "BTC", "side": "buy", "quantity": 100,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	exec := decodeBody[types.Execution](t, resp)
	if exec.Status != types.ExecRejected || exec.Reason != types.ReasonInsufficientCash {
		t.Errorf("expected insufficient-cash rejection, got %+v", exec)
	}
}

func TestServer_CloseAndReset(t *testing.T) {
	ts, core, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/orders", map[string]any{
		"symbol": "BTC", "side": "buy", "quantity": 1,
	})
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/close", map[string]any{"symbols": []string{"BTC"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close: expected 200, got %d", resp.StatusCode)
	}
	results := decodeBody[map[string]*types.Execution](t, resp)
	if results["BTC"].Status != types.ExecFilled {
		t.Errorf("expected filled close, got %+v", results["BTC"])
	}

	resp = postJSON(t, ts.URL+"/api/reset", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", resp.StatusCode)
	}
	snap := decodeBody[types.AccountSnapshot](t, resp)
	if snap.CashBalance != 1000 {
		t.Errorf("expected restored capital, got %v", snap.CashBalance)
	}

	if len(core.GetOpenPositions("")) != 0 {
		t.Error("expected flat account")
	}
}

func TestServer_ExitPlan(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/orders", map[string]any{
		"symbol": "BTC", "side": "buy", "quantity": 1,
	})
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/exit-plan", map[string]any{
		"symbol": "BTC",
		"stop":   90,
		"target": 120,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	snap := decodeBody[types.AccountSnapshot](t, resp)
	if len(snap.Positions) != 1 || snap.Positions[0].ExitPlan == nil {
		t.Fatalf("expected plan on position, got %+v", snap.Positions)
	}
	if *snap.Positions[0].ExitPlan.Stop != 90 {
		t.Errorf("unexpected stop: %v", *snap.Positions[0].ExitPlan.Stop)
	}
}

func TestServer_EventStream(t *testing.T) {
	ts, _, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	// Give the subscription a moment to register before emitting.
	time.Sleep(50 * time.Millisecond)

	resp := postJSON(t, ts.URL+"/api/orders", map[string]any{
		"symbol": "BTC", "side": "buy", "quantity": 1,
	})
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}

	var evt struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if evt.Kind != string(events.KindTrade) {
		t.Errorf("expected trade event first, got %q", evt.Kind)
	}
}

func TestServer_EventStreamAccountFilter(t *testing.T) {
	ts, _, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?account=other"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	// Trade for the default account must not reach a client scoped to
	// "other".
	resp := postJSON(t, ts.URL+"/api/orders", map[string]any{
		"symbol": "BTC", "side": "buy", "quantity": 1,
	})
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected no events for a foreign account")
	}
}
