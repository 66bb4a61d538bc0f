package exchange

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/quantfold/perpsim/internal/book"
	"github.com/quantfold/perpsim/internal/events"
	"github.com/quantfold/perpsim/internal/feed"
	"github.com/quantfold/perpsim/internal/journal"
	"github.com/quantfold/perpsim/internal/matching"
	"github.com/quantfold/perpsim/internal/testutil"
	"github.com/quantfold/perpsim/pkg/types"
	"go.uber.org/zap"
)

type recordingJournal struct {
	mu   sync.Mutex
	recs []*journal.Record
}

func (r *recordingJournal) RecordClose(ctx context.Context, rec *journal.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func (r *recordingJournal) Close() error { return nil }

func (r *recordingJournal) records() []*journal.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*journal.Record(nil), r.recs...)
}

type harness struct {
	core    *Core
	books   *book.Manager
	bus     *events.Bus
	journal *recordingJournal
	source  *testutil.StubBookSource
	clock   *time.Time
	rates   map[string]float64
}

func newHarness(t *testing.T, capital float64) *harness {
	t.Helper()

	logger := zap.NewNop()
	source := &testutil.StubBookSource{Books: map[string]*types.BookSnapshot{}}
	books := book.NewManager(&book.Config{
		Source:   source,
		Registry: feed.DefaultRegistry(),
		Logger:   logger,
	})
	bus := events.NewBus(logger)
	jnl := &recordingJournal{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rates := map[string]float64{}

	core := New(&Config{
		Enabled:        true,
		InitialCapital: capital,
		QuoteCurrency:  "USDT",
		Matching: matching.Config{
			LatencyMinMs:   5,
			LatencyMaxMs:   40,
			MaxSlippageBps: 3,
			MakerFeeBps:    2,
			TakerFeeBps:    5,
		},
		FundingPeriod:   8 * time.Hour,
		RatesInterval:   5 * time.Minute,
		RefreshInterval: 15 * time.Second,
		Books:           books,
		Rates: func() (map[string]float64, error) {
			out := make(map[string]float64, len(rates))
			for k, v := range rates {
				out[k] = v
			}
			return out, nil
		},
		Journal: jnl,
		Bus:     bus,
		Source:  testutil.FixedSource{V: 0},
		Logger:  logger,
		Now:     func() time.Time { return now },
	})

	h := &harness{core: core, books: books, bus: bus, journal: jnl, source: source, clock: &now, rates: rates}
	return h
}

func (h *harness) setBook(symbol string, snap *types.BookSnapshot) {
	h.books.Set(symbol, snap)
}

func (h *harness) advance(d time.Duration) {
	*h.clock = h.clock.Add(d)
}

func approx(t *testing.T, got, want, tol float64, label string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %v, want %v", label, got, want)
	}
}

func TestPlaceOrder_MarketBuySettles(t *testing.T) {
	h := newHarness(t, 1000)
	h.setBook("BTC", testutil.Book(100, 10, 100, 10))

	exec, err := h.core.PlaceOrder(context.Background(), "", &types.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     types.SideBuy,
		Type:     types.OrderTypeMarket,
		Quantity: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status != types.ExecFilled {
		t.Fatalf("expected filled, got %s (%s)", exec.Status, exec.Reason)
	}
	approx(t, exec.AveragePrice, 100, 1e-9, "average price")
	approx(t, exec.TotalFees, 0.10, 1e-9, "taker fee")

	snap := h.core.GetAccountSnapshot("")
	approx(t, snap.CashBalance, 799.90, 1e-9, "cash")
	approx(t, snap.MarginBalance, 200, 1e-9, "margin")
	approx(t, snap.Equity, 999.90, 1e-9, "equity")

	if len(snap.Positions) != 1 || snap.Positions[0].Symbol != "BTC" {
		t.Fatalf("expected one BTC position, got %+v", snap.Positions)
	}
	approx(t, snap.Positions[0].Quantity, 2, 1e-9, "position quantity")
}

func TestPlaceOrder_ValidationErrors(t *testing.T) {
	h := newHarness(t, 1000)
	nan := math.NaN()

	tests := []struct {
		name string
		req  *types.OrderRequest
		want error
	}{
		{
			name: "missing symbol",
			req:  &types.OrderRequest{Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 1},
			want: types.ErrSymbolRequired,
		},
		{
			name: "bad side",
			req:  &types.OrderRequest{Symbol: "BTC", Side: "hold", Type: types.OrderTypeMarket, Quantity: 1},
			want: types.ErrUnsupportedSide,
		},
		{
			name: "zero quantity",
			req:  &types.OrderRequest{Symbol: "BTC", Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 0},
			want: types.ErrQuantityNotPositive,
		},
		{
			name: "nan limit price",
			req:  &types.OrderRequest{Symbol: "BTC", Side: types.SideBuy, Type: types.OrderTypeLimit, Quantity: 1, LimitPrice: &nan},
			want: types.ErrInvalidLimitPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.core.PlaceOrder(context.Background(), "", tt.req)
			if err != tt.want {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPlaceOrder_Disabled(t *testing.T) {
	h := newHarness(t, 1000)
	h.core.enabled = false

	_, err := h.core.PlaceOrder(context.Background(), "", &types.OrderRequest{
		Symbol: "BTC", Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 1,
	})
	if err != types.ErrSimulationDisabled {
		t.Errorf("expected simulation-disabled error, got %v", err)
	}
}

func TestPlaceOrder_UnknownSymbolRejected(t *testing.T) {
	h := newHarness(t, 1000)

	exec, err := h.core.PlaceOrder(context.Background(), "", &types.OrderRequest{
		Symbol: "SHIB", Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status != types.ExecRejected || exec.Reason != types.ReasonNoLiquidity {
		t.Errorf("expected no-liquidity rejection, got %+v", exec)
	}
}

func TestPlaceOrder_InsufficientCashLeavesAccountUntouched(t *testing.T) {
	h := newHarness(t, 100)
	h.setBook("BTC", testutil.Book(100, 10, 100, 10))

	exec, err := h.core.PlaceOrder(context.Background(), "", &types.OrderRequest{
		Symbol: "BTC", Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status != types.ExecRejected || exec.Reason != types.ReasonInsufficientCash {
		t.Fatalf("expected insufficient-cash rejection, got %+v", exec)
	}

	snap := h.core.GetAccountSnapshot("")
	approx(t, snap.CashBalance, 100, 1e-9, "cash untouched")
	if len(snap.Positions) != 0 {
		t.Errorf("expected no positions, got %+v", snap.Positions)
	}
}

func TestPlaceOrder_LeverageAdmitsLargerNotional(t *testing.T) {
	h := newHarness(t, 100)
	h.setBook("BTC", testutil.Book(100, 10, 100, 10))

	exec, err := h.core.PlaceOrder(context.Background(), "", &types.OrderRequest{
		Symbol:   "BTC",
		Side:     types.SideBuy,
		Type:     types.OrderTypeMarket,
		Quantity: 2,
		Leverage: testutil.Ptr(5.0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status != types.ExecFilled {
		t.Fatalf("expected filled with leverage, got %+v", exec)
	}

	snap := h.core.GetAccountSnapshot("")
	approx(t, snap.MarginBalance, 40, 1e-9, "margin at 5x")
}

func TestPlaceOrder_EmitsTradeThenAccount(t *testing.T) {
	h := newHarness(t, 1000)
	h.setBook("BTC", testutil.Book(100, 10, 100, 10))

	var order []events.Kind
	h.bus.Subscribe(events.KindTrade, func(evt events.Event) { order = append(order, evt.Kind) })
	h.bus.Subscribe(events.KindAccount, func(evt events.Event) { order = append(order, evt.Kind) })

	_, err := h.core.PlaceOrder(context.Background(), "acct-1", &types.OrderRequest{
		Symbol: "BTC", Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order) != 2 || order[0] != events.KindTrade || order[1] != events.KindAccount {
		t.Errorf("expected trade then account, got %v", order)
	}
}

func TestPlaceOrder_TradeEventFields(t *testing.T) {
	h := newHarness(t, 1000)
	h.setBook("BTC", testutil.Book(100, 10, 100, 10))

	var trade *events.TradeEvent
	h.bus.Subscribe(events.KindTrade, func(evt events.Event) {
		trade = evt.Payload.(*events.TradeEvent)
	})

	conf := 0.8
	_, err := h.core.PlaceOrder(context.Background(), "acct-1", &types.OrderRequest{
		Symbol:     "BTC",
		Side:       types.SideBuy,
		Type:       types.OrderTypeMarket,
		Quantity:   2,
		Confidence: &conf,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trade == nil {
		t.Fatal("expected trade event")
	}
	if trade.ID == "" {
		t.Error("expected generated trade id")
	}
	if trade.AccountID != "acct-1" || trade.Symbol != "BTC" || trade.Direction != types.SideBuy {
		t.Errorf("unexpected identity fields: %+v", trade)
	}
	approx(t, trade.Notional, 200, 1e-9, "notional")
	if trade.Confidence == nil || *trade.Confidence != 0.8 {
		t.Error("confidence not carried through")
	}
	if trade.Completed {
		t.Error("opening trade should not be completed")
	}
	approx(t, trade.AccountValue, 999.90, 1e-9, "account value")
}

func TestClosePositions_RoundTrip(t *testing.T) {
	h := newHarness(t, 1000)
	h.setBook("BTC", testutil.Book(110, 10, 110, 10))

	_, err := h.core.PlaceOrder(context.Background(), "", &types.OrderRequest{
		Symbol: "BTC", Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 2,
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	results, err := h.core.ClosePositions(context.Background(), "", []string{"BTC", "ETH"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if results["BTC"].Status != types.ExecFilled {
		t.Errorf("expected BTC close filled, got %+v", results["BTC"])
	}
	if results["ETH"].Status != types.ExecRejected || results["ETH"].Reason != types.ReasonNoOpenPosition {
		t.Errorf("expected no-open-position rejection for ETH, got %+v", results["ETH"])
	}

	if len(h.core.GetOpenPositions("")) != 0 {
		t.Error("expected flat account after close")
	}

	recs := h.journal.records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 journal record, got %d", len(recs))
	}
	if recs[0].Symbol != "BTC" || recs[0].Side != "long" || recs[0].AutoTrigger != "" {
		t.Errorf("unexpected journal record: %+v", recs[0])
	}
	approx(t, recs[0].EntryPrice, 110, 1e-9, "entry price")
	approx(t, recs[0].ExitPrice, 110, 1e-9, "exit price")
}

func TestClosePositions_EmptyListClosesAll(t *testing.T) {
	h := newHarness(t, 10000)
	h.setBook("BTC", testutil.Book(100, 10, 100, 10))
	h.setBook("ETH", testutil.Book(50, 10, 50, 10))

	for _, sym := range []string{"BTC", "ETH"} {
		_, err := h.core.PlaceOrder(context.Background(), "", &types.OrderRequest{
			Symbol: sym, Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 1,
		})
		if err != nil {
			t.Fatalf("open %s failed: %v", sym, err)
		}
	}

	results, err := h.core.ClosePositions(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if len(h.core.GetOpenPositions("")) != 0 {
		t.Error("expected flat account")
	}
}

func TestResetAccount(t *testing.T) {
	h := newHarness(t, 1000)
	h.setBook("BTC", testutil.Book(100, 10, 100, 10))

	_, err := h.core.PlaceOrder(context.Background(), "", &types.OrderRequest{
		Symbol: "BTC", Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 2,
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	h.core.mu.Lock()
	h.core.pendingClose[pendingKey(types.DefaultAccountID, "BTC")] = types.TriggerStop
	h.core.mu.Unlock()

	snap, err := h.core.ResetAccount("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	approx(t, snap.CashBalance, 1000, 1e-9, "restored capital")
	if len(snap.Positions) != 0 {
		t.Error("expected no positions after reset")
	}

	h.core.mu.Lock()
	pending := len(h.core.pendingClose)
	h.core.mu.Unlock()
	if pending != 0 {
		t.Error("expected pending auto-closes purged")
	}
}

func TestSetExitPlan(t *testing.T) {
	h := newHarness(t, 1000)
	h.setBook("BTC", testutil.Book(100, 10, 100, 10))

	var accountEvents int
	h.bus.Subscribe(events.KindAccount, func(events.Event) { accountEvents = accountEvents + 1 })

	// No position yet: silent no-op, no event.
	snap, err := h.core.SetExitPlan("", "BTC", &types.ExitPlan{Stop: testutil.Ptr(90.0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Positions) != 0 || accountEvents != 0 {
		t.Error("expected silent no-op without a position")
	}

	_, err = h.core.PlaceOrder(context.Background(), "", &types.OrderRequest{
		Symbol: "BTC", Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 1,
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	eventsBefore := accountEvents

	snap, err = h.core.SetExitPlan("", "BTC", &types.ExitPlan{
		Stop:   testutil.Ptr(90.0),
		Target: testutil.Ptr(120.0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accountEvents != eventsBefore+1 {
		t.Error("expected account event after plan update")
	}
	plan := snap.Positions[0].ExitPlan
	if plan == nil || *plan.Stop != 90 || *plan.Target != 120 {
		t.Errorf("plan not stored: %+v", plan)
	}
}

func TestGetOrderBook(t *testing.T) {
	h := newHarness(t, 1000)
	h.setBook("BTC", testutil.Book(99, 1, 101, 1))

	snap, err := h.core.GetOrderBook("BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	approx(t, snap.MidPrice(), 100, 1e-9, "mid price")

	_, err = h.core.GetOrderBook("SHIB")
	if err != types.ErrUnknownMarket {
		t.Errorf("expected unknown-market error, got %v", err)
	}
}
