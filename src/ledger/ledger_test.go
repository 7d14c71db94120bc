package ledger

import (
	"context"
	"testing"
	"time"

	"tradeengine/src/broker"
	"tradeengine/src/model"
)

type stubAdapter struct {
	states map[string]broker.OrderState

	placed    []broker.OrderRequest
	cancelled []string

	placeErr  error
	cancelErr error
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{states: map[string]broker.OrderState{}}
}

func (s *stubAdapter) PlaceOrder(_ context.Context, req broker.OrderRequest) (string, error) {
	if s.placeErr != nil {
		return "", s.placeErr
	}
	s.placed = append(s.placed, req)
	return "EX-" + req.ClientOrderID, nil
}

func (s *stubAdapter) CancelOrder(_ context.Context, orderID string) error {
	if s.cancelErr != nil {
		return s.cancelErr
	}
	s.cancelled = append(s.cancelled, orderID)
	if st, ok := s.states[orderID]; ok {
		st.Status = model.OrderStatusCancelled
		s.states[orderID] = st
	}
	return nil
}

func (s *stubAdapter) GetOrderStatus(_ context.Context, orderID string) (broker.OrderState, error) {
	st, ok := s.states[orderID]
	if !ok {
		return broker.OrderState{}, broker.ErrOrderNotFound
	}
	return st, nil
}

func (s *stubAdapter) GetAvailableFunds(_ context.Context) (float64, error) {
	return 10000, nil
}

type stubReporter struct {
	closures []float64
}

func (r *stubReporter) RecordClosure(_ string, pnl float64) {
	r.closures = append(r.closures, pnl)
}

func openPosition(symbol string) *model.Position {
	return &model.Position{
		Symbol:     symbol,
		SignalID:   "breakout_" + symbol + "_20250602100000",
		Direction:  model.DirectionLong,
		Quantity:   50,
		EntryPrice: 100,
		EntryOrder: &model.Order{
			OrderID: "E1", Role: model.OrderRoleEntry, Symbol: symbol,
			Side: model.OrderSideBuy, Quantity: 50, Price: 100,
			Status: model.OrderStatusFilled, FilledPrice: 100,
		},
		StopOrder: &model.Order{
			OrderID: "S1", Role: model.OrderRoleStop, Symbol: symbol,
			Side: model.OrderSideSell, Quantity: 50, Price: 98,
			Status: model.OrderStatusPlaced,
		},
		TargetOrder: &model.Order{
			OrderID: "T1", Role: model.OrderRoleTarget, Symbol: symbol,
			Side: model.OrderSideSell, Quantity: 50, Price: 106,
			Status: model.OrderStatusPlaced,
		},
		OpenedAt: time.Now().UTC(),
		Status:   model.PositionStatusOpen,
	}
}

func TestReconcileStopFillCancelsTarget(t *testing.T) {
	adapter := newStubAdapter()
	reporter := &stubReporter{}
	led := New(adapter, reporter, nil, nil)

	pos := openPosition("RELIANCE")
	if err := led.Track(pos); err != nil {
		t.Fatalf("track failed: %v", err)
	}

	filledAt := time.Now().UTC()
	adapter.states["S1"] = broker.OrderState{
		OrderID: "S1", Status: model.OrderStatusFilled, FilledPrice: 98, FilledAt: &filledAt,
	}
	adapter.states["T1"] = broker.OrderState{OrderID: "T1", Status: model.OrderStatusPlaced}

	led.Reconcile(context.Background())

	if led.HasOpenPosition("RELIANCE") {
		t.Fatal("position should be closed after the stop filled")
	}
	if len(adapter.cancelled) != 1 || adapter.cancelled[0] != "T1" {
		t.Fatalf("target should be cancelled, got %v", adapter.cancelled)
	}

	archived := led.Archived()
	if len(archived) != 1 {
		t.Fatalf("expected 1 archived position, got %d", len(archived))
	}
	got := archived[0]
	if got.CloseReason != model.CloseReasonStopLoss {
		t.Fatalf("expected close reason %q, got %q", model.CloseReasonStopLoss, got.CloseReason)
	}
	if got.RealizedPnl != -100 {
		t.Fatalf("expected pnl -100 ((98-100)*50), got %f", got.RealizedPnl)
	}
	if len(reporter.closures) != 1 || reporter.closures[0] != -100 {
		t.Fatalf("risk gate should see one closure of -100, got %v", reporter.closures)
	}
}

func TestReconcileTargetFillCancelsStop(t *testing.T) {
	adapter := newStubAdapter()
	led := New(adapter, &stubReporter{}, nil, nil)

	pos := openPosition("TCS")
	if err := led.Track(pos); err != nil {
		t.Fatalf("track failed: %v", err)
	}

	filledAt := time.Now().UTC()
	adapter.states["S1"] = broker.OrderState{OrderID: "S1", Status: model.OrderStatusPlaced}
	adapter.states["T1"] = broker.OrderState{
		OrderID: "T1", Status: model.OrderStatusFilled, FilledPrice: 106, FilledAt: &filledAt,
	}

	led.Reconcile(context.Background())

	archived := led.Archived()
	if len(archived) != 1 || archived[0].CloseReason != model.CloseReasonTarget {
		t.Fatalf("expected a target close, got %+v", archived)
	}
	if archived[0].RealizedPnl != 300 {
		t.Fatalf("expected pnl 300 ((106-100)*50), got %f", archived[0].RealizedPnl)
	}
	if len(adapter.cancelled) != 1 || adapter.cancelled[0] != "S1" {
		t.Fatalf("stop should be cancelled, got %v", adapter.cancelled)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	adapter := newStubAdapter()
	reporter := &stubReporter{}
	led := New(adapter, reporter, nil, nil)

	pos := openPosition("INFY")
	if err := led.Track(pos); err != nil {
		t.Fatalf("track failed: %v", err)
	}

	filledAt := time.Now().UTC()
	adapter.states["S1"] = broker.OrderState{
		OrderID: "S1", Status: model.OrderStatusFilled, FilledPrice: 98, FilledAt: &filledAt,
	}
	adapter.states["T1"] = broker.OrderState{OrderID: "T1", Status: model.OrderStatusPlaced}

	led.Reconcile(context.Background())
	led.Reconcile(context.Background())
	led.Reconcile(context.Background())

	if len(reporter.closures) != 1 {
		t.Fatalf("repeated passes must not duplicate closures, got %d", len(reporter.closures))
	}
	if len(led.Archived()) != 1 {
		t.Fatalf("expected exactly 1 archived position, got %d", len(led.Archived()))
	}
}

func TestReconcileBothFilledClosesAsAnomaly(t *testing.T) {
	adapter := newStubAdapter()
	led := New(adapter, &stubReporter{}, nil, nil)

	pos := openPosition("HDFC")
	if err := led.Track(pos); err != nil {
		t.Fatalf("track failed: %v", err)
	}

	stopAt := time.Now().UTC()
	targetAt := stopAt.Add(-time.Second) // target filled first
	adapter.states["S1"] = broker.OrderState{
		OrderID: "S1", Status: model.OrderStatusFilled, FilledPrice: 98, FilledAt: &stopAt,
	}
	adapter.states["T1"] = broker.OrderState{
		OrderID: "T1", Status: model.OrderStatusFilled, FilledPrice: 106, FilledAt: &targetAt,
	}

	led.Reconcile(context.Background())

	archived := led.Archived()
	if len(archived) != 1 {
		t.Fatalf("expected 1 archived position, got %d", len(archived))
	}
	got := archived[0]
	if !got.Anomaly || got.CloseReason != model.CloseReasonAnomaly {
		t.Fatalf("expected anomaly close, got %+v", got)
	}
	if got.RealizedPnl != 300 {
		t.Fatalf("anomaly should settle on the earlier fill price, got pnl %f", got.RealizedPnl)
	}
}

func TestReconcileBothCancelledClosesAsAnomaly(t *testing.T) {
	adapter := newStubAdapter()
	led := New(adapter, &stubReporter{}, nil, nil)

	pos := openPosition("WIPRO")
	if err := led.Track(pos); err != nil {
		t.Fatalf("track failed: %v", err)
	}

	adapter.states["S1"] = broker.OrderState{OrderID: "S1", Status: model.OrderStatusCancelled}
	adapter.states["T1"] = broker.OrderState{OrderID: "T1", Status: model.OrderStatusCancelled}

	led.Reconcile(context.Background())

	archived := led.Archived()
	if len(archived) != 1 || !archived[0].Anomaly {
		t.Fatalf("expected anomaly close, got %+v", archived)
	}
	if archived[0].CloseReason != model.CloseReasonCancelled {
		t.Fatalf("expected close reason %q, got %q", model.CloseReasonCancelled, archived[0].CloseReason)
	}
	if archived[0].RealizedPnl != 0 {
		t.Fatalf("no fill means no realized pnl, got %f", archived[0].RealizedPnl)
	}
}

func TestReconcileReplacesMissingProtective(t *testing.T) {
	adapter := newStubAdapter()
	led := New(adapter, &stubReporter{}, nil, nil)

	pos := openPosition("SBIN")
	pos.StopOrder.OrderID = ""
	pos.StopOrder.Status = model.OrderStatusPending
	pos.StopOrder.ClientOrderID = "stop-retry"
	if err := led.Track(pos); err != nil {
		t.Fatalf("track failed: %v", err)
	}

	adapter.states["T1"] = broker.OrderState{OrderID: "T1", Status: model.OrderStatusPlaced}

	led.Reconcile(context.Background())

	if len(adapter.placed) != 1 {
		t.Fatalf("expected the missing stop to be re-placed, got %d placements", len(adapter.placed))
	}
	placed := adapter.placed[0]
	if placed.Type != broker.OrderTypeStop || placed.Price != 98 {
		t.Fatalf("unexpected protective request: %+v", placed)
	}
	if pos.StopOrder.Status != model.OrderStatusPlaced || pos.StopOrder.OrderID == "" {
		t.Fatalf("stop order should be live after reconcile, got %+v", pos.StopOrder)
	}
	if !led.HasOpenPosition("SBIN") {
		t.Fatal("position must stay open while exits rest")
	}
}

func TestReconcileCancelFailureStillCloses(t *testing.T) {
	adapter := newStubAdapter()
	adapter.cancelErr = broker.ErrOrderNotFound
	led := New(adapter, &stubReporter{}, nil, nil)

	pos := openPosition("ITC")
	if err := led.Track(pos); err != nil {
		t.Fatalf("track failed: %v", err)
	}

	filledAt := time.Now().UTC()
	adapter.states["S1"] = broker.OrderState{
		OrderID: "S1", Status: model.OrderStatusFilled, FilledPrice: 98, FilledAt: &filledAt,
	}
	adapter.states["T1"] = broker.OrderState{OrderID: "T1", Status: model.OrderStatusPlaced}

	led.Reconcile(context.Background())

	if led.HasOpenPosition("ITC") {
		t.Fatal("a failed sibling cancel must not block the close")
	}
}

func TestTrackRejectsSecondPositionForSymbol(t *testing.T) {
	led := New(newStubAdapter(), &stubReporter{}, nil, nil)

	if err := led.Track(openPosition("RELIANCE")); err != nil {
		t.Fatalf("first track failed: %v", err)
	}
	if err := led.Track(openPosition("RELIANCE")); err == nil {
		t.Fatal("second open position for the same symbol must be rejected")
	}
}

func TestForceCloseAll(t *testing.T) {
	adapter := newStubAdapter()
	reporter := &stubReporter{}
	led := New(adapter, reporter, nil, nil)

	for _, sym := range []string{"RELIANCE", "TCS"} {
		if err := led.Track(openPosition(sym)); err != nil {
			t.Fatalf("track failed: %v", err)
		}
	}

	closed := led.ForceCloseAll(context.Background(), "session end")
	if closed != 2 {
		t.Fatalf("expected 2 closed, got %d", closed)
	}
	if led.OpenPositionCount() != 0 {
		t.Fatalf("expected empty book, got %d open", led.OpenPositionCount())
	}
	if len(reporter.closures) != 2 {
		t.Fatalf("expected 2 closure reports, got %d", len(reporter.closures))
	}
	for _, pos := range led.Archived() {
		if pos.CloseReason != model.CloseReasonForced {
			t.Fatalf("expected forced close reason, got %q", pos.CloseReason)
		}
	}
}
