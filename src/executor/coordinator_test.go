package executor

import (
	"context"
	"testing"
	"time"

	"tradeengine/src/broker"
	"tradeengine/src/model"
)

// fakeBroker records placements and reports every placed order with the
// configured status, so fills can be simulated without timing games.
type fakeBroker struct {
	states    map[string]broker.OrderState
	placed    []broker.OrderRequest
	cancelled []string

	entryErr error
	stopErr  error

	statusOnPlace model.OrderStatus
	fillPrice     float64
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{states: map[string]broker.OrderState{}}
}

func (f *fakeBroker) PlaceOrder(_ context.Context, req broker.OrderRequest) (string, error) {
	if req.Type == broker.OrderTypeStop && f.stopErr != nil {
		return "", f.stopErr
	}
	if req.Type == broker.OrderTypeLimit && f.entryErr != nil && len(f.placed) == 0 {
		return "", f.entryErr
	}

	f.placed = append(f.placed, req)
	id := "EX-" + req.ClientOrderID

	if f.statusOnPlace != "" {
		st := broker.OrderState{OrderID: id, Status: f.statusOnPlace}
		if f.statusOnPlace == model.OrderStatusFilled {
			now := time.Now().UTC()
			st.FilledPrice = f.fillPrice
			st.FilledAt = &now
		}
		f.states[id] = st
	}
	return id, nil
}

func (f *fakeBroker) CancelOrder(_ context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeBroker) GetOrderStatus(_ context.Context, orderID string) (broker.OrderState, error) {
	st, ok := f.states[orderID]
	if !ok {
		return broker.OrderState{}, broker.ErrOrderNotFound
	}
	return st, nil
}

func (f *fakeBroker) GetAvailableFunds(_ context.Context) (float64, error) {
	return 10000, nil
}

type fakeTracker struct {
	tracked []*model.Position
	open    map[string]bool
}

func (f *fakeTracker) Track(pos *model.Position) error {
	f.tracked = append(f.tracked, pos)
	return nil
}

func (f *fakeTracker) HasOpenPosition(symbol string) bool {
	return f.open[symbol]
}

type fakeRisk struct {
	approvals []string
}

func (f *fakeRisk) RecordApproval(symbol string) {
	f.approvals = append(f.approvals, symbol)
}

type fakeJournal struct {
	entries int
}

func (f *fakeJournal) RecordEntry(_ context.Context, _ *model.Position, _ string) {
	f.entries++
}

type fakeNotifier struct {
	signals  int
	entries  int
	exits    int
	errors   []string
	statuses []string
}

func (f *fakeNotifier) NotifySignal(_ *model.Signal) { f.signals++ }

func (f *fakeNotifier) NotifyEntry(_ *model.Position) { f.entries++ }

func (f *fakeNotifier) NotifyExit(_ *model.Position) { f.exits++ }

func (f *fakeNotifier) NotifyError(scope string, _ error) {
	f.errors = append(f.errors, scope)
}
func (f *fakeNotifier) NotifyStatus(msg string) { f.statuses = append(f.statuses, msg) }

func testConfig() Config {
	return Config{
		BrokerTimeout:    time.Second,
		FillPollAttempts: 2,
		FillPollDelay:    time.Millisecond,
	}
}

func testSignal() *model.Signal {
	return &model.Signal{
		ID:                "breakout_RELIANCE_20250602100000",
		StrategySource:    "breakout",
		Symbol:            "RELIANCE",
		Direction:         model.DirectionLong,
		EntryPrice:        100,
		StopPrice:         98,
		TargetPrice:       106,
		RequestedQuantity: 50,
		Confidence:        80,
		CreatedAt:         time.Now().UTC(),
		Status:            model.SignalStatusPending,
	}
}

func newTestCoordinator(mode Mode, b broker.Adapter) (*Coordinator, *fakeTracker, *fakeRisk, *fakeJournal, *fakeNotifier) {
	tracker := &fakeTracker{open: map[string]bool{}}
	riskRec := &fakeRisk{}
	jrnl := &fakeJournal{}
	notif := &fakeNotifier{}
	c := NewCoordinator(mode, b, tracker, riskRec, jrnl, notif, testConfig())
	return c, tracker, riskRec, jrnl, notif
}

func TestSimulateModeTracksSyntheticFill(t *testing.T) {
	b := newFakeBroker()
	c, tracker, riskRec, jrnl, notif := newTestCoordinator(ModeSimulate, b)

	status := c.Execute(context.Background(), testSignal(), 50)
	if status != model.SignalStatusExecuted {
		t.Fatalf("expected EXECUTED, got %s", status)
	}

	if len(tracker.tracked) != 1 {
		t.Fatalf("expected 1 tracked position, got %d", len(tracker.tracked))
	}
	pos := tracker.tracked[0]
	if pos.EntryOrder.Status != model.OrderStatusFilled || pos.EntryPrice != 100 {
		t.Fatalf("synthetic entry should be filled at the signal price, got %+v", pos.EntryOrder)
	}
	if pos.StopOrder.Status != model.OrderStatusPlaced || pos.TargetOrder.Status != model.OrderStatusPlaced {
		t.Fatal("protective orders should be live even in simulation")
	}
	// only the bracket hits the broker, never the entry
	if len(b.placed) != 2 {
		t.Fatalf("expected 2 broker placements, got %d", len(b.placed))
	}
	if len(riskRec.approvals) != 1 || jrnl.entries != 1 || notif.entries != 1 {
		t.Fatal("approval, journal entry and notification are all expected")
	}
}

func TestNotifyOnlyModePlacesNothing(t *testing.T) {
	b := newFakeBroker()
	c, tracker, riskRec, _, notif := newTestCoordinator(ModeNotifyOnly, b)

	status := c.Execute(context.Background(), testSignal(), 50)
	if status != model.SignalStatusApproved {
		t.Fatalf("expected APPROVED, got %s", status)
	}
	if len(b.placed) != 0 || len(tracker.tracked) != 0 || len(riskRec.approvals) != 0 {
		t.Fatal("notify-only must not touch broker, ledger or risk state")
	}
	if notif.signals != 1 {
		t.Fatalf("expected 1 signal notification, got %d", notif.signals)
	}
}

func TestManualConfirmModeStagesOrder(t *testing.T) {
	b := newFakeBroker()
	c, tracker, _, _, notif := newTestCoordinator(ModeManualConfirm, b)

	status := c.Execute(context.Background(), testSignal(), 40)
	if status != model.SignalStatusApproved {
		t.Fatalf("expected APPROVED, got %s", status)
	}
	if len(b.placed) != 0 || len(tracker.tracked) != 0 {
		t.Fatal("manual-confirm must not place or track anything")
	}

	staged := c.StagedOrders()
	if len(staged) != 1 {
		t.Fatalf("expected 1 staged order, got %d", len(staged))
	}
	if staged[0].Symbol != "RELIANCE" || staged[0].Quantity != 40 || staged[0].Side != model.OrderSideBuy {
		t.Fatalf("unexpected staged order: %+v", staged[0])
	}
	if notif.signals != 1 {
		t.Fatalf("expected 1 signal notification, got %d", notif.signals)
	}
}

func TestLiveModeFillsAndPlacesBracket(t *testing.T) {
	b := newFakeBroker()
	b.statusOnPlace = model.OrderStatusFilled
	b.fillPrice = 100.5
	c, tracker, riskRec, _, _ := newTestCoordinator(ModeLive, b)

	status := c.Execute(context.Background(), testSignal(), 50)
	if status != model.SignalStatusExecuted {
		t.Fatalf("expected EXECUTED, got %s", status)
	}

	if len(tracker.tracked) != 1 {
		t.Fatalf("expected 1 tracked position, got %d", len(tracker.tracked))
	}
	pos := tracker.tracked[0]
	if pos.EntryPrice != 100.5 {
		t.Fatalf("position should carry the fill price, got %f", pos.EntryPrice)
	}
	if pos.StopOrder.OrderID == "" || pos.TargetOrder.OrderID == "" {
		t.Fatal("bracket orders should be placed")
	}
	if len(riskRec.approvals) != 1 {
		t.Fatalf("expected 1 approval, got %d", len(riskRec.approvals))
	}
	// entry + stop + target
	if len(b.placed) != 3 {
		t.Fatalf("expected 3 placements, got %d", len(b.placed))
	}
}

func TestLiveModeRejectedEntry(t *testing.T) {
	b := newFakeBroker()
	b.entryErr = broker.ErrOrderRejected
	c, tracker, riskRec, _, notif := newTestCoordinator(ModeLive, b)

	status := c.Execute(context.Background(), testSignal(), 50)
	if status != model.SignalStatusRejected {
		t.Fatalf("expected REJECTED, got %s", status)
	}
	if len(tracker.tracked) != 0 || len(riskRec.approvals) != 0 {
		t.Fatal("a rejected entry must not open a position or reserve capacity")
	}
	if len(notif.errors) != 1 {
		t.Fatalf("expected an error notification, got %v", notif.errors)
	}
}

func TestLiveModeUnfilledEntryIsCancelled(t *testing.T) {
	b := newFakeBroker()
	b.statusOnPlace = model.OrderStatusPlaced // rests forever
	c, tracker, _, _, _ := newTestCoordinator(ModeLive, b)

	status := c.Execute(context.Background(), testSignal(), 50)
	if status != model.SignalStatusRejected {
		t.Fatalf("expected REJECTED for an unfilled entry, got %s", status)
	}
	if len(tracker.tracked) != 0 {
		t.Fatal("unfilled entry must not open a position")
	}
	if len(b.cancelled) != 1 {
		t.Fatalf("resting entry should be withdrawn, got cancels %v", b.cancelled)
	}
}

func TestLiveModeSkipsWhenPositionAlreadyOpen(t *testing.T) {
	b := newFakeBroker()
	c, tracker, _, _, _ := newTestCoordinator(ModeLive, b)
	tracker.open["RELIANCE"] = true

	status := c.Execute(context.Background(), testSignal(), 50)
	if status != model.SignalStatusRejected {
		t.Fatalf("expected REJECTED, got %s", status)
	}
	if len(b.placed) != 0 {
		t.Fatal("no order may be placed when the symbol already has a position")
	}
}

func TestLiveModeProtectiveFailureStillTracks(t *testing.T) {
	b := newFakeBroker()
	b.statusOnPlace = model.OrderStatusFilled
	b.fillPrice = 100
	b.stopErr = broker.ErrOrderRejected
	c, tracker, _, _, notif := newTestCoordinator(ModeLive, b)

	status := c.Execute(context.Background(), testSignal(), 50)
	if status != model.SignalStatusExecuted {
		t.Fatalf("a failed protective must not undo the filled entry, got %s", status)
	}
	if len(tracker.tracked) != 1 {
		t.Fatal("position must be tracked so reconciliation can repair the bracket")
	}
	pos := tracker.tracked[0]
	if pos.StopOrder.Status != model.OrderStatusPending {
		t.Fatalf("failed stop should stay PENDING for re-placement, got %s", pos.StopOrder.Status)
	}
	if pos.TargetOrder.Status != model.OrderStatusPlaced {
		t.Fatalf("target should be live, got %s", pos.TargetOrder.Status)
	}
	if len(notif.errors) == 0 {
		t.Fatal("an operator alert is expected for the unprotected side")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"simulate":       ModeSimulate,
		"paper":          ModeSimulate,
		"notify-only":    ModeNotifyOnly,
		"signal":         ModeNotifyOnly,
		"manual-confirm": ModeManualConfirm,
		"semi-auto":      ModeManualConfirm,
		"live":           ModeLive,
		"auto":           ModeLive,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("yolo"); err == nil {
		t.Fatal("unknown mode must error")
	}
}
