package queue

import (
	"sort"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradeengine/src/model"
)

const defaultStrategyWeight = 50

// Config bounds the pending set. TTL doubles as the deduplication window:
// two equal signals inside the window are the same trade idea.
type Config struct {
	DedupWindow         time.Duration
	TTL                 time.Duration
	MaxSignalsPerSymbol int
}

func DefaultConfig() Config {
	return Config{
		DedupWindow:         5 * time.Minute,
		TTL:                 5 * time.Minute,
		MaxSignalsPerSymbol: 1,
	}
}

// Queue holds pending trade ideas, deduplicates them and serves them in
// priority order. All state lives behind one mutex; the queue does no I/O.
type Queue struct {
	mu            sync.Mutex
	cfg           Config
	weights       map[string]float64 // strategy name -> priority weight
	pending       []*model.Signal
	history       []*model.Signal
	activeSymbols map[string]int // symbol -> pending signal count
	now           func() time.Time
}

func New(cfg Config, weights map[string]float64) *Queue {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultConfig().DedupWindow
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.MaxSignalsPerSymbol <= 0 {
		cfg.MaxSignalsPerSymbol = DefaultConfig().MaxSignalsPerSymbol
	}
	if weights == nil {
		weights = map[string]float64{}
	}

	return &Queue{
		cfg:           cfg,
		weights:       weights,
		activeSymbols: map[string]int{},
		now:           time.Now,
	}
}

// Push adds a signal to the pending set. It returns false, with no side
// effect, for duplicates (same symbol and direction inside the dedup window)
// and for symbols that already carry the maximum number of pending signals.
func (q *Queue) Push(sig *model.Signal) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.isDuplicateLocked(sig) {
		logger.WithFields(map[string]interface{}{
			"symbol":    sig.Symbol,
			"direction": sig.Direction,
		}).Debug("duplicate signal rejected")
		return false
	}

	if q.activeSymbols[sig.Symbol] >= q.cfg.MaxSignalsPerSymbol {
		logger.WithField("symbol", sig.Symbol).Debug("max pending signals reached for symbol")
		return false
	}

	sig.PriorityScore = q.priorityScore(sig)
	q.pending = append(q.pending, sig)
	q.activeSymbols[sig.Symbol]++

	logger.WithFields(map[string]interface{}{
		"signal_id": sig.ID,
		"strategy":  sig.StrategySource,
		"symbol":    sig.Symbol,
		"direction": sig.Direction,
		"entry":     sig.EntryPrice,
		"score":     sig.PriorityScore,
	}).Info("signal queued")

	return true
}

// PopHighestPriority evicts expired signals, then returns the pending signal
// with the highest priority score (ties broken by earliest creation). The
// signal stays in the pending set and keeps its symbol slot until the caller
// sets a terminal status via MarkTerminal.
func (q *Queue) PopHighestPriority() *model.Signal {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.evictExpiredLocked()

	var best *model.Signal
	for _, s := range q.pending {
		if best == nil {
			best = s
			continue
		}
		if s.PriorityScore > best.PriorityScore ||
			(s.PriorityScore == best.PriorityScore && s.CreatedAt.Before(best.CreatedAt)) {
			best = s
		}
	}
	return best
}

// MarkTerminal finalizes a signal: sets the status, moves it to history and
// releases the symbol's slot when no other pending signal references it.
// APPROVED counts as final here (notify-only and manual-confirm never
// execute); PENDING is ignored.
func (q *Queue) MarkTerminal(id string, status model.SignalStatus) {
	if status == model.SignalStatusPending {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i, s := range q.pending {
		if s.ID != id {
			continue
		}
		s.Status = status
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		q.history = append(q.history, s)
		q.releaseSymbolLocked(s.Symbol)

		logger.WithFields(map[string]interface{}{
			"signal_id": id,
			"status":    status,
		}).Info("signal finalized")
		return
	}
}

// HasActiveSignal reports whether the symbol has a pending signal.
func (q *Queue) HasActiveSignal(symbol string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeSymbols[symbol] > 0
}

// Pending returns a snapshot of the pending set sorted by priority.
func (q *Queue) Pending() []model.Signal {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.evictExpiredLocked()

	out := make([]model.Signal, 0, len(q.pending))
	for _, s := range q.pending {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type Stats struct {
	PendingCount   int      `json:"pending_count"`
	ProcessedCount int      `json:"processed_count"`
	ActiveSymbols  []string `json:"active_symbols"`
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	symbols := make([]string, 0, len(q.activeSymbols))
	for sym := range q.activeSymbols {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	return Stats{
		PendingCount:   len(q.pending),
		ProcessedCount: len(q.history),
		ActiveSymbols:  symbols,
	}
}

func (q *Queue) isDuplicateLocked(sig *model.Signal) bool {
	cutoff := q.now().Add(-q.cfg.DedupWindow)
	for _, s := range q.pending {
		if s.Symbol == sig.Symbol && s.Direction == sig.Direction && s.CreatedAt.After(cutoff) {
			return true
		}
	}
	return false
}

func (q *Queue) evictExpiredLocked() {
	cutoff := q.now().Add(-q.cfg.TTL)

	kept := q.pending[:0]
	for _, s := range q.pending {
		if s.CreatedAt.Before(cutoff) {
			s.Status = model.SignalStatusExpired
			q.history = append(q.history, s)
			q.releaseSymbolLocked(s.Symbol)
			logger.WithField("signal_id", s.ID).Debug("signal expired")
			continue
		}
		kept = append(kept, s)
	}
	q.pending = kept
}

func (q *Queue) releaseSymbolLocked(symbol string) {
	if n := q.activeSymbols[symbol]; n > 1 {
		q.activeSymbols[symbol] = n - 1
	} else {
		delete(q.activeSymbols, symbol)
	}
}

// priorityScore combines the strategy weight, the signal's own confidence
// and a capped risk:reward bonus into a single deterministic ordering key.
// The exact weighting is tunable policy; only the total order matters.
func (q *Queue) priorityScore(sig *model.Signal) float64 {
	weight, ok := q.weights[sig.StrategySource]
	if !ok {
		weight = defaultStrategyWeight
	}

	rrBonus := sig.RiskRewardRatio() * 5
	if rrBonus > 10 {
		rrBonus = 10
	}

	score := weight*0.3 + sig.Confidence*0.5 + rrBonus*0.2*10
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
