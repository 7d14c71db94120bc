package executor

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradeengine/src/metrics"
	"tradeengine/src/model"
	"tradeengine/src/queue"
	"tradeengine/src/risk"
	"tradeengine/src/strategy"
)

type fundsSource interface {
	GetAvailableFunds(ctx context.Context) (float64, error)
}

type reconciler interface {
	Reconcile(ctx context.Context)
}

// StartAdmissionLoop drains the signal queue on a fixed period: rollover,
// pop the best pending signal, validate it against the risk gate and hand
// approvals to the coordinator. Runs until the context is cancelled.
func StartAdmissionLoop(
	ctx context.Context,
	period time.Duration,
	q *queue.Queue,
	gate *risk.Gate,
	funds fundsSource,
	coord *Coordinator,
	brokerTimeout time.Duration,
) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	logger.WithField("period", period).Info("admission loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("admission loop stopped")
			return

		case <-ticker.C:
			admitNext(ctx, q, gate, funds, coord, brokerTimeout)
		}
	}
}

func admitNext(
	ctx context.Context,
	q *queue.Queue,
	gate *risk.Gate,
	funds fundsSource,
	coord *Coordinator,
	brokerTimeout time.Duration,
) {
	gate.Rollover(time.Now())

	sig := q.PopHighestPriority()
	if sig == nil {
		return
	}

	fundsCtx, cancel := context.WithTimeout(ctx, brokerTimeout)
	available, err := funds.GetAvailableFunds(fundsCtx)
	cancel()
	if err != nil {
		// The signal keeps its slot; the next tick retries while the TTL
		// still allows it.
		logger.WithError(err).Warn("could not read available funds, deferring admission")
		return
	}

	decision := gate.Validate(sig, available)
	if !decision.Approved {
		q.MarkTerminal(sig.ID, model.SignalStatusRejected)
		metrics.IncSignal("rejected")
		logger.WithFields(map[string]interface{}{
			"signal_id": sig.ID,
			"symbol":    sig.Symbol,
			"reason":    decision.ReasonCode,
		}).Info("signal rejected by risk gate")
		return
	}

	status := coord.Execute(ctx, sig, decision.AdjustedQuantity)
	q.MarkTerminal(sig.ID, status)

	switch status {
	case model.SignalStatusExecuted:
		metrics.IncSignal("executed")
	case model.SignalStatusApproved:
		metrics.IncSignal("approved")
	default:
		metrics.IncSignal("rejected")
	}

	metrics.SetDailyPnl(gate.Snapshot().RealizedPnl)
}

// StartReconcileLoop polls the broker for exit fills on a fixed period.
func StartReconcileLoop(ctx context.Context, period time.Duration, rec reconciler) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	logger.WithField("period", period).Info("reconcile loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("reconcile loop stopped")
			return

		case <-ticker.C:
			rec.Reconcile(ctx)
		}
	}
}

// StartStrategyLoop asks every strategy source for a signal on a fixed
// period and feeds the queue. One failing source never blocks the others.
func StartStrategyLoop(ctx context.Context, period time.Duration, q *queue.Queue, sources []strategy.Source) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	logger.WithFields(map[string]interface{}{
		"period":  period,
		"sources": len(sources),
	}).Info("strategy loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("strategy loop stopped")
			return

		case <-ticker.C:
			for _, src := range sources {
				sig, err := src.ProduceSignal(ctx)
				if err != nil {
					logger.WithError(err).WithField("strategy", src.Name()).Warn("strategy scan failed")
					continue
				}
				if sig == nil {
					continue
				}
				q.Push(sig)
			}
		}
	}
}
