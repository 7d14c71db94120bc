package engine

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	logger "github.com/sirupsen/logrus"

	"tradeengine/src/broker"
	"tradeengine/src/database"
	"tradeengine/src/executor"
	"tradeengine/src/journal"
	"tradeengine/src/ledger"
	"tradeengine/src/notify"
	"tradeengine/src/queue"
	"tradeengine/src/risk"
	"tradeengine/src/server"
	"tradeengine/src/strategy"
)

// Engine wires the queue, risk gate, coordinator, ledger and operator API
// together and runs them until interrupted.
type Engine struct {
	Sources []strategy.Source
}

func (e *Engine) Start() error {
	cfg := executor.GetConfig()

	mode, err := executor.ParseMode(cfg.Mode)
	if err != nil {
		logger.WithError(err).Error("invalid execution mode")
		return err
	}

	dbCfg := database.GetConfig()
	if dbCfg.EnableDB {
		if err := database.InitDB(); err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
	}

	notifier := notify.NewTelegramNotifier(notify.GetConfig())

	adapter := buildAdapter(mode, cfg)
	jrnl := journal.New()

	led := ledger.New(adapter, nil, jrnl, notifier)
	gate := risk.NewGate(risk.GetLimits(), led)
	led.BindRiskReporter(gate)

	q := queue.New(queue.DefaultConfig(), strategy.Weights(e.Sources))
	coord := executor.NewCoordinator(mode, adapter, led, gate, jrnl, notifier, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithField("mode", mode).Info("engine starting")
	notifier.NotifyStatus("engine starting in " + mode.String() + " mode")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		executor.StartAdmissionLoop(ctx, cfg.AdmissionPeriod, q, gate, adapter, coord, cfg.BrokerTimeout)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		executor.StartReconcileLoop(ctx, cfg.ReconcilePeriod, led)
	}()

	if len(e.Sources) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			executor.StartStrategyLoop(ctx, cfg.StrategyPeriod, q, e.Sources)
		}()
	}

	server.StartServer(ctx, server.GetConfig().Port, server.Deps{
		Queue: q,
		Book:  led,
		Gate:  gate,
	})

	wg.Wait()
	notifier.NotifyStatus("engine stopped: " + gate.Summary())
	logger.Info("engine stopped")
	return nil
}

// buildAdapter picks the broker backing for the mode: live talks to the REST
// gateway, everything else fills against the paper book.
func buildAdapter(mode executor.Mode, cfg executor.Config) broker.Adapter {
	if mode == executor.ModeLive {
		return broker.NewRESTConnector(cfg.BrokerAPIKey, cfg.BrokerAPISecret, cfg.BrokerBaseURL, cfg.BrokerTimeout)
	}
	return broker.NewPaperAdapter(risk.GetLimits().Capital)
}
