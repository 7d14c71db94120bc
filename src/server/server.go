package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradeengine/src/metrics"
)

// Deps carries the components the operator API exposes.
type Deps struct {
	Queue signalQueue
	Book  positionBook
	Gate  riskSummary
}

func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	r.Handle("/metrics", metrics.Handler())

	r.Post("/signals", InjectSignalHandler(deps.Queue))
	r.Get("/signals/pending", PendingSignalsHandler(deps.Queue))
	r.Get("/positions", OpenPositionsHandler(deps.Book))
	r.Get("/risk/summary", RiskSummaryHandler(deps.Gate))
	r.Post("/close-all", CloseAllHandler(deps.Book))

	return r
}

// StartServer serves the operator API until the context is cancelled, then
// shuts down gracefully.
func StartServer(ctx context.Context, port string, deps Deps) {
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: NewRouter(deps),
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
