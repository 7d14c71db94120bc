package strategy

import (
	"context"

	"tradeengine/src/model"
)

// Source is a signal producer. Implementations scan their market view on
// demand and return at most one actionable signal per call; nil with a nil
// error means nothing to trade right now.
type Source interface {
	Name() string
	Weight() float64
	ProduceSignal(ctx context.Context) (*model.Signal, error)
}

// Weights collects the per-strategy priority weights for queue scoring.
func Weights(sources []Source) map[string]float64 {
	out := make(map[string]float64, len(sources))
	for _, s := range sources {
		out[s.Name()] = s.Weight()
	}
	return out
}
