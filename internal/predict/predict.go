// Package predict computes festival demand predictions for warehouse items.
package predict

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/fairyhunter13/festival-restock-service/internal/model"
)

// Demand bounds, inclusive.
const (
	MinDemand = 100
	MaxDemand = 1000
)

// Provider predicts per-item demand for every warehouse.
type Provider interface {
	Name() string
	Predict(ctx context.Context, festival string, warehouses []model.Warehouse) ([]model.PredictionResult, error)
}

// New returns the provider registered under kind.
func New(kind string, seed uint64) (Provider, error) {
	switch kind {
	case "random", "":
		return NewRandom(seed), nil
	case "festival":
		return NewFestival(seed), nil
	}
	return nil, fmt.Errorf("unknown predictor %q", kind)
}

// Random draws demand uniformly from [MinDemand, MaxDemand] and ignores
// every input feature. It stands in for a trained model.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a Random provider. A zero seed seeds from the clock.
func NewRandom(seed uint64) *Random {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Random{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *Random) Name() string { return "random" }

func (r *Random) draw() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return MinDemand + r.rng.IntN(MaxDemand-MinDemand+1)
}

func (r *Random) Predict(ctx context.Context, festival string, warehouses []model.Warehouse) ([]model.PredictionResult, error) {
	return build(ctx, festival, warehouses, func(model.Item) int { return r.draw() })
}

// build mirrors warehouses and their items in input order.
func build(ctx context.Context, festival string, warehouses []model.Warehouse, demand func(model.Item) int) ([]model.PredictionResult, error) {
	out := make([]model.PredictionResult, 0, len(warehouses))
	for _, w := range warehouses {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items := make([]model.ItemPrediction, 0, len(w.Items))
		for _, it := range w.Items {
			items = append(items, model.ItemPrediction{
				ItemID:          it.ID,
				ItemName:        it.Name,
				PredictedDemand: demand(it),
			})
		}
		out = append(out, model.PredictionResult{
			WarehouseID:   w.ID,
			WarehouseName: w.Name,
			Festival:      festival,
			Items:         items,
		})
	}
	return out, nil
}

func clamp(v int) int {
	if v < MinDemand {
		return MinDemand
	}
	if v > MaxDemand {
		return MaxDemand
	}
	return v
}
