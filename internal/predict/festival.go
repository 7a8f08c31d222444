package predict

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/fairyhunter13/festival-restock-service/internal/model"
)

// festivalBoosts maps a festival name to per-item demand multipliers.
// Keys are lower-cased.
var festivalBoosts = map[string]map[string]float64{
	"diwali": {
		"gift items":          3.0,
		"sweets & candies":    2.5,
		"incense sticks":      2.0,
		"decorative items":    2.5,
		"traditional clothes": 1.8,
	},
	"holi": {
		"packaged snacks":        2.0,
		"cold beverages - 500ml": 1.8,
		"gift items":             1.5,
		"personal care kit":      1.3,
	},
	"ganesh chaturthi": {
		"gift items":               2.2,
		"sweets & candies":         2.0,
		"incense sticks":           1.8,
		"fresh vegetables - mixed": 1.5,
	},
	"raksha bandhan": {
		"gift items":          2.5,
		"sweets & candies":    2.0,
		"traditional clothes": 1.6,
		"packaged snacks":     1.4,
	},
	"eid-ul-fitr": {
		"traditional clothes":      2.2,
		"sweets & candies":         2.0,
		"gift items":               1.8,
		"fresh vegetables - mixed": 1.5,
	},
	"christmas": {
		"gift items":       2.8,
		"sweets & candies": 2.2,
		"decorative items": 2.0,
		"packaged snacks":  1.6,
	},
	"republic day": {
		"gift items":             1.3,
		"packaged snacks":        1.2,
		"cold beverages - 500ml": 1.1,
	},
	"independence day": {
		"gift items":             1.4,
		"packaged snacks":        1.3,
		"cold beverages - 500ml": 1.2,
	},
}

// Festival scales a uniform base draw by the item's boost for the named
// festival. Results are clamped to [MinDemand, MaxDemand].
type Festival struct {
	base *Random
}

// NewFestival returns a Festival provider. A zero seed seeds from the clock.
func NewFestival(seed uint64) *Festival {
	return &Festival{base: NewRandom(seed)}
}

func (f *Festival) Name() string { return "festival" }

func (f *Festival) Predict(ctx context.Context, festival string, warehouses []model.Warehouse) ([]model.PredictionResult, error) {
	boosts := festivalBoosts[strings.ToLower(strings.TrimSpace(festival))]
	return build(ctx, festival, warehouses, func(it model.Item) int {
		return clamp(int(math.Round(float64(f.base.draw()) * Boost(boosts, it.Name))))
	})
}

// Boost returns the multiplier for an item name, or 1 when none applies.
func Boost(boosts map[string]float64, name json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(name, &s); err != nil {
		return 1
	}
	if b, ok := boosts[strings.ToLower(strings.TrimSpace(s))]; ok {
		return b
	}
	return 1
}
