package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fairyhunter13/festival-restock-service/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func raw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func warehouses(nw, ni int, itemName string) []model.Warehouse {
	out := make([]model.Warehouse, nw)
	for i := range out {
		out[i] = model.Warehouse{ID: raw(fmt.Sprintf("W%d", i)), Name: raw(fmt.Sprintf("Warehouse %d", i))}
		for j := 0; j < ni; j++ {
			out[i].Items = append(out[i].Items, model.Item{ID: raw(j), Name: raw(itemName)})
		}
	}
	return out
}

func TestProvidersStayInRangeAndKeepOrder(t *testing.T) {
	for _, kind := range []string{"random", "festival"} {
		t.Run(kind, func(t *testing.T) {
			p, err := New(kind, 42)
			require.NoError(t, err)
			assert.Equal(t, kind, p.Name())
			in := warehouses(5, 40, "Gift Items")
			out, err := p.Predict(context.Background(), "Diwali", in)
			require.NoError(t, err)
			require.Len(t, out, len(in))
			for i, w := range out {
				assert.Equal(t, string(in[i].ID), string(w.WarehouseID))
				assert.Equal(t, string(in[i].Name), string(w.WarehouseName))
				assert.Equal(t, "Diwali", w.Festival)
				require.Len(t, w.Items, len(in[i].Items))
				for j, it := range w.Items {
					assert.Equal(t, string(in[i].Items[j].ID), string(it.ItemID))
					assert.GreaterOrEqual(t, it.PredictedDemand, MinDemand)
					assert.LessOrEqual(t, it.PredictedDemand, MaxDemand)
				}
			}
		})
	}
}

func TestRandomCoversBounds(t *testing.T) {
	r := NewRandom(1)
	seenMin, seenMax := false, false
	for i := 0; i < 200000 && !(seenMin && seenMax); i++ {
		switch r.draw() {
		case MinDemand:
			seenMin = true
		case MaxDemand:
			seenMax = true
		}
	}
	assert.True(t, seenMin, "never drew the lower bound")
	assert.True(t, seenMax, "never drew the upper bound")
}

func TestRandomSeedIsDeterministic(t *testing.T) {
	in := warehouses(2, 10, "Rice - 25kg")
	a, err := NewRandom(9).Predict(context.Background(), "", in)
	require.NoError(t, err)
	b, err := NewRandom(9).Predict(context.Background(), "", in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmptyItemsAreEmptyArrays(t *testing.T) {
	out, err := NewRandom(3).Predict(context.Background(), "Holi", []model.Warehouse{{ID: raw("W"), Name: raw("W")}})
	require.NoError(t, err)
	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"warehouseId":"W","warehouseName":"W","festival":"Holi","items":[]}]`, string(b))
}

func TestFestivalBoostsMatchingItems(t *testing.T) {
	const n = 400
	boosted, err := NewFestival(5).Predict(context.Background(), "diwali", warehouses(1, n, "Gift Items"))
	require.NoError(t, err)
	plain, err := NewFestival(5).Predict(context.Background(), "diwali", warehouses(1, n, "Rice - 25kg"))
	require.NoError(t, err)
	var sb, sp int
	for j := 0; j < n; j++ {
		sb += boosted[0].Items[j].PredictedDemand
		sp += plain[0].Items[j].PredictedDemand
		assert.GreaterOrEqual(t, boosted[0].Items[j].PredictedDemand, plain[0].Items[j].PredictedDemand)
	}
	assert.Greater(t, sb, sp)
}

func TestBoost(t *testing.T) {
	d := festivalBoosts["diwali"]
	assert.Equal(t, 3.0, Boost(d, raw(" GIFT ITEMS ")))
	assert.Equal(t, 1.0, Boost(d, raw("Rice")))
	assert.Equal(t, 1.0, Boost(d, raw(12)))
	assert.Equal(t, 1.0, Boost(nil, raw("Gift Items")))
}

func TestUnknownProvider(t *testing.T) {
	_, err := New("oracle", 0)
	assert.ErrorContains(t, err, "unknown predictor")
}

func TestPredictHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRandom(1).Predict(ctx, "", warehouses(1, 1, "x"))
	assert.ErrorIs(t, err, context.Canceled)
}
