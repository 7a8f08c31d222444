// Package model defines domain types used by the service.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingField is returned by Validate when a required key is absent.
var ErrMissingField = errors.New("missing field")

// Item is a stock item nested inside a Warehouse.
type Item struct {
	ID   json.RawMessage `json:"id"`
	Name json.RawMessage `json:"name"`
}

// Warehouse is a request-scoped warehouse with the items to predict for.
type Warehouse struct {
	ID    json.RawMessage `json:"id"`
	Name  json.RawMessage `json:"name"`
	Items []Item          `json:"items"`
}

// PredictionRequest is the body of a festival demand prediction call.
type PredictionRequest struct {
	Festival   string      `json:"festival"`
	Warehouses []Warehouse `json:"warehouses"`
}

// Validate reports the first warehouse or item missing an id or name.
func (r PredictionRequest) Validate() error {
	for i, w := range r.Warehouses {
		if isAbsent(w.ID) {
			return fmt.Errorf("warehouses[%d].id: %w", i, ErrMissingField)
		}
		if isAbsent(w.Name) {
			return fmt.Errorf("warehouses[%d].name: %w", i, ErrMissingField)
		}
		for j, it := range w.Items {
			if isAbsent(it.ID) {
				return fmt.Errorf("warehouses[%d].items[%d].id: %w", i, j, ErrMissingField)
			}
			if isAbsent(it.Name) {
				return fmt.Errorf("warehouses[%d].items[%d].name: %w", i, j, ErrMissingField)
			}
		}
	}
	return nil
}

func isAbsent(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

// ItemPrediction is the predicted demand for one item.
type ItemPrediction struct {
	ItemID          json.RawMessage `json:"itemId"`
	ItemName        json.RawMessage `json:"itemName"`
	PredictedDemand int             `json:"predictedDemand"`
}

// PredictionResult mirrors one input warehouse with per-item predictions.
type PredictionResult struct {
	WarehouseID   json.RawMessage  `json:"warehouseId"`
	WarehouseName json.RawMessage  `json:"warehouseName"`
	Festival      string           `json:"festival"`
	Items         []ItemPrediction `json:"items"`
}
