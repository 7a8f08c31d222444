// Package store persists restock requests.
//
// Records are addressed by their position in the stored array. The array is
// only ever appended to or patched in place, so positions are stable.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/fairyhunter13/festival-restock-service/internal/model"
)

// Store errors.
var (
	ErrNoRequests   = errors.New("no restock requests found")
	ErrInvalidData  = errors.New("invalid data")
	ErrInvalidIndex = errors.New("invalid index")
	ErrUnknownID    = errors.New("unknown restock request id")
)

// Store defines restock request persistence.
type Store interface {
	// Load returns every stored request in order. A missing or unreadable
	// backing array is reported as empty.
	Load(ctx context.Context) ([]model.RestockRequest, error)

	// Append stores rec as the new last element.
	Append(ctx context.Context, rec model.RestockRequest) error

	// PatchStatus overwrites the status field of the referenced request and
	// returns the updated record. status is only called once the backing
	// array has been read and ref resolved, so data and index errors win over
	// errors in the new status itself.
	PatchStatus(ctx context.Context, ref Ref, status StatusFunc) (model.RestockRequest, error)
}

// StatusFunc yields the status to write. A nil status keeps the record's
// current one, or sets it to null when the record has none.
type StatusFunc func() (json.RawMessage, error)

// Status returns a StatusFunc for a fixed value.
func Status(v json.RawMessage) StatusFunc {
	return func() (json.RawMessage, error) { return v, nil }
}

// Ref addresses one stored request, by position or by its string "id" field.
type Ref struct {
	Index int
	ID    string
	byID  bool
}

// IndexRef addresses the request at position i.
func IndexRef(i int) Ref { return Ref{Index: i} }

// IDRef addresses the first request whose "id" field equals id.
func IDRef(id string) Ref { return Ref{ID: id, byID: true} }

// ParseRef treats an integer as a position and anything else as an id.
func ParseRef(s string) Ref {
	if n, err := strconv.Atoi(s); err == nil {
		return IndexRef(n)
	}
	return IDRef(s)
}

// ByID reports whether the ref is an id lookup.
func (r Ref) ByID() bool { return r.byID }

func (r Ref) String() string {
	if r.byID {
		return "id=" + r.ID
	}
	return strconv.Itoa(r.Index)
}

// resolve returns the position ref points to in records.
func resolve(records []model.RestockRequest, ref Ref) (int, error) {
	if ref.byID {
		for i, rec := range records {
			if id, ok := rec.StringField("id"); ok && id == ref.ID {
				return i, nil
			}
		}
		return -1, fmt.Errorf("%s: %w", ref.ID, ErrUnknownID)
	}
	if ref.Index < 0 || ref.Index >= len(records) {
		return -1, fmt.Errorf("index %d not in [0,%d): %w", ref.Index, len(records), ErrInvalidIndex)
	}
	return ref.Index, nil
}

// applyStatus patches records[ref] in place and returns a copy of the result.
func applyStatus(records []model.RestockRequest, ref Ref, next StatusFunc) (model.RestockRequest, error) {
	i, err := resolve(records, ref)
	if err != nil {
		return model.RestockRequest{}, err
	}
	status, err := next()
	if err != nil {
		return model.RestockRequest{}, err
	}
	if !records[i].IsObject() {
		return model.RestockRequest{}, fmt.Errorf("request %s is not an object: %w", ref, ErrInvalidData)
	}
	if status == nil {
		if _, ok := records[i].Get(model.StatusKey); ok {
			return records[i].Clone(), nil
		}
		status = json.RawMessage("null")
	}
	if err := records[i].Set(model.StatusKey, status); err != nil {
		return model.RestockRequest{}, err
	}
	return records[i].Clone(), nil
}
