// Package queue serializes restock request mutations through a single writer.
//
// Appends and status patches are queued in arrival order and applied one at
// a time, so no two load-modify-store cycles ever interleave.
package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fairyhunter13/festival-restock-service/internal/config"
	"github.com/fairyhunter13/festival-restock-service/internal/model"
	"github.com/fairyhunter13/festival-restock-service/internal/obs"
	"github.com/fairyhunter13/festival-restock-service/internal/store"
)

// ErrShuttingDown is returned for mutations submitted after intake closed.
var ErrShuttingDown = errors.New("writer is shutting down")

// Kind names a mutation.
type Kind int

const (
	KindAppend Kind = iota
	KindPatchStatus
)

func (k Kind) String() string {
	switch k {
	case KindAppend:
		return "append"
	case KindPatchStatus:
		return "patch_status"
	}
	return "unknown"
}

// Op is one queued mutation.
type Op struct {
	Kind   Kind
	Seq    uint64
	Record model.RestockRequest
	Ref    store.Ref
	Status store.StatusFunc

	ctx   context.Context
	reply chan Result
}

// Result is what the writer reports back for an Op.
type Result struct {
	Record model.RestockRequest
	Err    error
}

// Writer applies queued mutations to a store from a single goroutine. It
// satisfies store.Store; reads go straight to the underlying store.
type Writer struct {
	cfg config.Config
	q   *Queue
	st  store.Store
	seq Sequencer

	cancel context.CancelFunc
	done   chan struct{}
}

var _ store.Store = (*Writer)(nil)

// NewWriter constructs a Writer over the given queue and store.
func NewWriter(cfg config.Config, q *Queue, st store.Store) *Writer {
	return &Writer{cfg: cfg, q: q, st: st, done: make(chan struct{})}
}

// Start begins brokering and applying mutations in the background.
func (w *Writer) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.q.Start(ctx, w.cfg.QueueHighWatermark)
	go w.worker(ctx)
}

// Stop cancels the background routines and waits for the worker to exit.
// Ops still queued are abandoned; call DrainUntil first to flush them.
func (w *Writer) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *Writer) worker(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-w.q.Out():
			op.reply <- w.apply(op)
			w.q.MarkProcessed()
		}
	}
}

func (w *Writer) apply(op *Op) Result {
	// A caller that gave up before its turn gets nothing applied.
	if err := op.ctx.Err(); err != nil {
		obs.Logger.Info("op_skipped", zap.Uint64("seq", op.Seq), zap.Stringer("kind", op.Kind), zap.Error(err))
		return Result{Err: err}
	}
	// Once started, an op runs to completion.
	ctx := context.WithoutCancel(op.ctx)
	start := time.Now()
	var res Result
	switch op.Kind {
	case KindAppend:
		res.Err = w.st.Append(ctx, op.Record)
	case KindPatchStatus:
		res.Record, res.Err = w.st.PatchStatus(ctx, op.Ref, op.Status)
	default:
		res.Err = errors.New("unknown op kind")
	}
	fields := []zap.Field{
		zap.Uint64("seq", op.Seq),
		zap.Stringer("kind", op.Kind),
		zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
	}
	if op.Kind == KindPatchStatus {
		fields = append(fields, zap.Stringer("ref", op.Ref))
	}
	if res.Err != nil {
		obs.Logger.Warn("op_failed", append(fields, zap.Error(res.Err))...)
	} else {
		obs.Logger.Debug("op_applied", fields...)
	}
	return res
}

// submit queues op and waits for its result.
func (w *Writer) submit(ctx context.Context, op *Op) Result {
	op.Seq = w.seq.Next()
	op.ctx = ctx
	op.reply = make(chan Result, 1)
	if !w.q.Enqueue(op) {
		return Result{Err: ErrShuttingDown}
	}
	select {
	case res := <-op.reply:
		return res
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	case <-w.done:
		return Result{Err: ErrShuttingDown}
	}
}

// Load reads directly from the underlying store.
func (w *Writer) Load(ctx context.Context) ([]model.RestockRequest, error) {
	return w.st.Load(ctx)
}

// Append queues rec for appending and waits until it is persisted.
func (w *Writer) Append(ctx context.Context, rec model.RestockRequest) error {
	return w.submit(ctx, &Op{Kind: KindAppend, Record: rec}).Err
}

// PatchStatus queues a status patch and waits for the updated record.
func (w *Writer) PatchStatus(ctx context.Context, ref store.Ref, status store.StatusFunc) (model.RestockRequest, error) {
	res := w.submit(ctx, &Op{Kind: KindPatchStatus, Ref: ref, Status: status})
	return res.Record, res.Err
}

// BacklogSize returns pending ops in the queue.
func (w *Writer) BacklogSize() int { return w.q.BacklogSize() }

// QueueDepth returns backlog plus buffered output ops.
func (w *Writer) QueueDepth() int { return w.q.QueueDepth() }

// IsShuttingDown reports whether new mutations are rejected.
func (w *Writer) IsShuttingDown() bool { return w.q.IsShuttingDown() }

// CloseIntake disallows future mutations.
func (w *Writer) CloseIntake() { w.q.CloseIntake() }

// QueueMetrics exposes the underlying queue metrics.
func (w *Writer) QueueMetrics() (enq, proc uint64, backlog, depth int) {
	return w.q.Metrics()
}

// DrainUntil blocks until every queued op is applied or ctx is done.
func (w *Writer) DrainUntil(ctx context.Context) bool {
	for {
		enq, proc, backlog, depth := w.q.Metrics()
		if backlog == 0 && depth == 0 && enq == proc {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
