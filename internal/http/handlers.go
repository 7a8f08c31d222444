package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fairyhunter13/festival-restock-service/internal/config"
	httpopenapi "github.com/fairyhunter13/festival-restock-service/internal/http/openapi"
	"github.com/fairyhunter13/festival-restock-service/internal/model"
	"github.com/fairyhunter13/festival-restock-service/internal/obs"
	"github.com/fairyhunter13/festival-restock-service/internal/predict"
	"github.com/fairyhunter13/festival-restock-service/internal/queue"
	"github.com/fairyhunter13/festival-restock-service/internal/store"
)

const maxBodyBytes = 1 << 20

var counters = expvar.NewMap("restock_service")

type App struct {
	Cfg       config.Config
	Restock   *queue.Writer
	Predictor predict.Provider
	closing   atomic.Bool
	started   time.Time
}

type ack struct {
	Message string `json:"message"`
}

func NewApp(cfg config.Config, w *queue.Writer, p predict.Provider) *App {
	return &App{Cfg: cfg, Restock: w, Predictor: p, started: time.Now()}
}

func (a *App) StartShutdown() {
	a.closing.Store(true)
	a.Restock.CloseIntake()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestError is a client error found while decoding a request body.
type requestError struct {
	status int
	code   string
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// jsonBody is a request body read in full but not yet checked or decoded.
type jsonBody struct {
	contentType string
	raw         []byte
	readErr     error
}

func readBody(w http.ResponseWriter, r *http.Request) jsonBody {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return jsonBody{contentType: r.Header.Get("Content-Type"), raw: raw, readErr: err}
}

// bytes enforces a JSON content type and returns the raw body.
func (b jsonBody) bytes() ([]byte, error) {
	if !strings.HasPrefix(strings.ToLower(b.contentType), "application/json") {
		return nil, &requestError{http.StatusUnsupportedMediaType, "unsupported_media_type", errors.New("expected application/json")}
	}
	if b.readErr != nil {
		var mbe *http.MaxBytesError
		if errors.As(b.readErr, &mbe) {
			return nil, &requestError{http.StatusRequestEntityTooLarge, "body_too_large", b.readErr}
		}
		return nil, &requestError{http.StatusBadRequest, "invalid_body", b.readErr}
	}
	return b.raw, nil
}

// restockRequest decodes the body as a JSON object.
func (b jsonBody) restockRequest() (model.RestockRequest, error) {
	raw, err := b.bytes()
	if err != nil {
		return model.RestockRequest{}, err
	}
	rec, err := model.ParseRestockRequest(raw)
	if err != nil {
		return model.RestockRequest{}, &requestError{http.StatusBadRequest, "invalid_json", err}
	}
	return rec, nil
}

// status returns the patch body's status field, nil when absent.
func (b jsonBody) status() (json.RawMessage, error) {
	patch, err := b.restockRequest()
	if err != nil {
		return nil, err
	}
	status, _ := patch.Get(model.StatusKey)
	return status, nil
}

func (a *App) predictHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	body, err := readBody(w, r).bytes()
	if err != nil {
		writeRequestError(w, err)
		return
	}
	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	out, err := a.Predictor.Predict(r.Context(), req.Festival, req.Warehouses)
	if err != nil {
		obs.Logger.Error("prediction_failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		WriteJSONError(w, http.StatusInternalServerError, "prediction_failed", err.Error())
		return
	}
	counters.Add("predictions", 1)
	writeJSON(w, http.StatusOK, out)
	obs.Logger.Info("prediction_served",
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("festival", req.Festival),
		zap.String("predictor", a.Predictor.Name()),
		zap.Int("warehouses", len(out)),
	)
}

func (a *App) appendRestockHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if a.closing.Load() || a.Restock.IsShuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	rec, err := readBody(w, r).restockRequest()
	if err != nil {
		writeRequestError(w, err)
		return
	}
	if a.Cfg.AssignIDs {
		if _, has := rec.Get("id"); !has {
			id, _ := json.Marshal(uuid.NewString())
			_ = rec.Set("id", id)
		}
	}
	if err := a.Restock.Append(r.Context(), rec); err != nil {
		writeStoreError(w, r, err)
		return
	}
	counters.Add("restock_appended", 1)
	writeJSON(w, http.StatusOK, ack{Message: "Restock request received"})
	obs.Logger.Info("restock_appended",
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.Strings("keys", rec.Keys()),
	)
}

func (a *App) listRestockHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	recs, err := a.Restock.Load(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *App) patchRestockHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPatch:
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	prefix := "/restock-request/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	if raw == "" {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	if a.closing.Load() || a.Restock.IsShuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	// The body is decoded only once the record is found, so a missing or
	// corrupt file and a bad index are reported ahead of a bad body.
	body := readBody(w, r)
	ref := store.ParseRef(raw)
	updated, err := a.Restock.PatchStatus(r.Context(), ref, body.status)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	counters.Add("restock_patched", 1)
	writeJSON(w, http.StatusOK, updated)
	obs.Logger.Info("restock_patched",
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.Stringer("ref", ref),
	)
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"predictor": a.Predictor.Name(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if recs, err := a.Restock.Load(r.Context()); err == nil {
		resp["restockRequests"] = len(recs)
	} else {
		resp["status"] = "degraded"
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	enq, proc, backlog, depth := a.Restock.QueueMetrics()
	m := map[string]any{
		"ops_enqueued":  enq,
		"ops_processed": proc,
		"backlog_size":  backlog,
		"queue_depth":   depth,
		"uptime_sec":    time.Since(a.started).Seconds(),
	}
	counters.Do(func(kv expvar.KeyValue) {
		if v, ok := kv.Value.(*expvar.Int); ok {
			m[kv.Key] = v.Value()
		}
	})
	writeJSON(w, http.StatusOK, m)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Festival Restock API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
