package httpapi

import (
	"expvar"
	"net/http"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/predict-festival-demand", app.predictHandler)
	mux.HandleFunc("/restock-request", app.appendRestockHandler)
	mux.HandleFunc("/restock-request/", app.patchRestockHandler)
	mux.HandleFunc("/restock-requests", app.listRestockHandler)
	mux.HandleFunc("/healthz", app.healthHandler)
	mux.HandleFunc("/debug/metrics", app.metricsHandler)
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/openapi.yaml", app.openapiHandler)
	mux.HandleFunc("/docs", app.docsHandler)
	return WithRequestID(WithLogging(WithRecover(WithCORS(app.Cfg.CORSAllowedOrigins, mux))))
}
