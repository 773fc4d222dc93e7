package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter registers every route and wraps the mux with
// correlation -> recovery -> access log.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /upload/{systemID}", h.HandleUpload)
	mux.HandleFunc("POST /r/insights/uploads/{systemID}", h.HandleUpload)
	mux.HandleFunc("POST /upload", h.HandleUpload)

	mux.HandleFunc("GET /status", h.HandleStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /{$}", h.HandleHeartbeat)

	return Chain(mux, Correlate, Recover, AccessLog)
}
