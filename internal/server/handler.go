package server

import (
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"insights-gateway/internal/intake"
	"insights-gateway/internal/metrics"
	"insights-gateway/internal/model"
	"insights-gateway/internal/stats"
	"insights-gateway/internal/worker"
	"insights-gateway/internal/workspace"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	// Heartbeat is the fixed body of the liveness probe.
	Heartbeat = "lub-dub"

	unknownClient = "Unknown"
)

type Handler struct {
	proc       *worker.Processor
	intake     *intake.Intake
	stats      *stats.ProcessStats
	metrics    *metrics.Metrics
	engineHost string
	now        func() time.Time
}

func NewHandler(proc *worker.Processor, in *intake.Intake, st *stats.ProcessStats, m *metrics.Metrics, engineHost string) *Handler {
	return &Handler{
		proc:       proc,
		intake:     in,
		stats:      st,
		metrics:    m,
		engineHost: engineHost,
		now:        time.Now,
	}
}

// HandleUpload
//
// POST /upload/{systemID}, /r/insights/uploads/{systemID} and /upload.
//
// Flow:
//  1. read User-Agent / X-Account / path system id
//  2. run the pipeline (workspace, intake, dispatch, assemble, persist)
//  3. 201 + JSON body, or the error message as text/plain
//
// Every request gets its own workspace; nothing is queued.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.metrics.UploadRequestsTotal, 1)

	ua := r.Header.Get("User-Agent")
	if ua == "" {
		ua = unknownClient
	}
	req := model.UploadRequest{
		SystemID:  r.PathValue("systemID"),
		AccountID: r.Header.Get("X-Account"),
		UserAgent: ua,
	}

	resp, err := h.proc.Process(r.Context(), req, func(ws *workspace.Workspace) (*intake.Upload, error) {
		return h.intake.Accept(w, r, ws)
	})
	if err != nil {
		h.metrics.Reject(err)
		writeError(w, r, err)
		return
	}

	atomic.AddInt64(&h.metrics.UploadRequestsAcceptedTotal, 1)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Host", h.engineHost)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// HandleStatus returns the ProcessStats snapshot as JSON.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	body, err := json.Marshal(h.stats.Snapshot(h.now()))
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// HandleHeartbeat is the liveness probe.
func (h *Handler) HandleHeartbeat(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, Heartbeat)
}

// writeError sends only the client-facing message. Server-side failures are
// logged with the underlying cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := model.AsError(err)
	log := zerolog.Ctx(r.Context())

	ev := log.Info()
	if e.Status() >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("kind", e.Kind.String()).Int("status", e.Status()).Msg("upload rejected")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.Status())
	_, _ = io.WriteString(w, e.Msg)
}
