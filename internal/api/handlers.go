package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/campaign-engine/internal/browser"
	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/internal/pipeline"
	"github.com/shehryarbajwa/campaign-engine/internal/proxy"
	"github.com/shehryarbajwa/campaign-engine/internal/queue"
)

var statsTopics = []string{
	pipeline.StageAcquisition,
	pipeline.StageFiltering,
	pipeline.StageResearch,
	pipeline.StageEngagement,
	pipeline.StageTracking,
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	queue    *queue.Queue
	sessions *browser.SessionManager
	pool     *browser.Pool
	proxies  *proxy.Pool
	log      zerolog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(q *queue.Queue, sessions *browser.SessionManager, pool *browser.Pool, proxies *proxy.Pool) *Handler {
	return &Handler{
		queue:    q,
		sessions: sessions,
		pool:     pool,
		proxies:  proxies,
		log:      logging.WithComponent("API"),
	}
}

// TopicStats is one topic's counter snapshot.
type TopicStats struct {
	Processed int64 `json:"processed"`
	Errors    int64 `json:"errors"`
	Failed    int64 `json:"failed"`
}

// StatsResponse aggregates counters across all pipeline stages plus
// browser and proxy resource usage.
type StatsResponse struct {
	Queues         map[string]TopicStats `json:"queues"`
	Browsers       int                   `json:"browsers"`
	Contexts       int                   `json:"contexts"`
	ActiveSessions int                   `json:"activeSessions"`
	WorkingProxies int                   `json:"workingProxies"`
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := StatsResponse{Queues: make(map[string]TopicStats, len(statsTopics))}

	for _, topic := range statsTopics {
		processed, err := h.queue.Processed(ctx, topic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		errCount, err := h.queue.Errors(ctx, topic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		failed, err := h.queue.FailedCount(ctx, topic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		stats.Queues[topic] = TopicStats{Processed: processed, Errors: errCount, Failed: failed}
	}

	stats.Browsers = h.pool.InstanceCount()
	stats.Contexts = h.pool.ContextCount()
	stats.ActiveSessions = len(h.sessions.ActiveSessions())
	stats.WorkingProxies = h.proxies.WorkingCount()

	writeJSON(w, http.StatusOK, stats)
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.ActiveSessions())
}

// ListProxies handles GET /v1/proxies
func (h *Handler) ListProxies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.proxies.Snapshot())
}

// GetFailed handles GET /v1/queues/{topic}/failed
func (h *Handler) GetFailed(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]

	items, err := h.queue.FailedItems(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Dead letters are stored verbatim; surface them as raw JSON so
	// the payloads stay inspectable.
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		if json.Valid([]byte(item)) {
			out = append(out, json.RawMessage(item))
		} else {
			quoted, _ := json.Marshal(item)
			out = append(out, quoted)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"topic": topic, "items": out})
}

// ReplayFailed handles POST /v1/queues/{topic}/replay
func (h *Handler) ReplayFailed(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]

	replayed, err := h.queue.ReplayFailed(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.log.Info().Str("topic", topic).Int("replayed", replayed).Msg("dead letters replayed")
	writeJSON(w, http.StatusOK, map[string]any{"topic": topic, "replayed": replayed})
}

// Health handles GET /v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
