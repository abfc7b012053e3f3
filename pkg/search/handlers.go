package search

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/PolycarpusTack/alexandria-search/pkg/observability"
)

// Handlers provides HTTP handlers for the search API
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

// NewHandlers creates new search handlers
func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

// RegisterRoutes registers search routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/search", h.search).Methods("POST")
	router.HandleFunc("/search/validate", h.validate).Methods("POST")
	router.HandleFunc("/search/suggest", h.suggest).Methods("GET")
	router.HandleFunc("/search/similar/{id}", h.similar).Methods("GET")
	router.HandleFunc("/search/analytics", h.analytics).Methods("GET")
	router.HandleFunc("/search/trending", h.trending).Methods("GET")
	router.HandleFunc("/search/interactions", h.interaction).Methods("POST")
	router.HandleFunc("/search/settings", h.getSettings).Methods("GET")
	router.HandleFunc("/search/settings", h.updateSettings).Methods("PUT")
	router.HandleFunc("/index/status", h.indexStatus).Methods("GET")
	router.HandleFunc("/index/reindex", h.reindex).Methods("POST")
	router.HandleFunc("/index/nodes/{id}", h.indexNode).Methods("PUT")
	router.HandleFunc("/index/nodes/{id}", h.removeNode).Methods("DELETE")
}

// search handles POST /search
func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	var query SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	results, err := h.service.Search(r.Context(), &query)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":  "validation failed",
				"errors": verr.Errors,
			})
			return
		}
		h.logger.WithError(err).Error("search request failed")
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// validate handles POST /search/validate, a dry-run of request
// validation without executing anything.
func (h *Handlers) validate(w http.ResponseWriter, r *http.Request) {
	var query SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Validator().Validate(&query))
}

// suggest handles GET /search/suggest?q=prefix
func (h *Handlers) suggest(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("q")
	suggestions, err := h.service.Suggest(r.Context(), prefix)
	if err != nil {
		h.logger.WithError(err).Error("suggestion lookup failed")
		http.Error(w, "suggestion lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

// similar handles GET /search/similar/{id}
func (h *Handlers) similar(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	limit := queryInt(r, "limit", 10)

	nodes, err := h.service.FindSimilar(r.Context(), nodeID, limit)
	if err != nil {
		h.logger.WithError(err).WithField("node_id", nodeID).Error("similarity search failed")
		http.Error(w, "similarity search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"similar": nodes})
}

// analytics handles GET /search/analytics?days=N&top=N
func (h *Handlers) analytics(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	top := queryInt(r, "top", 10)

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)

	analytics, err := h.service.Analytics().GetSearchAnalytics(r.Context(), from, to, top)
	if err != nil {
		h.logger.WithError(err).Error("analytics query failed")
		http.Error(w, "analytics query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// trending handles GET /search/trending?window=N&limit=N
func (h *Handlers) trending(w http.ResponseWriter, r *http.Request) {
	window := queryInt(r, "window", 7)
	limit := queryInt(r, "limit", 10)

	trending, err := h.service.Analytics().GetTrendingSearches(r.Context(), window, limit)
	if err != nil {
		h.logger.WithError(err).Error("trending query failed")
		http.Error(w, "trending query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trending": trending})
}

// interaction handles POST /search/interactions
func (h *Handlers) interaction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventID  string `json:"event_id"`
		NodeID   string `json:"node_id"`
		Position int    `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.EventID == "" || body.NodeID == "" {
		http.Error(w, "event_id and node_id are required", http.StatusBadRequest)
		return
	}

	if err := h.service.Analytics().RecordSearchInteraction(r.Context(), body.EventID, body.NodeID, body.Position); err != nil {
		h.logger.WithError(err).Error("failed to record interaction")
		http.Error(w, "failed to record interaction", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// getSettings handles GET /search/settings
func (h *Handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Settings())
}

// updateSettings handles PUT /search/settings
func (h *Handlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	cfg := h.service.Settings()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateSettings(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.service.Settings())
}

// indexStatus handles GET /index/status
func (h *Handlers) indexStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Indexer().Status(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("index status query failed")
		http.Error(w, "index status query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// reindex handles POST /index/reindex. The rebuild runs synchronously;
// clients that want fire-and-forget should call it from a job runner.
func (h *Handlers) reindex(w http.ResponseWriter, r *http.Request) {
	indexed, err := h.service.Indexer().ReindexAll(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("reindex failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   err.Error(),
			"indexed": indexed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"indexed": indexed})
}

// indexNode handles PUT /index/nodes/{id}
func (h *Handlers) indexNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	if err := h.service.Indexer().UpdateIndex(r.Context(), nodeID); err != nil {
		h.logger.WithError(err).WithField("node_id", nodeID).Error("index update failed")
		http.Error(w, "index update failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// removeNode handles DELETE /index/nodes/{id}
func (h *Handlers) removeNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	if err := h.service.Indexer().RemoveFromIndex(r.Context(), nodeID); err != nil {
		h.logger.WithError(err).WithField("node_id", nodeID).Error("index removal failed")
		http.Error(w, "index removal failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}
