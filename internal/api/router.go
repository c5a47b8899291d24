// Package api exposes the entitlement manager to the mobile client over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/boostly/entitlementd/internal/entitlement"
	gwerrors "github.com/boostly/entitlementd/internal/errors"
	"github.com/boostly/entitlementd/internal/websocket"
)

// Router wires HTTP routes to the entitlement manager.
type Router struct {
	manager *entitlement.Manager
	hub     *websocket.Hub
	mux     *http.ServeMux
	version string
}

// NewRouter creates the HTTP router.
func NewRouter(manager *entitlement.Manager, hub *websocket.Hub, version string) *Router {
	r := &Router{
		manager: manager,
		hub:     hub,
		mux:     http.NewServeMux(),
		version: version,
	}

	r.mux.HandleFunc("GET /healthz", r.handleHealth)
	r.mux.HandleFunc("GET /api/status", r.handleStatus)
	r.mux.HandleFunc("GET /api/catalog", r.handleCatalog)
	r.mux.HandleFunc("POST /api/catalog/load", r.handleCatalogLoad)
	r.mux.HandleFunc("POST /api/purchase", r.handlePurchase)
	r.mux.HandleFunc("/ws", hub.HandleWebSocket)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	return r
}

// Handler returns the root HTTP handler with request logging.
func (r *Router) Handler() http.Handler {
	return logRequests(r.mux)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		log.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": r.version,
	})
}

func (r *Router) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.manager.CurrentStatus())
}

func (r *Router) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	if !r.manager.Catalog().Loaded() {
		writeError(w, http.StatusConflict, "catalog not loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": r.manager.Catalog().Products(),
	})
}

func (r *Router) handleCatalogLoad(w http.ResponseWriter, req *http.Request) {
	if err := r.manager.LoadCatalog(req.Context()); err != nil {
		log.Error().Err(err).Msg("Catalog load failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": r.manager.Catalog().Products(),
	})
}

type purchaseRequest struct {
	Index int `json:"index"`
}

type purchaseResponse struct {
	Outcome entitlement.PurchaseOutcome    `json:"outcome"`
	Status  entitlement.SubscriptionStatus `json:"status"`
}

func (r *Router) handlePurchase(w http.ResponseWriter, req *http.Request) {
	var body purchaseRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := r.manager.Purchase(req.Context(), body.Index)
	if err != nil {
		switch {
		case errors.Is(err, entitlement.ErrIndexOutOfRange):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).
				Int("index", body.Index).
				Bool("retryable", gwerrors.IsRetryableError(err)).
				Msg("Purchase failed")
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, purchaseResponse{
		Outcome: outcome,
		Status:  r.manager.CurrentStatus(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
