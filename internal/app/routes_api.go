package app

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gonglijing/nbconsole/internal/handlers"
)

func registerAPIRoutes(r *mux.Router, a *App) {
	api := r.PathPrefix("/api").Subrouter()
	if a.auth != nil {
		api.Use(a.auth.RequireAuth)
	}

	registerNorthboundRoutes(api, a.handler)
	registerGatewayRoutes(api, a.handler)
}

func registerNorthboundRoutes(api *mux.Router, h *handlers.Handler) {
	api.HandleFunc("/northbound", h.GetNorthboundConfigs).Methods("GET")
	api.HandleFunc("/northbound/status", h.GetNorthboundStatus).Methods("GET")
	api.HandleFunc("/northbound/schema", h.GetNorthboundSchema).Methods("GET")
	api.HandleFunc("/northbound/types", h.GetNorthboundSupportedTypes).Methods("GET")
	api.HandleFunc("/northbound", h.CreateNorthboundConfig).Methods("POST")
	api.HandleFunc("/northbound/{id}", h.GetNorthboundConfig).Methods("GET")
	api.HandleFunc("/northbound/{id}", h.UpdateNorthboundConfig).Methods("PUT")
	api.HandleFunc("/northbound/{id}", h.DeleteNorthboundConfig).Methods("DELETE")
	api.HandleFunc("/northbound/{id}/toggle", h.ToggleNorthboundEnable).Methods("POST")
	api.HandleFunc("/northbound/{id}/reload", h.ReloadNorthboundConfig).Methods("POST")
}

func registerGatewayRoutes(api *mux.Router, h *handlers.Handler) {
	api.HandleFunc("/gateway/config", h.GetGatewayConfig).Methods("GET")
	api.HandleFunc("/gateway/config", h.UpdateGatewayConfig).Methods("PUT")
	api.HandleFunc("/gateway/northbound/sync-identity", h.SyncGatewayIdentityToNorthbound).Methods("POST")
}

func registerHealthRoutes(r *mux.Router, a *App) {
	r.HandleFunc("/health", a.handler.Health).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{})).Methods("GET")
}
