package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/ergo-monitor/internal/application/analytics"
	"github.com/bimakw/ergo-monitor/internal/application/services"
	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

// Balance sources reported by GetByAddress
const (
	BalanceSourceCache  = "cache"
	BalanceSourceMemory = "memory"
)

// AddressHandler serves the monitor state of watched addresses
type AddressHandler struct {
	monitor  *services.MonitorService
	balances *services.BalanceService
	flows    *analytics.FlowTracker
	logger   *zap.Logger
}

// NewAddressHandler creates a new address handler
func NewAddressHandler(
	monitor *services.MonitorService,
	balances *services.BalanceService,
	flows *analytics.FlowTracker,
	logger *zap.Logger,
) *AddressHandler {
	return &AddressHandler{
		monitor:  monitor,
		balances: balances,
		flows:    flows,
		logger:   logger,
	}
}

// RegisterRoutes registers the address routes
func (h *AddressHandler) RegisterRoutes(r chi.Router) {
	r.Get("/addresses", h.GetAll)
	r.Get("/addresses/{address}", h.GetByAddress)
	r.Get("/addresses/{address}/flows", h.GetFlows)
}

// AddressListResponse lists all watched addresses
type AddressListResponse struct {
	Addresses []entities.AddressView `json:"addresses"`
	Total     int                    `json:"total"`
}

// AddressResponse is one watched address with the origin of its balance
type AddressResponse struct {
	entities.AddressView
	BalanceSource string `json:"balance_source"`
}

// GetAll handles GET /api/v1/addresses
func (h *AddressHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	views := h.monitor.Addresses()
	h.respondJSON(w, http.StatusOK, AddressListResponse{
		Addresses: views,
		Total:     len(views),
	})
}

// GetByAddress handles GET /api/v1/addresses/{address}
func (h *AddressHandler) GetByAddress(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if len(address) < entities.MinAddressLength {
		h.respondError(w, http.StatusBadRequest, "Invalid address format")
		return
	}

	view, ok := h.monitor.Address(address)
	if !ok {
		h.respondError(w, http.StatusNotFound, "address not watched")
		return
	}

	response := AddressResponse{AddressView: view, BalanceSource: BalanceSourceMemory}

	// The cache is shared with other instances and may hold a newer snapshot
	if h.balances != nil {
		cached, err := h.balances.CachedBalance(r.Context(), address)
		switch {
		case err == nil && cached != nil:
			response.Balance = cached
			response.BalanceSource = BalanceSourceCache
		case err != nil:
			h.logger.Debug("Cached balance unavailable", zap.String("address", address), zap.Error(err))
		}
	}

	h.respondJSON(w, http.StatusOK, response)
}

// GetFlows handles GET /api/v1/addresses/{address}/flows
func (h *AddressHandler) GetFlows(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if _, ok := h.monitor.Address(address); !ok {
		h.respondError(w, http.StatusNotFound, "address not watched")
		return
	}

	summary, ok := h.flows.Summary(address)
	if !ok {
		h.respondError(w, http.StatusNotFound, "no activity recorded")
		return
	}

	h.respondJSON(w, http.StatusOK, summary)
}

func (h *AddressHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *AddressHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
