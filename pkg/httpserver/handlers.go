package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quantfold/perpsim/internal/exchange"
	"github.com/quantfold/perpsim/pkg/types"
	"go.uber.org/zap"
)

// APIHandler serves the REST endpoints of the simulator.
type APIHandler struct {
	core   *exchange.Core
	logger *zap.Logger
}

// NewAPIHandler creates the REST handler set.
func NewAPIHandler(core *exchange.Core, logger *zap.Logger) *APIHandler {
	return &APIHandler{core: core, logger: logger}
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleOrderBook handles GET /api/orderbook?symbol=<symbol>.
func (h *APIHandler) HandleOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		h.writeError(w, types.ErrSymbolRequired.Error(), http.StatusBadRequest)
		return
	}

	snap, err := h.core.GetOrderBook(symbol)
	if err != nil {
		h.writeError(w, err.Error(), statusForError(err))
		return
	}
	h.writeJSON(w, snap)
}

// HandleAccount handles GET /api/account?account=<id>.
func (h *APIHandler) HandleAccount(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.core.GetAccountSnapshot(r.URL.Query().Get("account")))
}

// HandlePositions handles GET /api/positions?account=<id>.
func (h *APIHandler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.core.GetOpenPositions(r.URL.Query().Get("account")))
}

// orderPayload is the POST /api/orders request body. Side accepts buy/sell
// and the long/short aliases; type defaults to market.
type orderPayload struct {
	Account    string          `json:"account,omitempty"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Type       string          `json:"type,omitempty"`
	Quantity   float64         `json:"quantity"`
	LimitPrice *float64        `json:"limitPrice,omitempty"`
	Leverage   *float64        `json:"leverage,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	ExitPlan   *types.ExitPlan `json:"exitPlan,omitempty"`
}

// HandlePlaceOrder handles POST /api/orders. Validation failures come back as
// 400s; matching and affordability rejections come back as 200s carrying a
// rejected execution.
func (h *APIHandler) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var payload orderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	side, ok := types.NormalizeSide(payload.Side)
	if !ok {
		h.writeError(w, types.ErrUnsupportedSide.Error(), http.StatusBadRequest)
		return
	}

	orderType := types.OrderTypeMarket
	if payload.Type == string(types.OrderTypeLimit) {
		orderType = types.OrderTypeLimit
	}

	req := &types.OrderRequest{
		Symbol:     payload.Symbol,
		Side:       side,
		Type:       orderType,
		Quantity:   payload.Quantity,
		LimitPrice: payload.LimitPrice,
		Leverage:   payload.Leverage,
		Confidence: payload.Confidence,
		ExitPlan:   payload.ExitPlan,
	}

	exec, err := h.core.PlaceOrder(r.Context(), payload.Account, req)
	if err != nil {
		h.writeError(w, err.Error(), statusForError(err))
		return
	}
	h.writeJSON(w, exec)
}

// closePayload is the POST /api/close request body. An empty symbol list
// closes every open position.
type closePayload struct {
	Account string   `json:"account,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
}

// HandleClose handles POST /api/close.
func (h *APIHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	var payload closePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	results, err := h.core.ClosePositions(r.Context(), payload.Account, payload.Symbols)
	if err != nil {
		h.writeError(w, err.Error(), statusForError(err))
		return
	}
	h.writeJSON(w, results)
}

type resetPayload struct {
	Account string `json:"account,omitempty"`
}

// HandleReset handles POST /api/reset.
func (h *APIHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var payload resetPayload
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			h.writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	snap, err := h.core.ResetAccount(payload.Account)
	if err != nil {
		h.writeError(w, err.Error(), statusForError(err))
		return
	}
	h.writeJSON(w, snap)
}

// exitPlanPayload is the POST /api/exit-plan request body.
type exitPlanPayload struct {
	Account      string   `json:"account,omitempty"`
	Symbol       string   `json:"symbol"`
	Stop         *float64 `json:"stop,omitempty"`
	Target       *float64 `json:"target,omitempty"`
	Invalidation string   `json:"invalidation,omitempty"`
}

// HandleExitPlan handles POST /api/exit-plan.
func (h *APIHandler) HandleExitPlan(w http.ResponseWriter, r *http.Request) {
	var payload exitPlanPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	plan := &types.ExitPlan{
		Stop:         payload.Stop,
		Target:       payload.Target,
		Invalidation: payload.Invalidation,
	}
	snap, err := h.core.SetExitPlan(payload.Account, payload.Symbol, plan)
	if err != nil {
		h.writeError(w, err.Error(), statusForError(err))
		return
	}
	h.writeJSON(w, snap)
}

// statusForError maps core errors to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, types.ErrUnknownMarket):
		return http.StatusNotFound
	case errors.Is(err, types.ErrSimulationDisabled):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *APIHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{Error: message}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
