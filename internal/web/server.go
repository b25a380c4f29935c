package web

import (
	"encoding/json"
	"math/big"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/levered-fi/ltm/internal/config"
	"github.com/levered-fi/ltm/internal/logger"
	"github.com/levered-fi/ltm/internal/orchestrator"
	"github.com/levered-fi/ltm/internal/state"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the planning and execution API over HTTP
type WebServer struct {
	router *mux.Router
	port   string
	orch   *orchestrator.Orchestrator
}

// planRequest is the shared request body for plan and execute endpoints.
// Amount is the equity contribution for mints and the share amount for
// redeems, as a decimal string.
type planRequest struct {
	Token       string  `json:"token"`
	Amount      string  `json:"amount"`
	SlippageBps *uint32 `json:"slippage_bps,omitempty"`
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, orch *orchestrator.Orchestrator) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   port,
		orch:   orch,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/mint/plan", ws.handlePlanMint).Methods("POST")
	api.HandleFunc("/redeem/plan", ws.handlePlanRedeem).Methods("POST")
	api.HandleFunc("/mint", ws.handleMint).Methods("POST")
	api.HandleFunc("/redeem", ws.handleRedeem).Methods("POST")
	api.HandleFunc("/plans", ws.handleGetPlans).Methods("GET")
	api.HandleFunc("/plans/{id}", ws.handleGetPlan).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":     "ltm-leverage-token-manager",
			"version":  "1.0.0",
			"chain_id": config.ChainID,
			"router_version": func() int {
				if ws.orch != nil {
					return int(ws.orch.Version())
				}
				return 0
			}(),
		},
		"database_healthy": dbHealthy,
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handlePlanMint produces a mint plan without executing it
func (ws *WebServer) handlePlanMint(w http.ResponseWriter, r *http.Request) {
	token, amount, slippageBps, ok := ws.decodePlanRequest(w, r)
	if !ok {
		return
	}

	plan, err := ws.orch.PlanMint(r.Context(), token, amount, slippageBps)
	if err != nil {
		webLogger.Error().Err(err).Str("token", token.Hex()).Msg("Mint planning failed")
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, plan)
}

// handlePlanRedeem produces a redeem plan without executing it
func (ws *WebServer) handlePlanRedeem(w http.ResponseWriter, r *http.Request) {
	token, amount, slippageBps, ok := ws.decodePlanRequest(w, r)
	if !ok {
		return
	}

	plan, err := ws.orch.PlanRedeem(r.Context(), token, amount, slippageBps)
	if err != nil {
		webLogger.Error().Err(err).Str("token", token.Hex()).Msg("Redeem planning failed")
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, plan)
}

// handleMint plans and executes a mint end to end
func (ws *WebServer) handleMint(w http.ResponseWriter, r *http.Request) {
	token, amount, slippageBps, ok := ws.decodePlanRequest(w, r)
	if !ok {
		return
	}

	plan, result, minted, err := ws.orch.Mint(r.Context(), token, amount, slippageBps, nil)
	if err != nil {
		webLogger.Error().Err(err).Str("token", token.Hex()).Msg("Mint execution failed")
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	response := map[string]interface{}{
		"plan":    plan,
		"tx_hash": result.Hash.Hex(),
	}
	if minted != nil {
		response["minted_shares"] = minted
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleRedeem plans and executes a redeem end to end
func (ws *WebServer) handleRedeem(w http.ResponseWriter, r *http.Request) {
	token, amount, slippageBps, ok := ws.decodePlanRequest(w, r)
	if !ok {
		return
	}

	plan, result, err := ws.orch.Redeem(r.Context(), token, amount, slippageBps)
	if err != nil {
		webLogger.Error().Err(err).Str("token", token.Hex()).Msg("Redeem execution failed")
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	response := map[string]interface{}{
		"plan":    plan,
		"tx_hash": result.Hash.Hex(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPlans returns recent plan snapshots
func (ws *WebServer) handleGetPlans(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	plans, err := state.GetRecentPlans(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent plans")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve plans")
		return
	}

	response := map[string]interface{}{
		"plans": plans,
		"count": len(plans),
		"limit": limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPlan returns a specific plan snapshot by plan ID
func (ws *WebServer) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	planID := vars["id"]

	plan, err := state.GetPlanByID(planID)
	if err != nil {
		webLogger.Error().Err(err).Str("planID", planID).Msg("Failed to get plan")
		ws.writeErrorResponse(w, http.StatusNotFound, "Plan not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, plan)
}

// decodePlanRequest parses and validates the shared request body.
func (ws *WebServer) decodePlanRequest(w http.ResponseWriter, r *http.Request) (common.Address, *big.Int, uint32, bool) {
	if ws.orch == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Orchestrator is not available")
		return common.Address{}, nil, 0, false
	}

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON body")
		return common.Address{}, nil, 0, false
	}

	if !common.IsHexAddress(req.Token) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid token address")
		return common.Address{}, nil, 0, false
	}
	token := common.HexToAddress(req.Token)

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Amount must be a positive decimal string")
		return common.Address{}, nil, 0, false
	}

	slippageBps := config.DefaultSlippageBps
	if req.SlippageBps != nil {
		if *req.SlippageBps > 10000 {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Slippage bps out of range")
			return common.Address{}, nil, 0, false
		}
		slippageBps = *req.SlippageBps
	}

	return token, amount, slippageBps, true
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
