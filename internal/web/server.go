package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/origami-labs/lovm/internal/logger"
	"github.com/origami-labs/lovm/internal/quote"
	"github.com/origami-labs/lovm/internal/state"
	"github.com/origami-labs/lovm/internal/types"
	"github.com/origami-labs/lovm/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer handles HTTP requests for vault data, prices and quotes
type WebServer struct {
	router *mux.Router
	port   string

	vault  *vault.LovVault
	engine *quote.Engine
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, v *vault.LovVault, engine *quote.Engine) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   port,
		vault:  v,
		engine: engine,
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
	api.HandleFunc("/prices", ws.handleGetPrices).Methods("GET")
	api.HandleFunc("/prices/{token}", ws.handleGetPrice).Methods("GET")
	api.HandleFunc("/quotes/invest", ws.handleInvestQuote).Methods("POST")
	api.HandleFunc("/quotes/exit", ws.handleExitQuote).Methods("POST")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")

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
		WriteTimeout: 15 * time.Second,
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

	vaultHealthy := true
	al, hasDebt, err := ws.vault.AssetToLiabilityRatio(types.SpotPrice)
	alString := ""
	if err != nil {
		vaultHealthy = false
	} else if hasDebt {
		alString = al.String()
	}

	overallStatus := "OK"
	if !dbHealthy || !vaultHealthy {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"vault_status": map[string]interface{}{
			"symbol":           ws.vault.Params().TokenSymbol,
			"database_healthy": dbHealthy,
			"vault_healthy":    vaultHealthy,
			"al_ratio":         alString,
		},
	}

	statusCode := http.StatusOK
	if overallStatus != "OK" {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetPrice returns the registry price for one token
func (ws *WebServer) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	token := types.TokenAddress(vars["token"])

	price, err := ws.vault.TokenPrices().TokenPrice(token)
	if err != nil {
		webLogger.Error().Err(err).Str("token", string(token)).Msg("Failed to price token")
		ws.writeErrorResponse(w, http.StatusNotFound, "No price available for token")
		return
	}

	response := map[string]interface{}{
		"token":     token,
		"price":     price.String(),
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPrices returns registry prices for a comma-separated token list
func (ws *WebServer) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	tokensParam := r.URL.Query().Get("tokens")
	if tokensParam == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Missing tokens query parameter")
		return
	}

	var tokens []types.TokenAddress
	for _, t := range splitNonEmpty(tokensParam, ",") {
		tokens = append(tokens, types.TokenAddress(t))
	}

	prices, err := ws.vault.TokenPrices().TokenPrices(tokens)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to price token batch")
		ws.writeErrorResponse(w, http.StatusNotFound, "No price available for one or more tokens")
		return
	}

	priceMap := make(map[types.TokenAddress]string, len(tokens))
	for i, t := range tokens {
		priceMap[t] = prices[i].String()
	}

	response := map[string]interface{}{
		"prices":    priceMap,
		"count":     len(priceMap),
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// quoteRequest is the body for both quote endpoints. Amount is shares for
// exits, reserve tokens for invests.
type quoteRequest struct {
	Amount      string `json:"amount"`
	Token       string `json:"token"`
	SlippageBps uint64 `json:"slippage_bps"`
}

// handleInvestQuote builds an invest quote
func (ws *WebServer) handleInvestQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, err := sdkmath.LegacyNewDecFromStr(req.Amount)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	q, err := ws.engine.InvestQuote(amount, types.TokenAddress(req.Token), req.SlippageBps, time.Time{})
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to build invest quote")
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, q)
}

// handleExitQuote builds an exit quote
func (ws *WebServer) handleExitQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	shares, err := sdkmath.LegacyNewDecFromStr(req.Amount)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	q, err := ws.engine.ExitQuote(shares, types.TokenAddress(req.Token), req.SlippageBps, time.Time{})
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to build exit quote")
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, q)
}

// handleGetVaultSummary returns the vault's position and share accounting
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	pos, err := ws.vault.Position()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to read position")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read vault position")
		return
	}
	assets, liabilities, err := ws.vault.AssetsAndLiabilities(types.SpotPrice)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to value position")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to value vault position")
		return
	}
	sharePrice, err := ws.vault.SharePrice()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to compute share price")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to compute share price")
		return
	}

	alString := ""
	if al, hasDebt, err := ws.vault.AssetToLiabilityRatio(types.SpotPrice); err == nil && hasDebt {
		alString = al.String()
	}
	maxExit, err := ws.vault.MaxExit()
	if err != nil {
		maxExit = sdkmath.LegacyZeroDec()
	}
	maxInvest, err := ws.vault.MaxInvest()
	if err != nil {
		maxInvest = sdkmath.LegacyZeroDec()
	}

	params := ws.vault.Params()
	response := map[string]interface{}{
		"symbol":          params.TokenSymbol,
		"name":            params.TokenName,
		"reserve_token":   ws.vault.ReserveToken(),
		"debt_token":      ws.vault.DebtToken(),
		"supplied":        pos.SuppliedAmount.String(),
		"borrowed":        pos.BorrowedAmount.String(),
		"assets":          assets.String(),
		"liabilities":     liabilities.String(),
		"al_ratio":        alString,
		"total_supply":    ws.vault.TotalSupply().String(),
		"share_price":     sharePrice.String(),
		"max_invest":      maxInvest.String(),
		"max_exit":        maxExit.String(),
		"user_al_range":   params.UserALRange,
		"rebalance_range": params.RebalanceALRange,
		"timestamp":       time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetCycles returns recent cycle snapshots
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	cycles, err := state.GetRecentCycleSnapshots(ws.vault.Params().TokenSymbol, limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}

	response := map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetLatestCycle returns the most recent cycle snapshot
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	cycles, err := state.GetRecentCycleSnapshots(ws.vault.Params().TokenSymbol, 1)
	if err != nil || len(cycles) == 0 {
		webLogger.Error().Err(err).Msg("Failed to get latest cycle")
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, cycles[0])
}

// handleGetParameters returns the vault's live parameter set
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"parameters": ws.vault.Params(),
		"timestamp":  time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
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

		// Response writer wrapper to capture the status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper captures the response status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// splitNonEmpty splits s on sep, dropping empty elements and surrounding
// whitespace.
func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
