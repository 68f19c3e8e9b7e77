// Package httpapi exposes the TransactionCoordinator over REST/JSON for the
// POS web application, grounded on the api package's gorilla/mux server.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/backend/internal/circuitbreaker"
	"github.com/ocx/backend/internal/coordinator"
	"github.com/ocx/backend/internal/tef"
	"github.com/ocx/backend/internal/transport"
)

// Server exposes the bridge's purchase/reversal/status/connect operations
// over HTTP.
type Server struct {
	coord          *coordinator.TransactionCoordinator
	allowedOrigins []string
	mockMode       bool
	timeout        time.Duration
	log            *slog.Logger
}

// New constructs a Server bound to coord. allowedOrigins configures the CORS
// middleware (§9); mockMode is surfaced verbatim on GET /status. timeout is
// the per-request deadline (§6 tef.timeout_ms) applied to /purchase and
// /reversal; a zero value falls back to coordinator.DefaultTimeout.
func New(coord *coordinator.TransactionCoordinator, allowedOrigins []string, mockMode bool, timeout time.Duration, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = coordinator.DefaultTimeout
	}
	return &Server{coord: coord, allowedOrigins: allowedOrigins, mockMode: mockMode, timeout: timeout, log: log}
}

// Router builds the mux.Router exposing every bridge operation.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.corsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/ports", s.handlePorts).Methods("GET")
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/connect", s.handleConnect).Methods("POST")
	r.HandleFunc("/disconnect", s.handleDisconnect).Methods("POST")
	r.HandleFunc("/purchase", s.handlePurchase).Methods("POST")
	r.HandleFunc("/reversal", s.handleReversal).Methods("POST")

	return r
}

// ListenAndServe starts the HTTP server on the given port.
func (s *Server) ListenAndServe(port string) error {
	addr := fmt.Sprintf(":%s", port)
	s.log.Info("httpapi: listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

// corsMiddleware is permissive-by-configuration: "*" in allowedOrigins
// allows any origin; otherwise only exact matches are echoed back.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.wildcardAllowed() {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) wildcardAllowed() bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" {
			return true
		}
	}
	return false
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePorts lists the serial devices visible to this host (SPEC_FULL.md's
// supplemented operator endpoint), used to help an installer pick the
// right SerialConfig.PortPath.
func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	ports, err := transport.EnumeratePorts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ports": ports})
}

// statusResponse is the richer status payload SPEC_FULL.md supplements onto
// §9's "Mock mode" notion: operators need to see mock_mode and whether a
// transaction is in flight, not just the bare state name.
type statusResponse struct {
	State       string `json:"state"`
	Connected   bool   `json:"connected"`
	Pending     bool   `json:"pending"`
	MockMode    bool   `json:"mock_mode"`
	LinkBreaker string `json:"link_breaker"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.coord.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		State:       st.State,
		Connected:   st.Connected,
		Pending:     st.Pending,
		MockMode:    s.mockMode,
		LinkBreaker: st.LinkBreaker,
	})
}

type connectRequest struct {
	PortPath string `json:"port_path"`
	Baud     int    `json:"baud"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg := transport.DefaultConfig(req.PortPath)
	if req.Baud > 0 {
		cfg.Baud = req.Baud
	}
	if req.DataBits > 0 {
		cfg.DataBits = req.DataBits
	}
	if req.StopBits > 0 {
		cfg.StopBits = req.StopBits
	}
	if req.Parity != "" {
		cfg.Parity = req.Parity
	}

	if err := s.coord.Connect(cfg); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Disconnect(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

type purchaseRequestBody struct {
	AmountCents   uint64 `json:"amount_cents"`
	TaxCents      uint64 `json:"tax_cents"`
	TipCents      uint64 `json:"tip_cents"`
	IAC           uint64 `json:"iac"`
	TerminalID    string `json:"terminal_id"`
	TransactionID string `json:"transaction_id"`
	CashierID     string `json:"cashier_id"`
	SendPAN       bool   `json:"send_pan"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var body purchaseRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := contextWithTimeout(r, s.timeout)
	defer cancel()

	resp, err := s.coord.SendPurchase(ctx, tef.PurchaseRequest{
		AmountCents:   body.AmountCents,
		TaxCents:      body.TaxCents,
		TipCents:      body.TipCents,
		IAC:           body.IAC,
		TerminalID:    body.TerminalID,
		TransactionID: body.TransactionID,
		CashierID:     body.CashierID,
		SendPAN:       body.SendPAN,
	})
	writeOutcome(w, resp, err)
}

type reversalRequestBody struct {
	ReceiptNumber string `json:"receipt_number"`
	TerminalID    string `json:"terminal_id"`
	TransactionID string `json:"transaction_id"`
	CashierID     string `json:"cashier_id"`
}

func (s *Server) handleReversal(w http.ResponseWriter, r *http.Request) {
	var body reversalRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := contextWithTimeout(r, s.timeout)
	defer cancel()

	resp, err := s.coord.SendReversal(ctx, tef.ReversalRequest{
		ReceiptNumber: body.ReceiptNumber,
		TerminalID:    body.TerminalID,
		TransactionID: body.TransactionID,
		CashierID:     body.CashierID,
	})
	writeOutcome(w, resp, err)
}

// responseBody is the JSON shape returned by both /purchase and /reversal.
type responseBody struct {
	Approved        bool   `json:"approved"`
	ResponseCode    string `json:"response_code"`
	Message         string `json:"message"`
	AuthCode        string `json:"auth_code,omitempty"`
	Amount          string `json:"amount,omitempty"`
	Franchise       string `json:"franchise,omitempty"`
	AccountType     string `json:"account_type,omitempty"`
	MaskedPAN       string `json:"masked_pan,omitempty"`
	TransactionDate string `json:"transaction_date,omitempty"`
	ReceiptNumber   string `json:"receipt_number,omitempty"`
}

func writeOutcome(w http.ResponseWriter, resp tef.TerminalResponse, err error) {
	if err != nil {
		status := classifyError(err)
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, responseBody{
		Approved:        resp.Approved,
		ResponseCode:    resp.ResponseCode,
		Message:         resp.Message,
		AuthCode:        resp.AuthCode(),
		Amount:          resp.Amount(),
		Franchise:       resp.Franchise(),
		AccountType:     resp.AccountType(),
		MaskedPAN:       resp.MaskedPAN(),
		TransactionDate: resp.TransactionDate(),
		ReceiptNumber:   resp.ReceiptNumber(),
	})
}

// classifyError maps a coordinator/codec error onto an HTTP status: a busy
// coordinator or a request validation failure are the caller's problem
// (409/400); a closed link or an open link breaker is 503; anything else
// reflects a terminal or transport fault (502).
func classifyError(err error) int {
	switch {
	case isInvalidRequest(err):
		return http.StatusBadRequest
	case isBusy(err):
		return http.StatusConflict
	case isNotConnected(err):
		return http.StatusServiceUnavailable
	case isCircuitOpen(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func isInvalidRequest(err error) bool { return errors.Is(err, tef.ErrInvalidRequest) }
func isBusy(err error) bool           { return errors.Is(err, coordinator.ErrBusy) }
func isNotConnected(err error) bool   { return errors.Is(err, coordinator.ErrNotConnected) }
func isCircuitOpen(err error) bool {
	return errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests)
}

// contextWithTimeout derives a bounded context from the inbound request,
// so a dropped HTTP connection cancels the pending exchange too.
func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
