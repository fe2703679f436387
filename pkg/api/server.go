// Package api exposes the exchange over HTTP and WebSocket: REST for
// commands and queries, one WebSocket endpoint for the event stream.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openoutcry/exchange/params"
	"github.com/openoutcry/exchange/pkg/exchange"
	"github.com/openoutcry/exchange/pkg/exchange/engine"
	"github.com/openoutcry/exchange/pkg/exchange/market"
	"github.com/openoutcry/exchange/pkg/exchange/round"
	"github.com/openoutcry/exchange/pkg/exchange/settle"
)

// Server is the HTTP front of one exchange instance
type Server struct {
	ex  *exchange.Exchange
	hub *Hub
	cfg params.API
	log *zap.Logger
	srv *http.Server
}

func NewServer(ex *exchange.Exchange, hub *Hub, cfg params.API, log *zap.Logger) *Server {
	s := &Server{ex: ex, hub: hub, cfg: cfg, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/participants", s.handleRegister).Methods("POST")
	v1.HandleFunc("/participants/{id}", s.handleAccount).Methods("GET")
	v1.HandleFunc("/markets", s.handleListMarkets).Methods("GET")
	v1.HandleFunc("/markets", s.requireAdmin(s.handleCreateMarket)).Methods("POST")
	v1.HandleFunc("/markets/{id}", s.requireAdmin(s.handleDeleteMarket)).Methods("DELETE")
	v1.HandleFunc("/markets/{id}/book", s.handleBook).Methods("GET")
	v1.HandleFunc("/markets/{id}/trades", s.handleTrades).Methods("GET")
	v1.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	v1.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	v1.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")
	v1.HandleFunc("/settlement", s.handleSettlement).Methods("GET")
	v1.HandleFunc("/state", s.handleState).Methods("GET")

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/setup", s.requireAdmin(s.handleSetup)).Methods("POST")
	admin.HandleFunc("/start", s.requireAdmin(s.handleStart)).Methods("POST")
	admin.HandleFunc("/end", s.requireAdmin(s.handleEnd)).Methods("POST")
	admin.HandleFunc("/reset", s.requireAdmin(s.handleReset)).Methods("POST")
	admin.HandleFunc("/resolve", s.requireAdmin(s.handleResolve)).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Admin-Key"},
		AllowCredentials: true,
	})

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Start runs the hub loop and serves HTTP until Shutdown
func (s *Server) Start() error {
	go s.hub.Run()
	s.log.Info("api listening", zap.String("addr", s.cfg.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// requireAdmin guards mutation endpoints with the shared admin key
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Admin-Key")
		if s.cfg.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, errors.New("admin key required"))
			return
		}
		next(w, r)
	}
}

// ---- Handlers ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	role := exchange.ParseRole(req.Role)
	if role == exchange.Admin {
		key := r.Header.Get("X-Admin-Key")
		if s.cfg.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, errors.New("admin key required"))
			return
		}
	}

	p, err := s.ex.RegisterParticipant(req.Name, role)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	var cash string
	if v, ok := s.ex.Account(p.ID); ok {
		cash = centsString(v.Cash)
	}
	s.writeJSON(w, http.StatusCreated, toParticipantResponse(p, cash))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, ok := s.ex.Participant(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.New("unknown participant"))
		return
	}
	v, ok := s.ex.Account(id)
	if !ok {
		// Admins have no ledger entry
		s.writeJSON(w, http.StatusOK, toParticipantResponse(p, ""))
		return
	}
	s.writeJSON(w, http.StatusOK, AccountResponse{
		ParticipantID: p.ID,
		Name:          p.Name,
		Cash:          centsString(v.Cash),
		Positions:     v.Positions,
	})
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.ex.Markets()
	out := make([]MarketResponse, len(markets))
	for i, m := range markets {
		out[i] = toMarketResponse(m)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := toMarketRequest(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ex.CreateMarket(m); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toMarketResponse(m))
}

func (s *Server) handleDeleteMarket(w http.ResponseWriter, r *http.Request) {
	if err := s.ex.DeleteMarket(mux.Vars(r)["id"]); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	d, err := s.ex.BookSnapshot(mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toBookResponse(d))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	trades := s.ex.Trades(mux.Vars(r)["id"], limit)
	out := make([]TradeResponse, len(trades))
	for i, t := range trades {
		out[i] = toTradeResponse(t)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := parseCents(req.Price)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	rep, err := s.ex.SubmitOrder(exchange.SubmitRequest{
		MarketID:  req.MarketID,
		Owner:     req.ParticipantID,
		Anonymous: req.Anonymous,
		Side:      side,
		Price:     price,
		Qty:       req.Quantity,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := SubmitOrderResponse{
		OrderID:    rep.Order.ID,
		Status:     rep.Order.Status.String(),
		FilledQty:  rep.FilledQty,
		RestedQty:  rep.RestedQty,
		DroppedQty: rep.DroppedQty,
		Trades:     make([]TradeResponse, len(rep.Trades)),
	}
	for i, t := range rep.Trades {
		out.Trades[i] = toTradeResponse(t)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ex.CancelOrder(req.OrderID, req.ParticipantID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"orderId": req.OrderID, "status": "CANCELLED"})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ex.Leaderboard())
}

func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request) {
	snap := s.ex.Settlement()
	if snap == nil {
		s.writeError(w, http.StatusNotFound, errors.New("round not resolved"))
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	markets := s.ex.Markets()
	out := StateResponse{
		Phase:        s.ex.Round().Phase().String(),
		Round:        s.ex.Round().Number(),
		StartingCash: centsString(s.ex.StartingCash()),
		Markets:      make([]MarketResponse, len(markets)),
		Books:        make([]BookResponse, 0, len(markets)),
	}
	for i, m := range markets {
		out.Markets[i] = toMarketResponse(m)
		if d, err := s.ex.BookSnapshot(m.ID); err == nil {
			out.Books = append(out.Books, toBookResponse(d))
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	cash, err := parseCents(req.StartingCash)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ex.Setup(cash); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"startingCash": centsString(cash)})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ex.Start(); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeRound(w)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := s.ex.End(); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeRound(w)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.ex.Reset()
	s.writeRound(w)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	trueValues := make(map[string]decimal.Decimal, len(req.TrueValues))
	for id, raw := range req.TrueValues {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errors.New("bad true value for "+id))
			return
		}
		trueValues[id] = v
	}

	snap, err := s.ex.Resolve(trueValues)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) writeRound(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"phase": s.ex.Round().Phase().String(),
		"round": s.ex.Round().Number(),
	})
}

// ---- Plumbing ----

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// writeDomainError maps exchange sentinel errors onto HTTP status codes
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, market.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrDuplicateID), errors.Is(err, market.ErrMarketInUse),
		errors.Is(err, engine.ErrMarketInactive), errors.Is(err, round.ErrBadTransition):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInvalidOrder), errors.Is(err, market.ErrInvalidFormula),
		errors.Is(err, market.ErrInvalidMarket), errors.Is(err, settle.ErrIncompleteResolution):
		status = http.StatusBadRequest
	}
	s.writeError(w, status, err)
}
