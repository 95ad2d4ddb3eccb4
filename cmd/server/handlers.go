package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockdash/internal/mutualfund"
	"stockdash/internal/portfolio"
	"stockdash/internal/quote"
	"stockdash/internal/resolver"
	"stockdash/internal/session"
	"stockdash/internal/yahoo"
)

const noStaticDataReason = "No static data available"

type quoteResolver interface {
	Resolve(ctx context.Context, symbol string) quote.Quote
	Static(symbol string) (quote.Quote, bool)
}

type summarySource interface {
	Summary(ctx context.Context, symbol string) (yahoo.Summary, error)
}

type holdings interface {
	Add(ctx context.Context, user, symbol string) (string, error)
	List(ctx context.Context, user string) []quote.Quote
}

type fundSource interface {
	LatestOrPlaceholder(ctx context.Context, code string) mutualfund.Scheme
}

type server struct {
	quotes    quoteResolver
	details   summarySource
	portfolio holdings
	funds     fundSource
	sessions  *session.Manager
	firebase  map[string]string
	log       *zap.Logger
	validate  *validator.Validate

	maxBatch         int
	batchConcurrency int
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("GET /firebase-config", s.handleFirebaseConfig)

	auth := s.sessions.Require
	mux.Handle("GET /api/me", auth(http.HandlerFunc(s.handleMe)))
	mux.Handle("GET /api/stock-data", auth(http.HandlerFunc(s.handleStockData)))
	mux.Handle("GET /get_stock_info", auth(http.HandlerFunc(s.handleStockInfo)))
	mux.Handle("GET /api/mutual-fund", auth(http.HandlerFunc(s.handleMutualFund)))
	mux.Handle("GET /api/portfolio", auth(http.HandlerFunc(s.handleListPortfolio)))
	mux.Handle("POST /api/portfolio", auth(http.HandlerFunc(s.handleAddPortfolio)))
	mux.Handle("GET /api/quotes", auth(http.HandlerFunc(s.handleGetQuotes)))
	mux.Handle("POST /api/quotes", auth(http.HandlerFunc(s.handlePostQuotes)))
	return mux
}

type loginBody struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var b loginBody
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid JSON body"})
			return
		}
	} else {
		b.Email, b.Password = r.PostFormValue("email"), r.PostFormValue("password")
	}
	if err := s.validate.Struct(b); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "email and password are required"})
		return
	}

	u, err := s.sessions.Authenticate(b.Email, b.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid email or password"})
		return
	}
	token, err := s.sessions.Issue(u)
	if err != nil {
		s.log.Error("issuing session", zap.Error(err), zap.String("request_id", requestID(r.Context())))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "internal server error"})
		return
	}
	s.sessions.SetCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": userResponse{Email: u.Email, Name: u.Name}})
}

func (s *server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	c, _ := session.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, userResponse{Email: c.Email, Name: c.Name})
}

func (s *server) handleFirebaseConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.firebase)
}

func (s *server) handleStockData(w http.ResponseWriter, r *http.Request) {
	symbol := quote.Normalize(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeJSON(w, http.StatusOK, quote.Failure(resolver.MissingSymbolReason))
		return
	}
	if r.URL.Query().Get("static_only") == "true" {
		q, ok := s.quotes.Static(symbol)
		if !ok {
			q = quote.Failure(noStaticDataReason)
		}
		writeJSON(w, http.StatusOK, q)
		return
	}
	writeJSON(w, http.StatusOK, s.quotes.Resolve(r.Context(), symbol))
}

type stockInfoResponse struct {
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	CurrentPrice  float64 `json:"currentPrice"`
	DayHigh       float64 `json:"dayHigh"`
	DayLow        float64 `json:"dayLow"`
	PreviousClose float64 `json:"previousClose"`
}

func (s *server) handleStockInfo(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": resolver.MissingSymbolReason})
		return
	}
	if !strings.HasSuffix(symbol, quote.SuffixNSE) {
		symbol += quote.SuffixNSE
	}

	sum, err := s.details.Summary(r.Context(), symbol)
	if errors.Is(err, yahoo.ErrNotFound) || (err == nil && sum.RegularMarketPrice == nil) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Stock not found or not available"})
		return
	}
	if err != nil {
		s.log.Warn("stock info lookup failed", zap.String("symbol", symbol), zap.Error(err),
			zap.String("request_id", requestID(r.Context())))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stockInfoResponse{
		Name:          sum.LongName,
		Symbol:        symbol,
		CurrentPrice:  deref(sum.RegularMarketPrice),
		DayHigh:       deref(sum.DayHigh),
		DayLow:        deref(sum.DayLow),
		PreviousClose: deref(sum.PreviousClose),
	})
}

type fundResponse struct {
	Success bool `json:"success"`
	mutualfund.Scheme
}

func (s *server) handleMutualFund(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("scheme_code"))
	if code == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Scheme code is required"})
		return
	}
	writeJSON(w, http.StatusOK, fundResponse{Success: true, Scheme: s.funds.LatestOrPlaceholder(r.Context(), code)})
}

type portfolioBody struct {
	Symbol string `json:"symbol"`
}

type portfolioResponse struct {
	Stocks []quote.Quote `json:"stocks"`
}

func (s *server) handleListPortfolio(w http.ResponseWriter, r *http.Request) {
	c, _ := session.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, portfolioResponse{Stocks: s.portfolio.List(r.Context(), c.Email)})
}

func (s *server) handleAddPortfolio(w http.ResponseWriter, r *http.Request) {
	var b portfolioBody
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid JSON body"})
			return
		}
	} else {
		b.Symbol = r.PostFormValue("symbol")
	}

	c, _ := session.UserFromContext(r.Context())
	stored, err := s.portfolio.Add(r.Context(), c.Email, b.Symbol)
	if errors.Is(err, portfolio.ErrMissingSymbol) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": resolver.MissingSymbolReason})
		return
	}
	if err != nil {
		s.log.Error("adding holding", zap.Error(err), zap.String("request_id", requestID(r.Context())))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "internal server error"})
		return
	}
	base := quote.BaseSymbol(stored)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"symbol":  stored,
		"message": "Added " + base + " to your portfolio",
	})
}

type quotesResponse struct {
	Quotes []quote.Quote `json:"quotes"`
}

type postBody struct {
	Symbols []string `json:"symbols" validate:"required,min=1,max=100,dive,required"`
}

func (s *server) handleGetQuotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("symbols")
	if strings.TrimSpace(q) == "" {
		http.Error(w, "missing symbols query param", http.StatusBadRequest)
		return
	}
	symbols := splitCSV(q)
	if len(symbols) > s.maxBatch {
		http.Error(w, tooMany(s.maxBatch), http.StatusBadRequest)
		return
	}
	s.writeQuotes(w, r.Context(), symbols)
}

func (s *server) handlePostQuotes(w http.ResponseWriter, r *http.Request) {
	var b postBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(b); err != nil {
		http.Error(w, "symbols must hold 1 to 100 non-empty entries", http.StatusBadRequest)
		return
	}
	if len(b.Symbols) > s.maxBatch {
		http.Error(w, tooMany(s.maxBatch), http.StatusBadRequest)
		return
	}
	s.writeQuotes(w, r.Context(), b.Symbols)
}

// writeQuotes resolves symbols concurrently, keeping request order.
func (s *server) writeQuotes(w http.ResponseWriter, ctx context.Context, symbols []string) {
	out := make([]quote.Quote, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			out[i] = s.quotes.Resolve(gctx, quote.Normalize(sym))
			return nil
		})
	}
	_ = g.Wait()
	writeJSON(w, http.StatusOK, quotesResponse{Quotes: out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func tooMany(n int) string {
	return fmt.Sprintf("too many symbols (max %d)", n)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
