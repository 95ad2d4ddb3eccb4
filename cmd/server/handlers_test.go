package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stockdash/internal/cache"
	"stockdash/internal/mutualfund"
	"stockdash/internal/portfolio"
	"stockdash/internal/quote"
	"stockdash/internal/ratelimit"
	"stockdash/internal/reference"
	"stockdash/internal/resolver"
	"stockdash/internal/session"
	"stockdash/internal/yahoo"
)

type fakeFetcher struct {
	mu    sync.Mutex
	live  map[string]quote.Quote
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, symbol string) quote.Quote {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if q, ok := f.live[symbol]; ok {
		return q
	}
	return quote.Failure("Could not fetch stock data")
}

type fakeSummary struct {
	sum yahoo.Summary
	err error
	got string
}

func (f *fakeSummary) Summary(_ context.Context, symbol string) (yahoo.Summary, error) {
	f.got = symbol
	return f.sum, f.err
}

type fakeFunds struct{}

func (fakeFunds) LatestOrPlaceholder(_ context.Context, code string) mutualfund.Scheme {
	return mutualfund.Placeholder(code, time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC))
}

type testEnv struct {
	handler http.Handler
	fetcher *fakeFetcher
	details *fakeSummary
	cookie  *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	f := &fakeFetcher{live: map[string]quote.Quote{
		"ITC.NS":    quote.New("ITC", "ITC Limited", 431.5, 1.2),
		"ZOMATO.BO": quote.New("ZOMATO", "Zomato Ltd.", 210.35, -0.8),
	}}
	res := resolver.New(cache.New(), reference.Default(), f,
		resolver.WithPacer(ratelimit.Jitter{}),
		resolver.WithRandom(rand.New(rand.NewPCG(1, 1))),
	)
	sessions, err := session.NewManager(
		session.ParseCredentials("demo@example.com:demo123:Demo User"),
		session.Config{Secret: "handler-test-secret-0123"},
	)
	require.NoError(t, err)

	details := &fakeSummary{}
	s := &server{
		quotes:           res,
		details:          details,
		portfolio:        portfolio.New(reference.Default(), f, portfolio.WithRandom(rand.New(rand.NewPCG(5, 6)))),
		funds:            fakeFunds{},
		sessions:         sessions,
		firebase:         map[string]string{"apiKey": "k", "projectId": "p"},
		log:              zap.NewNop(),
		validate:         validator.New(),
		maxBatch:         3,
		batchConcurrency: 2,
	}
	env := &testEnv{handler: chain(s.routes(), zap.NewNop()), fetcher: f, details: details}

	form := url.Values{"email": {"demo@example.com"}, "password": {"demo123"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	env.cookie = cookies[0]
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(e.cookie)
	return e.do(req)
}

func TestLogin_Rejected(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"demo@example.com","password":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := env.do(req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.JSONEq(t, `{"success":false,"error":"Invalid email or password"}`, rr.Body.String())
	require.Empty(t, rr.Result().Cookies())
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"demo@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := env.do(req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	rr := env.get("/api/me")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"email":"demo@example.com","name":"Demo User"}`, rr.Body.String())
}

func TestAPI_RequiresSession(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/stock-data?symbol=TCS", "/get_stock_info?symbol=TCS", "/api/mutual-fund?scheme_code=1", "/api/quotes?symbols=TCS", "/api/portfolio"} {
		rr := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(httptest.NewRequest(http.MethodPost, "/logout", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, -1, cookies[0].MaxAge)
}

func TestLogout_AcceptsGet(t *testing.T) {
	env := newTestEnv(t)
	rr := env.get("/logout")
	require.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, -1, cookies[0].MaxAge)
}

func (e *testEnv) addHolding(t *testing.T, symbol string) map[string]any {
	t.Helper()
	form := url.Values{"symbol": {symbol}}
	req := httptest.NewRequest(http.MethodPost, "/api/portfolio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(e.cookie)
	rr := e.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestPortfolio_Add(t *testing.T) {
	cases := []struct {
		name   string
		symbol string
		want   string
		calls  int
	}{
		{name: "table symbol", symbol: "reliance", want: "RELIANCE.NS", calls: 0},
		{name: "primary exchange", symbol: "itc", want: "ITC.NS", calls: 1},
		{name: "secondary exchange", symbol: "zomato", want: "ZOMATO.BO", calls: 2},
		{name: "nothing prices", symbol: "NEWCO", want: "NEWCO.NS", calls: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)

			body := env.addHolding(t, tc.symbol)

			require.Equal(t, true, body["success"])
			require.Equal(t, tc.want, body["symbol"])
			require.Equal(t, tc.calls, env.fetcher.calls)
		})
	}
}

func TestPortfolio_AddJSONAndBlank(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/portfolio", strings.NewReader(`{"symbol":" tcs "}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(env.cookie)
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true,"symbol":"TCS.NS","message":"Added TCS to your portfolio"}`, rr.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/portfolio", strings.NewReader(`{"symbol":""}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(env.cookie)
	rr = env.do(req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.JSONEq(t, `{"success":false,"error":"Symbol is required"}`, rr.Body.String())
}

func TestPortfolio_List(t *testing.T) {
	env := newTestEnv(t)
	for _, sym := range []string{"TCS", "ITC", "ZOMATO", "NEWCO"} {
		env.addHolding(t, sym)
	}

	rr := env.get("/api/portfolio")

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Stocks []quote.Quote `json:"stocks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Stocks, 4)

	require.Equal(t, "Tata Consultancy Services Ltd.", body.Stocks[0].CompanyName)
	require.Equal(t, 3456.8, body.Stocks[0].CurrentPrice)
	require.Equal(t, "ITC Limited", body.Stocks[1].CompanyName)
	require.Equal(t, "Zomato Ltd.", body.Stocks[2].CompanyName)
	require.Equal(t, 210.35, body.Stocks[2].CurrentPrice)

	placeholder := body.Stocks[3]
	require.True(t, placeholder.Success)
	require.Equal(t, "NEWCO", placeholder.Symbol)
	require.Equal(t, "NEWCO Stock", placeholder.CompanyName)
	require.GreaterOrEqual(t, placeholder.CurrentPrice, 500.0)
	require.LessOrEqual(t, placeholder.CurrentPrice, 3000.0)
	require.GreaterOrEqual(t, placeholder.Change, -2.0)
	require.LessOrEqual(t, placeholder.Change, 2.0)
}

func TestStockData(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		path string
		want string
	}{
		{
			name: "missing symbol",
			path: "/api/stock-data",
			want: `{"success":false,"error":"Symbol is required"}`,
		},
		{
			name: "table symbol, lower case input",
			path: "/api/stock-data?symbol=%20reliance%20",
			want: `{"success":true,"symbol":"RELIANCE","company_name":"Reliance Industries Ltd.","current_price":2891.7,"change":1.25}`,
		},
		{
			name: "static only hit",
			path: "/api/stock-data?symbol=TCS.NS&static_only=true",
			want: `{"success":true,"symbol":"TCS","company_name":"Tata Consultancy Services Ltd.","current_price":3456.8,"change":-0.5}`,
		},
		{
			name: "static only miss",
			path: "/api/stock-data?symbol=ITC&static_only=true",
			want: `{"success":false,"error":"No static data available"}`,
		},
		{
			name: "live",
			path: "/api/stock-data?symbol=itc",
			want: `{"success":true,"symbol":"ITC","company_name":"ITC Limited","current_price":431.5,"change":1.2}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.get(tc.path)
			require.Equal(t, http.StatusOK, rr.Code)
			require.JSONEq(t, tc.want, rr.Body.String())
		})
	}
}

func TestStockData_UnknownSymbolIsAlwaysSuccessful(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/api/stock-data?symbol=UNKNOWNXYZ")

	require.Equal(t, http.StatusOK, rr.Code)
	var q quote.Quote
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &q))
	require.True(t, q.Success)
	require.Equal(t, "UNKNOWNXYZ Stock", q.CompanyName)
	require.GreaterOrEqual(t, q.CurrentPrice, 500.0)
	require.LessOrEqual(t, q.CurrentPrice, 3000.0)

	again := env.get("/api/stock-data?symbol=UNKNOWNXYZ")
	require.Equal(t, rr.Body.String(), again.Body.String())
}

func TestStockInfo(t *testing.T) {
	price, high, low, prev := 431.5, 433.0, 428.1, 426.4

	t.Run("found", func(t *testing.T) {
		env := newTestEnv(t)
		env.details.sum = yahoo.Summary{LongName: "ITC Limited", RegularMarketPrice: &price, DayHigh: &high, DayLow: &low, PreviousClose: &prev}

		rr := env.get("/get_stock_info?symbol=ITC")

		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "ITC.NS", env.details.got)
		require.JSONEq(t, `{"name":"ITC Limited","symbol":"ITC.NS","currentPrice":431.5,"dayHigh":433,"dayLow":428.1,"previousClose":426.4}`, rr.Body.String())
	})

	t.Run("keeps existing suffix", func(t *testing.T) {
		env := newTestEnv(t)
		env.details.sum = yahoo.Summary{LongName: "ITC Limited", RegularMarketPrice: &price}
		rr := env.get("/get_stock_info?symbol=ITC.NS")
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "ITC.NS", env.details.got)
	})

	t.Run("no price", func(t *testing.T) {
		env := newTestEnv(t)
		env.details.sum = yahoo.Summary{LongName: "ITC Limited"}
		rr := env.get("/get_stock_info?symbol=ITC")
		require.Equal(t, http.StatusNotFound, rr.Code)
		require.JSONEq(t, `{"error":"Stock not found or not available"}`, rr.Body.String())
	})

	t.Run("not found", func(t *testing.T) {
		env := newTestEnv(t)
		env.details.err = yahoo.ErrNotFound
		rr := env.get("/get_stock_info?symbol=NOPE")
		require.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("client failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.details.err = errors.New("performing request: connection refused")
		rr := env.get("/get_stock_info?symbol=ITC")
		require.Equal(t, http.StatusInternalServerError, rr.Code)
		require.JSONEq(t, `{"error":"performing request: connection refused"}`, rr.Body.String())
	})
}

func TestMutualFund(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/api/mutual-fund")
	require.JSONEq(t, `{"success":false,"error":"Scheme code is required"}`, rr.Body.String())

	rr = env.get("/api/mutual-fund?scheme_code=%20120465%20")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true,"scheme_code":"120465","scheme_name":"Mutual Fund 120465","nav":"32.456","date":"07-03-2025"}`, rr.Body.String())
}

func TestFirebaseConfig_IsPublic(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(httptest.NewRequest(http.MethodGet, "/firebase-config", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"apiKey":"k","projectId":"p"}`, rr.Body.String())
}

func TestQuotes_GetKeepsOrder(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/api/quotes?symbols=itc,%20TCS,,INFY.BO")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp quotesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Quotes, 3)
	require.Equal(t, "ITC", resp.Quotes[0].Symbol)
	require.Equal(t, "TCS", resp.Quotes[1].Symbol)
	require.Equal(t, "INFY", resp.Quotes[2].Symbol)
}

func TestQuotes_Limits(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/api/quotes?symbols=A,B,C,D")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "max 3")

	rr = env.get("/api/quotes?symbols=%20")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQuotes_Post(t *testing.T) {
	env := newTestEnv(t)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/quotes", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(env.cookie)
		return env.do(req)
	}

	rr := post(`{"symbols":["RELIANCE","WIPRO"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp quotesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "Wipro Ltd.", resp.Quotes[1].CompanyName)

	require.Equal(t, http.StatusBadRequest, post(`{"symbols":[]}`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"symbols":["A",""]}`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"symbols":["A"],"extra":1}`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"symbols":["A","B","C","D"]}`).Code)
}

func TestMiddleware_RequestIDAndGzip(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := env.do(req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	require.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	require.Equal(t, "abc-123", env.do(req).Header().Get("X-Request-ID"))
}

func TestMiddleware_Preflight(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(httptest.NewRequest(http.MethodOptions, "/api/stock-data", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestMiddleware_RecoversPanic(t *testing.T) {
	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), zap.NewNop())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMiddleware_GzipNegotiation(t *testing.T) {
	cases := []struct {
		accept string
		want   string
	}{
		{accept: "deflate, gzip;q=0.8", want: "gzip"},
		{accept: "GZIP", want: "gzip"},
		{accept: "x-gzip", want: ""},
		{accept: "", want: ""},
	}
	env := newTestEnv(t)
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Accept-Encoding", tc.accept)
		require.Equal(t, tc.want, env.do(req).Header().Get("Content-Encoding"), tc.accept)
	}
}

func TestMiddleware_LimitsBody(t *testing.T) {
	env := newTestEnv(t)

	body := `{"symbols":["` + strings.Repeat("A", maxRequestBody) + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/quotes", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(env.cookie)
	rr := env.do(req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "invalid JSON body")
}
