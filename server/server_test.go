package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/quantumauth-io/credchain/analytics"
	"github.com/quantumauth-io/credchain/credential"
	"github.com/quantumauth-io/credchain/ethrpc"
	"github.com/quantumauth-io/credchain/metrics"
)

const testAddress = "0x1234567890abcdef1234567890abcdef12345678"

type fakeChain struct {
	balance *ethrpc.BalanceResult
	chainID *ethrpc.ChainIDResult
	block   *ethrpc.BlockNumberResult
	err     error
	asked   []string
}

func (f *fakeChain) GetBalance(_ context.Context, address string) (*ethrpc.BalanceResult, error) {
	f.asked = append(f.asked, address)
	return f.balance, f.err
}

func (f *fakeChain) ChainID(context.Context) (*ethrpc.ChainIDResult, error) {
	return f.chainID, f.err
}

func (f *fakeChain) BlockNumber(context.Context) (*ethrpc.BlockNumberResult, error) {
	return f.block, f.err
}

func healthyChain() *fakeChain {
	primary := &ethrpc.Result{Endpoint: ethrpc.Endpoint{Name: "primary"}}
	return &fakeChain{
		balance: &ethrpc.BalanceResult{Result: primary, Wei: "0xde0b6b3a7640000", Native: "1.0000"},
		chainID: &ethrpc.ChainIDResult{Result: primary, Hex: "0x38", ID: big.NewInt(56)},
		block:   &ethrpc.BlockNumberResult{Result: primary, Hex: "0x10", Number: big.NewInt(16)},
	}
}

type HandlerSuite struct {
	suite.Suite
	chain   *fakeChain
	metrics *metrics.Metrics
	handler http.Handler
}

func (s *HandlerSuite) SetupTest() {
	s.chain = healthyChain()
	s.metrics = metrics.New("credchain")
	creds := credential.NewService(credential.NewMemoryStore())
	events := analytics.NewService(analytics.NewMemoryStore(), analytics.WithCredentials(creds))
	s.handler = New(Config{}, s.chain, creds, events, WithMetrics(s.metrics)).Handler()
}

func (s *HandlerSuite) do(method, target, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (s *HandlerSuite) TestGetBalance() {
	rec, out := s.do(http.MethodPost, "/api/blockchain", `{"action":"getBalance","data":{"address":"`+testAddress+`"}}`)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("0xde0b6b3a7640000", out["result"])
	s.Equal("1.0000", out["balance"])
	s.Equal("2.0", out["jsonrpc"])
	s.Equal(false, out["degraded"])
	s.Equal([]string{testAddress}, s.chain.asked)
	s.NotEmpty(rec.Header().Get(RequestIDHeader))
}

func (s *HandlerSuite) TestGetBalanceValidation() {
	rec, out := s.do(http.MethodPost, "/api/blockchain", `{"action":"getBalance","data":{}}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Address is required", out["error"])

	rec, out = s.do(http.MethodPost, "/api/blockchain", `{"action":"getBalance","data":{"address":"0x123"}}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Invalid address", out["error"])
	s.Empty(s.chain.asked)
}

func (s *HandlerSuite) TestGetBalanceExhausted() {
	s.chain.err = &ethrpc.ExhaustedError{Method: ethrpc.MethodGetBalance}

	rec, out := s.do(http.MethodPost, "/api/blockchain", `{"action":"getBalance","data":{"address":"`+testAddress+`"}}`)
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal("All RPC endpoints failed", out["error"])
}

func (s *HandlerSuite) TestGetChainID() {
	rec, out := s.do(http.MethodPost, "/api/blockchain", `{"action":"getChainId"}`)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("0x38", out["result"])
	s.Equal("56", out["chainId"])
	s.Equal("BNB Smart Chain", out["network"])

	s.chain.err = errors.New("dial tcp: refused")
	rec, out = s.do(http.MethodPost, "/api/blockchain", `{"action":"getChainId"}`)
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal("Failed to get chain ID", out["error"])
}

func (s *HandlerSuite) TestInvalidAction() {
	rec, out := s.do(http.MethodPost, "/api/blockchain", `{"action":"sendTransaction"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Invalid action", out["error"])

	rec, _ = s.do(http.MethodPost, "/api/blockchain", `{not json`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestCredentialLifecycle() {
	body := `{"student_wallet":"0xAAA","issuer_wallet":"0xBBB","document_type":"Diploma",
		"institution_name":"Example University","student_name":"Alex Doe","issue_date":"2024-05-01",
		"metadata":{"grade":"A"}}`
	rec, out := s.do(http.MethodPost, "/api/credentials", body)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(true, out["success"])
	data := out["data"].(map[string]any)
	hash := data["credential_hash"].(string)
	s.True(strings.HasPrefix(hash, "0x"))
	s.Equal("0xaaa", data["student_wallet"])
	s.Equal("issued", data["status"])

	rec, out = s.do(http.MethodGet, "/api/credentials?wallet=0xAAA", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Len(out["data"], 1)

	rec, out = s.do(http.MethodGet, "/api/credentials?wallet=0xbbb&type=issuer", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Len(out["data"], 1)

	rec, out = s.do(http.MethodGet, "/api/credentials?wallet=0xbbb", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal([]any{}, out["data"])

	rec, out = s.do(http.MethodGet, "/api/credentials?hash="+hash, "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(hash, out["data"].(map[string]any)["credential_hash"])

	rec, out = s.do(http.MethodGet, "/api/credentials?hash=0xdeadbeef", "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(false, out["success"])
}

func (s *HandlerSuite) TestCredentialValidation() {
	rec, out := s.do(http.MethodGet, "/api/credentials", "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("wallet address or hash is required", out["error"])

	rec, out = s.do(http.MethodPost, "/api/credentials", `{"student_wallet":"0xAAA"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(out["error"], "Missing required fields")

	rec, _ = s.do(http.MethodPost, "/api/credentials", `[`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestAnalytics() {
	rec, out := s.do(http.MethodPost, "/api/analytics", "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Empty request body", out["error"])

	rec, out = s.do(http.MethodPost, "/api/analytics", `{bad`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Invalid JSON in request body", out["error"])

	rec, out = s.do(http.MethodPost, "/api/analytics", `{"event_type":42}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("event_type is required and must be a string", out["error"])

	rec, out = s.do(http.MethodPost, "/api/analytics",
		`{"event_type":"page_view","event_data":{"path":"/verify"},"wallet_address":"0xAbC"}`,
		"X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(true, out["success"])

	rec, out = s.do(http.MethodGet, "/api/analytics?days=abc", "")
	s.Equal(http.StatusOK, rec.Code)
	data := out["data"].(map[string]any)
	summary := data["summary"].(map[string]any)
	s.EqualValues(1, summary["totalUsers"])
	s.EqualValues(1, summary["totalEvents"])
	s.EqualValues(0, summary["totalCredentials"])
	s.Len(data["dailyAnalytics"], 1)
}

func (s *HandlerSuite) TestHealthAndMetrics() {
	rec, out := s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("ok", out["status"])

	rec, out = s.do(http.MethodGet, "/readyz", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("ok", out["rpc"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	s.handler.ServeHTTP(mrec, req)
	s.Equal(http.StatusOK, mrec.Code)
	s.Contains(mrec.Body.String(), `credchain_http_requests_total{method="GET",route="GET /healthz",status="200"} 1`)
}

func (s *HandlerSuite) TestRequestIDIsEchoed() {
	rec, _ := s.do(http.MethodGet, "/healthz", "", RequestIDHeader, "abc-123")
	s.Equal("abc-123", rec.Header().Get(RequestIDHeader))
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyReportsFailures(t *testing.T) {
	chain := healthyChain()
	chain.err = ethrpc.ErrAllEndpointsFailed
	srv := New(Config{}, chain, credential.NewService(credential.NewMemoryStore()),
		analytics.NewService(analytics.NewMemoryStore()), WithDatabase(failingPinger{}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestRateLimitPerIP(t *testing.T) {
	srv := New(Config{RateLimit: 1, RateBurst: 2}, healthyChain(),
		credential.NewService(credential.NewMemoryStore()), analytics.NewService(analytics.NewMemoryStore()))
	h := srv.Handler()

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/credentials?wallet=0xabc", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("198.51.100.1"))
	assert.Equal(t, http.StatusOK, call("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("198.51.100.1"))
	assert.Equal(t, http.StatusOK, call("198.51.100.2"))

	// health checks are never limited
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Real-IP", "198.51.100.1")
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitedRequestsAreObserved(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.New("credchain")
	srv := New(Config{RateLimit: 1, RateBurst: 1}, healthyChain(),
		credential.NewService(credential.NewMemoryStore()), analytics.NewService(analytics.NewMemoryStore()),
		WithMetrics(m), WithLogger(zap.New(core)))
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/credentials?wallet=0xabc", nil)
		req.Header.Set("X-Real-IP", "198.51.100.3")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "GET /api/credentials", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "429")))

	access := logs.FilterMessage("http request").FilterField(zap.Int("status", http.StatusTooManyRequests))
	assert.Equal(t, 1, access.Len())
}

func TestIPLimiterSweepsIdleEntries(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newIPLimiter(1, 1)
	l.now = func() time.Time { return now }

	require.True(t, l.allow("a"))
	now = now.Add(limiterIdleTTL + time.Second)
	require.True(t, l.allow("b"))

	assert.Len(t, l.entries, 1)
	assert.Contains(t, l.entries, "b")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.9")
	assert.Equal(t, "198.51.100.9", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestRecoverPanics(t *testing.T) {
	srv := New(Config{}, healthyChain(), nil, nil)
	h := srv.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
