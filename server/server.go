package server

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quantumauth-io/credchain/analytics"
	"github.com/quantumauth-io/credchain/credential"
	"github.com/quantumauth-io/credchain/ethrpc"
	"github.com/quantumauth-io/credchain/log"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	readyTimeout      = 3 * time.Second
	maxBodyBytes      = 1 << 20
)

type Chain interface {
	GetBalance(ctx context.Context, address string) (*ethrpc.BalanceResult, error)
	ChainID(ctx context.Context) (*ethrpc.ChainIDResult, error)
	BlockNumber(ctx context.Context) (*ethrpc.BlockNumberResult, error)
}

type Credentials interface {
	Issue(ctx context.Context, req credential.IssueRequest) (*credential.Credential, error)
	ListByStudent(ctx context.Context, wallet string) ([]credential.Credential, error)
	ListByIssuer(ctx context.Context, wallet string) ([]credential.Credential, error)
	Verify(ctx context.Context, hash string) (*credential.Credential, error)
}

type Analytics interface {
	Track(ctx context.Context, e analytics.Event) (*analytics.Event, error)
	Summary(ctx context.Context) analytics.Summary
	Daily(ctx context.Context, days int) ([]analytics.Daily, error)
}

type Metrics interface {
	ObserveHTTP(method, route string, status int, took time.Duration)
	Handler() http.Handler
}

// Pinger is satisfied by database.Database.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr      string
	RateLimit float64 // per client IP, 0 disables
	RateBurst int
}

type Server struct {
	cfg         Config
	chain       Chain
	credentials Credentials
	analytics   Analytics
	metrics     Metrics
	db          Pinger
	logger      *zap.Logger
	limiter     *ipLimiter
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithMetrics(m Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithDatabase adds a database ping to the readiness probe.
func WithDatabase(p Pinger) Option {
	return func(s *Server) { s.db = p }
}

func New(cfg Config, chain Chain, creds Credentials, events Analytics, opts ...Option) *Server {
	s := &Server{
		cfg:         cfg,
		chain:       chain,
		credentials: creds,
		analytics:   events,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = log.OrNop(s.logger)
	if cfg.RateLimit > 0 {
		s.limiter = newIPLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/blockchain", s.handleBlockchain)
	mux.HandleFunc("GET /api/credentials", s.handleGetCredentials)
	mux.HandleFunc("POST /api/credentials", s.handlePostCredentials)
	mux.HandleFunc("GET /api/analytics", s.handleGetAnalytics)
	mux.HandleFunc("POST /api/analytics", s.handlePostAnalytics)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	var h http.Handler = mux
	h = s.rateLimit(h)
	h = s.observe(h)
	h = requestID(h)
	h = s.recoverPanics(h)
	return h
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	if res, err := s.chain.BlockNumber(ctx); err != nil {
		checks["rpc"] = err.Error()
		status = http.StatusServiceUnavailable
	} else if res.Degraded() {
		checks["rpc"] = "degraded via " + res.Endpoint.Name
	} else {
		checks["rpc"] = "ok"
	}

	writeJSON(w, status, checks)
}
