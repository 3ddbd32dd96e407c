package ethrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrAllEndpointsFailed is matched by the error returned when every
	// candidate endpoint failed.
	ErrAllEndpointsFailed = errors.New("ethrpc: all endpoints failed")
	ErrAddressRequired    = errors.New("ethrpc: address is required")
	ErrNoEndpoints        = errors.New("ethrpc: no endpoints configured")
	ErrMalformedResponse  = errors.New("ethrpc: response is not a JSON-RPC object")
)

// Decoder validates a raw result inside the attempt that produced it. A
// non-nil error counts as an endpoint failure and the next endpoint is tried.
type Decoder func(raw json.RawMessage) error

// Observer receives per-attempt outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveAttempt(method string, endpoint string, err error, took time.Duration)
	ObserveExhausted(method string)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, string, error, time.Duration) {}
func (nopObserver) ObserveExhausted(string)                             {}

// Attempt records one failed endpoint.
type Attempt struct {
	Endpoint Endpoint
	Err      error
}

// Result is a successful call. Failed lists the endpoints that were tried
// and failed before Endpoint answered.
type Result struct {
	Value    json.RawMessage
	Endpoint Endpoint
	Failed   []Attempt
}

// Degraded reports whether the call only succeeded after falling back.
func (r *Result) Degraded() bool {
	return r != nil && len(r.Failed) > 0
}

// ExhaustedError is returned when no endpoint produced a result.
type ExhaustedError struct {
	Method   string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var errs error
	for _, a := range e.Attempts {
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", a.Endpoint.Name, a.Err))
	}
	return fmt.Sprintf("ethrpc: all endpoints failed for %s (%d tried): %v", e.Method, len(e.Attempts), errs)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllEndpointsFailed
}

// Unwrap exposes the per-endpoint causes to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Client resolves JSON-RPC calls by walking an ordered endpoint list.
// The list is fixed at construction; a Client is safe for concurrent use.
type Client struct {
	endpoints       []Endpoint
	network         Network
	timeout         time.Duration
	chainIDFailover bool

	http     *http.Client
	logger   *zap.Logger
	observer Observer
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithEndpoints replaces the list derived from Config.
func WithEndpoints(eps []Endpoint) Option {
	return func(c *Client) {
		c.endpoints = append([]Endpoint(nil), eps...)
	}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{
		endpoints:       Endpoints(cfg),
		network:         NetworkFor(cfg.ChainID),
		timeout:         cfg.AttemptTimeout,
		chainIDFailover: cfg.ChainIDFailover,
		http:            cfg.HTTPClient,
		logger:          zap.NewNop(),
		observer:        nopObserver{},
	}
	if c.timeout <= 0 {
		c.timeout = DefaultAttemptTimeout
	}
	if c.http == nil {
		c.http = newHTTPClient()
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	c.logger = c.logger.With(zap.String("chainId", c.network.ChainID))
	return c, nil
}

// Endpoints returns a copy of the candidate list in attempt order.
func (c *Client) Endpoints() []Endpoint {
	return append([]Endpoint(nil), c.endpoints...)
}

func (c *Client) Network() Network {
	return c.network
}

// Call tries the first depth endpoints in order (depth <= 0 means all) and
// returns the first result not carrying a JSON-RPC error and accepted by
// decode, which may be nil. Endpoint failures are logged and skipped; only
// exhaustion or ctx cancellation is returned.
func (c *Client) Call(ctx context.Context, method string, params []any, depth int, decode Decoder) (*Result, error) {
	candidates := c.endpoints
	if depth > 0 && depth < len(candidates) {
		candidates = candidates[:depth]
	}

	res := &Result{}
	for _, ep := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ethrpc: %s aborted: %w", method, err)
		}

		start := time.Now()
		raw, err := c.attempt(ctx, ep, method, params)
		if err == nil && decode != nil {
			if derr := decode(raw); derr != nil {
				err = fmt.Errorf("ethrpc: decode %s result: %w", method, derr)
			}
		}
		c.observer.ObserveAttempt(method, ep.Name, err, time.Since(start))
		if err == nil {
			res.Value = raw
			res.Endpoint = ep
			if res.Degraded() {
				c.logger.Info("rpc call recovered via fallback",
					zap.String("method", method),
					zap.String("endpoint", ep.Name),
					zap.Int("failed", len(res.Failed)))
			}
			return res, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ethrpc: %s aborted: %w", method, ctxErr)
		}
		c.logger.Warn("rpc endpoint failed",
			zap.String("method", method),
			zap.String("endpoint", ep.Name),
			zap.String("url", ep.URL),
			zap.Error(err))
		res.Failed = append(res.Failed, Attempt{Endpoint: ep, Err: err})
	}

	c.observer.ObserveExhausted(method)
	c.logger.Error("all rpc endpoints failed", zap.String("method", method), zap.Int("tried", len(res.Failed)))
	return nil, &ExhaustedError{Method: method, Attempts: res.Failed}
}

func (c *Client) attempt(ctx context.Context, ep Endpoint, method string, params []any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return post(ctx, c.http, ep.URL, method, params)
}
