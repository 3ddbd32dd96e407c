package credential

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quantumauth-io/credchain/log"
)

type Store interface {
	Create(ctx context.Context, c *Credential) error
	ListByStudent(ctx context.Context, wallet string) ([]Credential, error)
	ListByIssuer(ctx context.Context, wallet string) ([]Credential, error)
	GetByHash(ctx context.Context, hash string) (*Credential, error)
	Count(ctx context.Context) (int64, error)
}

// Cache is satisfied by redis.Cache.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

// Observer is satisfied by metrics.Metrics.
type Observer interface {
	ObserveIssued()
	ObserveVerification(found bool)
}

type nopObserver struct{}

func (nopObserver) ObserveIssued()            {}
func (nopObserver) ObserveVerification(bool) {}

type Service struct {
	store    Store
	cache    Cache
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = log.OrNop(s.logger)
	return s
}

func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Credential, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	metadata := maps.Clone(req.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	c := &Credential{
		ID:              uuid.NewString(),
		StudentWallet:   req.StudentWallet,
		IssuerWallet:    req.IssuerWallet,
		Hash:            Hash(req, now),
		DocumentType:    req.DocumentType,
		InstitutionName: req.InstitutionName,
		StudentName:     req.StudentName,
		IssueDate:       req.IssueDate,
		Metadata:        metadata,
		Status:          StatusIssued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}

	s.observer.ObserveIssued()
	s.logger.Info("credential issued",
		zap.String("id", c.ID),
		zap.String("hash", c.Hash),
		zap.String("issuer", c.IssuerWallet),
	)
	return c, nil
}

func (s *Service) ListByStudent(ctx context.Context, wallet string) ([]Credential, error) {
	return s.store.ListByStudent(ctx, NormalizeWallet(wallet))
}

func (s *Service) ListByIssuer(ctx context.Context, wallet string) ([]Credential, error) {
	return s.store.ListByIssuer(ctx, NormalizeWallet(wallet))
}

// Verify looks a credential up by hash, consulting the cache first.
// Cache failures are logged and fall through to the store.
func (s *Service) Verify(ctx context.Context, hash string) (*Credential, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, ErrNotFound
	}

	if s.cache != nil {
		var cached Credential
		ok, err := s.cache.Get(ctx, hash, &cached)
		if err != nil {
			s.logger.Warn("credential cache read failed", zap.String("hash", hash), zap.Error(err))
		} else if ok {
			s.observer.ObserveVerification(true)
			return &cached, nil
		}
	}

	c, err := s.store.GetByHash(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		s.observer.ObserveVerification(false)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.observer.ObserveVerification(true)

	if s.cache != nil {
		if err := s.cache.Set(ctx, hash, c); err != nil {
			s.logger.Warn("credential cache write failed", zap.String("hash", hash), zap.Error(err))
		}
	}
	return c, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}
