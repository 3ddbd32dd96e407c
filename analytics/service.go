package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantumauth-io/credchain/log"
)

type Store interface {
	Insert(ctx context.Context, e *Event) error
	UpsertDaily(ctx context.Context, day time.Time, delta DailyDelta) error
	// VisitedOn reports whether visitor already has a page_view on day.
	VisitedOn(ctx context.Context, day time.Time, visitor string) (bool, error)
	Daily(ctx context.Context, limit int) ([]Daily, error)
	CountEvents(ctx context.Context) (int64, error)
	CountWallets(ctx context.Context) (int64, error)
}

// CredentialCounter is satisfied by credential.Service.
type CredentialCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Observer is satisfied by metrics.Metrics.
type Observer interface {
	ObserveEvent(eventType string)
}

type nopObserver struct{}

func (nopObserver) ObserveEvent(string) {}

type Service struct {
	store       Store
	credentials CredentialCounter
	logger      *zap.Logger
	observer    Observer
	now         func() time.Time
}

type Option func(*Service)

func WithCredentials(c CredentialCounter) Option {
	return func(s *Service) { s.credentials = c }
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

// Track stores the event and bumps the daily counters for known types.
// A page_view also counts a unique visitor the first time its wallet (or
// IP) is seen that day. A failed daily update is logged and does not fail
// the call.
func (s *Service) Track(ctx context.Context, e Event) (*Event, error) {
	e.Type = strings.TrimSpace(e.Type)
	if e.Type == "" {
		return nil, ErrTypeRequired
	}
	e.ID = uuid.NewString()
	e.Data = Sanitize(e.Data)
	e.WalletAddress = strings.ToLower(strings.TrimSpace(e.WalletAddress))
	e.CreatedAt = s.now().UTC()

	delta, ok := DeltaFor(e.Type)
	if e.Type == EventPageView {
		delta.UniqueVisitors = s.firstVisit(ctx, &e)
	}

	if err := s.store.Insert(ctx, &e); err != nil {
		return nil, err
	}
	s.observer.ObserveEvent(e.Type)

	if ok {
		if err := s.store.UpsertDaily(ctx, e.CreatedAt, delta); err != nil {
			s.logger.Warn("Failed to update daily analytics", zap.String("event_type", e.Type), zap.Error(err))
		}
	}
	return &e, nil
}

func (s *Service) firstVisit(ctx context.Context, e *Event) int64 {
	visitor := visitorKey(e)
	if visitor == "" {
		return 0
	}
	seen, err := s.store.VisitedOn(ctx, e.CreatedAt, visitor)
	if err != nil {
		s.logger.Warn("Failed to check unique visitor", zap.Error(err))
		return 0
	}
	if seen {
		return 0
	}
	return 1
}

// Summary never fails on a single count: errors are logged and reported as zero.
func (s *Service) Summary(ctx context.Context) Summary {
	var out Summary
	var err error

	if out.TotalUsers, err = s.store.CountWallets(ctx); err != nil {
		s.logger.Error("Error getting users count", zap.Error(err))
	}
	if s.credentials != nil {
		if out.TotalCredentials, err = s.credentials.Count(ctx); err != nil {
			s.logger.Error("Error getting credentials count", zap.Error(err))
		}
	}
	if out.TotalEvents, err = s.store.CountEvents(ctx); err != nil {
		s.logger.Error("Error getting events count", zap.Error(err))
	}

	recent, err := s.store.Daily(ctx, 1)
	if err != nil {
		s.logger.Error("Error getting recent analytics", zap.Error(err))
	} else if len(recent) > 0 {
		out.RecentAnalytics = &recent[0]
	}
	return out
}

// Daily returns up to days rows, newest first.
func (s *Service) Daily(ctx context.Context, days int) ([]Daily, error) {
	return s.store.Daily(ctx, ClampDays(days))
}
