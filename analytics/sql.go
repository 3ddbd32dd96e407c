package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/quantumauth-io/credchain/database"
)

const (
	insertEvent = `INSERT INTO analytics_events (id, event_type, event_data, wallet_address, user_agent, ip_address, url, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	upsertDaily = `INSERT INTO daily_analytics (date, total_visitors, new_users, credentials_issued, verifications,
	wallet_connections, page_views, unique_visitors)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (date) DO UPDATE SET
		total_visitors = daily_analytics.total_visitors + EXCLUDED.total_visitors,
		new_users = daily_analytics.new_users + EXCLUDED.new_users,
		credentials_issued = daily_analytics.credentials_issued + EXCLUDED.credentials_issued,
		verifications = daily_analytics.verifications + EXCLUDED.verifications,
		wallet_connections = daily_analytics.wallet_connections + EXCLUDED.wallet_connections,
		page_views = daily_analytics.page_views + EXCLUDED.page_views,
		unique_visitors = daily_analytics.unique_visitors + EXCLUDED.unique_visitors`

	selectDaily = `SELECT to_char(date, 'YYYY-MM-DD'), total_visitors, new_users, credentials_issued, verifications,
	wallet_connections, page_views, unique_visitors
	FROM daily_analytics ORDER BY date DESC LIMIT $1`

	visitedOn = `SELECT EXISTS (SELECT 1 FROM analytics_events
	WHERE event_type = $1 AND created_at >= $2 AND created_at < $3
	AND coalesce(wallet_address, ip_address) = $4)`

	countEvents  = `SELECT count(*) FROM analytics_events`
	countWallets = `SELECT count(DISTINCT wallet_address) FROM analytics_events WHERE wallet_address IS NOT NULL`
)

type SQLStore struct {
	db database.Database
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db database.Database) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Insert(ctx context.Context, e *Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return errors.Wrap(err, "encode event data")
	}
	_, err = s.db.Exec(ctx, insertEvent,
		e.ID, e.Type, string(data),
		nullable(e.WalletAddress), nullable(e.UserAgent), nullable(e.IPAddress), nullable(e.URL),
		e.CreatedAt,
	)
	return errors.Wrap(err, "insert analytics event")
}

func (s *SQLStore) UpsertDaily(ctx context.Context, day time.Time, d DailyDelta) error {
	_, err := s.db.Exec(ctx, upsertDaily, dayOf(day),
		d.TotalVisitors, d.NewUsers, d.CredentialsIssued, d.Verifications,
		d.WalletConnections, d.PageViews, d.UniqueVisitors,
	)
	return errors.Wrap(err, "upsert daily analytics")
}

func (s *SQLStore) VisitedOn(ctx context.Context, day time.Time, visitor string) (bool, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	row, err := s.db.QueryRow(ctx, visitedOn, EventPageView, start, start.Add(24*time.Hour), visitor)
	if err != nil {
		return false, errors.Wrap(err, "query visitor")
	}
	var seen bool
	if err := row.Scan(&seen); err != nil {
		return false, errors.Wrap(err, "query visitor")
	}
	return seen, nil
}

func (s *SQLStore) Daily(ctx context.Context, limit int) ([]Daily, error) {
	rows, err := s.db.Query(ctx, selectDaily, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query daily analytics")
	}
	defer rows.Close()

	out := []Daily{}
	for rows.Next() {
		var d Daily
		if err := rows.Scan(&d.Date, &d.TotalVisitors, &d.NewUsers, &d.CredentialsIssued,
			&d.Verifications, &d.WalletConnections, &d.PageViews, &d.UniqueVisitors); err != nil {
			return nil, errors.Wrap(err, "scan daily analytics")
		}
		out = append(out, d)
	}
	return out, errors.Wrap(rows.Err(), "query daily analytics")
}

func (s *SQLStore) CountEvents(ctx context.Context) (int64, error) {
	return s.count(ctx, countEvents)
}

func (s *SQLStore) CountWallets(ctx context.Context) (int64, error) {
	return s.count(ctx, countWallets)
}

func (s *SQLStore) count(ctx context.Context, query string) (int64, error) {
	row, err := s.db.QueryRow(ctx, query)
	if err != nil {
		return 0, errors.Wrap(err, "count analytics")
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count analytics")
	}
	return n, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
