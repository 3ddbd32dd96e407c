package analytics

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

const (
	EventPageView        = "page_view"
	EventWalletConnected = "wallet_connected"
	EventCredentialIssue = "credential_issued"
	EventVerification    = "verification_requested"
)

const (
	DefaultDays = 7
	MaxDays     = 365

	dateLayout = "2006-01-02"
)

var ErrTypeRequired = errors.New("event_type is required and must be a string")

type Event struct {
	ID            string         `json:"id"`
	Type          string         `json:"event_type"`
	Data          map[string]any `json:"event_data"`
	WalletAddress string         `json:"wallet_address,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	IPAddress     string         `json:"ip_address,omitempty"`
	URL           string         `json:"url,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Daily is one row of per-day counters, keyed by UTC date.
type Daily struct {
	Date              string `json:"date"`
	TotalVisitors     int64  `json:"total_visitors"`
	NewUsers          int64  `json:"new_users"`
	CredentialsIssued int64  `json:"credentials_issued"`
	Verifications     int64  `json:"verifications"`
	WalletConnections int64  `json:"wallet_connections"`
	PageViews         int64  `json:"page_views"`
	UniqueVisitors    int64  `json:"unique_visitors"`
}

// DailyDelta is added onto the current day's counters.
type DailyDelta struct {
	TotalVisitors     int64
	NewUsers          int64
	CredentialsIssued int64
	Verifications     int64
	WalletConnections int64
	PageViews         int64
	UniqueVisitors    int64
}

func (d *Daily) apply(delta DailyDelta) {
	d.TotalVisitors += delta.TotalVisitors
	d.NewUsers += delta.NewUsers
	d.CredentialsIssued += delta.CredentialsIssued
	d.Verifications += delta.Verifications
	d.WalletConnections += delta.WalletConnections
	d.PageViews += delta.PageViews
	d.UniqueVisitors += delta.UniqueVisitors
}

type Summary struct {
	TotalUsers       int64  `json:"totalUsers"`
	TotalCredentials int64  `json:"totalCredentials"`
	TotalEvents      int64  `json:"totalEvents"`
	RecentAnalytics  *Daily `json:"recentAnalytics"`
}

// DeltaFor maps an event type onto the daily counters it bumps.
func DeltaFor(eventType string) (DailyDelta, bool) {
	switch eventType {
	case EventPageView:
		return DailyDelta{PageViews: 1, TotalVisitors: 1}, true
	case EventWalletConnected:
		return DailyDelta{WalletConnections: 1}, true
	case EventCredentialIssue:
		return DailyDelta{CredentialsIssued: 1}, true
	case EventVerification:
		return DailyDelta{Verifications: 1}, true
	}
	return DailyDelta{}, false
}

// visitorKey identifies a page viewer: the wallet when connected, else the IP.
func visitorKey(e *Event) string {
	if e.WalletAddress != "" {
		return e.WalletAddress
	}
	return e.IPAddress
}

// Sanitize round-trips data through JSON so only serialisable values are stored.
func Sanitize(data map[string]any) map[string]any {
	if len(data) == 0 {
		return map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return map[string]any{"error": "Failed to serialize event data"}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"error": "Failed to serialize event data"}
	}
	return out
}

// ClampDays applies the default and upper bound to a requested window.
func ClampDays(days int) int {
	if days <= 0 {
		return DefaultDays
	}
	if days > MaxDays {
		return MaxDays
	}
	return days
}

func dayOf(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
