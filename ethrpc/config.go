package ethrpc

import (
	"net/http"
	"strings"
	"time"
)

const (
	ChainIDMainnet = "56"
	ChainIDTestnet = "97"

	DefaultAttemptTimeout = 5 * time.Second
)

// Endpoint is one JSON-RPC URL. Endpoints have no identity beyond their
// position in the list; Name only labels logs and metrics.
type Endpoint struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Config seeds the endpoint list and bounds each attempt.
type Config struct {
	PrimaryURL     string
	ChainID        string
	AttemptTimeout time.Duration

	// ChainIDFailover lets ChainID walk the full list. When false only the
	// first endpoint is asked, matching the reference deployment.
	ChainIDFailover bool

	HTTPClient *http.Client
}

// Network describes a BNB Smart Chain flavour.
type Network struct {
	ChainID  string `json:"chainId"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Explorer string `json:"explorer"`
}

var (
	mainnetFallbacks = []Endpoint{
		{Name: "bsc-dataseed", URL: "https://bsc-dataseed.binance.org/"},
		{Name: "defibit", URL: "https://bsc-dataseed1.defibit.io/"},
		{Name: "ninicoin", URL: "https://bsc-dataseed1.ninicoin.io/"},
	}
	testnetFallbacks = []Endpoint{
		{Name: "prebsc-1", URL: "https://data-seed-prebsc-1-s1.binance.org:8545/"},
		{Name: "prebsc-2", URL: "https://data-seed-prebsc-2-s1.binance.org:8545/"},
	}

	networks = map[string]Network{
		ChainIDMainnet: {ChainID: ChainIDMainnet, Name: "BNB Smart Chain", Currency: "BNB", Explorer: "https://bscscan.com"},
		ChainIDTestnet: {ChainID: ChainIDTestnet, Name: "BNB Smart Chain Testnet", Currency: "tBNB", Explorer: "https://testnet.bscscan.com"},
	}
)

// Endpoints builds the ordered candidate list: primary (when set), the three
// public mainnet seeds, then the two testnet seeds when ChainID is "97".
func Endpoints(cfg Config) []Endpoint {
	out := make([]Endpoint, 0, 1+len(mainnetFallbacks)+len(testnetFallbacks))
	if primary := strings.TrimSpace(cfg.PrimaryURL); primary != "" {
		out = append(out, Endpoint{Name: "primary", URL: primary})
	}
	out = append(out, mainnetFallbacks...)
	if strings.TrimSpace(cfg.ChainID) == ChainIDTestnet {
		out = append(out, testnetFallbacks...)
	}
	return out
}

// NetworkFor returns the descriptor for chainID, defaulting to mainnet.
func NetworkFor(chainID string) Network {
	if n, ok := networks[strings.TrimSpace(chainID)]; ok {
		return n
	}
	return networks[ChainIDMainnet]
}
