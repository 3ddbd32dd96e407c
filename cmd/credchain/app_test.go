package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcNode(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": results[req.Method]})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("CREDCHAIN_LOG_LEVEL", "error")

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"credchain", "--config", t.TempDir()}, args...))
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	app := newApp()
	names := make([]string, 0, len(app.Commands))
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"serve", "balance", "chain-id", "migrate"}, names)
}

func TestBalanceCommand(t *testing.T) {
	node := rpcNode(t, map[string]string{"eth_getBalance": "0x1bc16d674ec80000"})
	t.Setenv("RPC_URL", node.URL)

	out, err := runApp(t, "balance", "0x1234567890abcdef1234567890abcdef12345678")
	require.NoError(t, err)
	assert.Contains(t, out, "2.0000 BNB")
	assert.Contains(t, out, "via primary")
	assert.Contains(t, out, "0x1234...5678")
}

func TestBalanceCommandRejectsBadAddress(t *testing.T) {
	_, err := runApp(t, "balance", "0x123")
	require.Error(t, err)
}

func TestChainIDCommand(t *testing.T) {
	node := rpcNode(t, map[string]string{"eth_chainId": "0x61"})
	t.Setenv("RPC_URL", node.URL)
	t.Setenv("RPC_CHAINID", "97")

	out, err := runApp(t, "chain-id")
	require.NoError(t, err)
	assert.Contains(t, out, "97 (0x61) via primary")
}

func TestMigrateRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_ENABLED", "false")
	_, err := runApp(t, "migrate")
	require.Error(t, err)
}
