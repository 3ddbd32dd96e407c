package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	jsonRPCVersion = "2.0"
	requestID      = 1

	maxResponseBytes = 4 << 20
)

type rpcReq struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// RPCError is a JSON-RPC error object returned by a node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ethrpc: %s (%d)", e.Message, e.Code)
}

type rpcRes struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

func newHTTPClient() *http.Client {
	// Attempts carry their own deadline; this is only a backstop.
	return &http.Client{Timeout: 60 * time.Second}
}

// post performs one JSON-RPC exchange against url. Any transport failure,
// non-2xx status, body that is not a JSON object or populated error object
// is an error.
func post(ctx context.Context, hc *http.Client, url, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcReq{JSONRPC: jsonRPCVersion, ID: requestID, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("ethrpc: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ethrpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("ethrpc: http status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("ethrpc: read response: %w", err)
	}
	// A bare null, array or scalar body is a broken node, not an empty result.
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrMalformedResponse
	}

	var res rpcRes
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("ethrpc: decode response: %w", err)
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return res.Result, nil
}
