package ethrpc

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
)

// GetBalance fetches the latest balance of address with full failover.
// The address is passed through unvalidated; an empty one is rejected
// before any network call. A result that is not a hex quantity string
// fails over like a protocol error.
func (c *Client) GetBalance(ctx context.Context, address string) (*BalanceResult, error) {
	if strings.TrimSpace(address) == "" {
		return nil, ErrAddressRequired
	}

	var wei string
	res, err := c.Call(ctx, MethodGetBalance, []any{address, string(BlockLatest)}, 0, func(raw json.RawMessage) error {
		q, err := decodeQuantity(raw)
		if err != nil {
			return err
		}
		if _, err := HexQuantity(q).Big(); err != nil {
			return err
		}
		wei = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BalanceResult{Result: res, Wei: wei, Native: WeiToNative(wei)}, nil
}

// ChainID asks for eth_chainId. Only the first endpoint is consulted unless
// the client was built with ChainIDFailover.
func (c *Client) ChainID(ctx context.Context) (*ChainIDResult, error) {
	depth := 1
	if c.chainIDFailover {
		depth = 0
	}

	var (
		hexID string
		id    *big.Int
	)
	res, err := c.Call(ctx, MethodChainID, []any{}, depth, func(raw json.RawMessage) (err error) {
		hexID, id, err = decodeBig(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ChainIDResult{Result: res, Hex: hexID, ID: id}, nil
}

// BlockNumber returns the head block height with full failover. It backs
// the readiness probe.
func (c *Client) BlockNumber(ctx context.Context) (*BlockNumberResult, error) {
	var (
		hexNum string
		n      *big.Int
	)
	res, err := c.Call(ctx, MethodBlockNumber, []any{}, 0, func(raw json.RawMessage) (err error) {
		hexNum, n, err = decodeBig(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BlockNumberResult{Result: res, Hex: hexNum, Number: n}, nil
}

// decodeBig reads a quantity result, normalising the 0x prefix some nodes
// send upper-cased.
func decodeBig(raw json.RawMessage) (string, *big.Int, error) {
	q, err := decodeQuantity(raw)
	if err != nil {
		return "", nil, err
	}
	q = NormalizeHex0x(q)
	n, err := HexQuantity(q).Big()
	if err != nil {
		return "", nil, err
	}
	return q, n, nil
}

// decodeQuantity reads a JSON string result; null or absent yields "0x0".
func decodeQuantity(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "0x0", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	if s == "" {
		return "0x0", nil
	}
	return s, nil
}
