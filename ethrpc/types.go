package ethrpc

import "math/big"

type BlockTag string

const BlockLatest BlockTag = "latest"

type HexQuantity string

const (
	MethodGetBalance  = "eth_getBalance"
	MethodChainID     = "eth_chainId"
	MethodBlockNumber = "eth_blockNumber"
)

// BalanceResult carries the raw wei balance alongside its display form.
type BalanceResult struct {
	*Result
	Wei    string // hex quantity, as returned by the node
	Native string // 4-decimal native-unit amount
}

type ChainIDResult struct {
	*Result
	Hex string
	ID  *big.Int
}

type BlockNumberResult struct {
	*Result
	Hex    string
	Number *big.Int
}
