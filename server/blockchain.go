package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quantumauth-io/credchain/ethrpc"
)

const (
	actionGetBalance = "getBalance"
	actionGetChainID = "getChainId"

	rpcResponseID = 1
)

type blockchainRequest struct {
	Action string `json:"action"`
	Data   struct {
		Address string `json:"address"`
	} `json:"data"`
}

type balanceResponse struct {
	JSONRPC  string `json:"jsonrpc"`
	ID       int    `json:"id"`
	Result   string `json:"result"`
	Balance  string `json:"balance"`
	Endpoint string `json:"endpoint"`
	Degraded bool   `json:"degraded"`
}

type chainIDResponse struct {
	JSONRPC  string `json:"jsonrpc"`
	ID       int    `json:"id"`
	Result   string `json:"result"`
	ChainID  string `json:"chainId"`
	Network  string `json:"network,omitempty"`
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleBlockchain(w http.ResponseWriter, r *http.Request) {
	var req blockchainRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeRPCError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	switch req.Action {
	case actionGetBalance:
		s.getBalance(w, r, strings.TrimSpace(req.Data.Address))
	case actionGetChainID:
		s.getChainID(w, r)
	default:
		writeRPCError(w, http.StatusBadRequest, "Invalid action")
	}
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request, address string) {
	if address == "" {
		writeRPCError(w, http.StatusBadRequest, "Address is required")
		return
	}
	if !ethrpc.ValidateAddress(address) {
		writeRPCError(w, http.StatusBadRequest, "Invalid address")
		return
	}

	res, err := s.chain.GetBalance(r.Context(), address)
	if err != nil {
		s.logger.Error("getBalance failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("address", ethrpc.FormatAddress(address)),
			zap.Error(err),
		)
		if errors.Is(err, ethrpc.ErrAllEndpointsFailed) {
			writeRPCError(w, http.StatusInternalServerError, "All RPC endpoints failed")
			return
		}
		writeRPCError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		JSONRPC:  "2.0",
		ID:       rpcResponseID,
		Result:   res.Wei,
		Balance:  res.Native,
		Endpoint: res.Endpoint.Name,
		Degraded: res.Degraded(),
	})
}

func (s *Server) getChainID(w http.ResponseWriter, r *http.Request) {
	res, err := s.chain.ChainID(r.Context())
	if err != nil {
		s.logger.Error("Chain ID error",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeRPCError(w, http.StatusInternalServerError, "Failed to get chain ID")
		return
	}

	id := res.ID.String()
	out := chainIDResponse{
		JSONRPC:  "2.0",
		ID:       rpcResponseID,
		Result:   res.Hex,
		ChainID:  id,
		Endpoint: res.Endpoint.Name,
	}
	if n := ethrpc.NetworkFor(id); n.ChainID == id {
		out.Network = n.Name
	}
	writeJSON(w, http.StatusOK, out)
}
