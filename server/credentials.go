package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quantumauth-io/credchain/credential"
)

func (s *Server) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wallet := strings.TrimSpace(q.Get("wallet"))
	hash := strings.TrimSpace(q.Get("hash"))

	if wallet == "" && hash == "" {
		writeError(w, http.StatusBadRequest, "wallet address or hash is required")
		return
	}

	if hash != "" {
		c, err := s.credentials.Verify(r.Context(), hash)
		if errors.Is(err, credential.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Credential not found")
			return
		}
		if err != nil {
			s.internalError(w, r, "verify credential", err, "Failed to fetch credentials")
			return
		}
		writeData(w, c)
		return
	}

	var (
		list []credential.Credential
		err  error
	)
	if q.Get("type") == "issuer" {
		list, err = s.credentials.ListByIssuer(r.Context(), wallet)
	} else {
		list, err = s.credentials.ListByStudent(r.Context(), wallet)
	}
	if err != nil {
		s.internalError(w, r, "list credentials", err, "Failed to fetch credentials")
		return
	}
	if list == nil {
		list = []credential.Credential{}
	}
	writeData(w, list)
}

func (s *Server) handlePostCredentials(w http.ResponseWriter, r *http.Request) {
	var req credential.IssueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	c, err := s.credentials.Issue(r.Context(), req)
	switch {
	case errors.Is(err, credential.ErrMissingFields):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, credential.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.internalError(w, r, "issue credential", err, "Failed to create credential")
	default:
		writeData(w, c)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error, msg string) {
	s.logger.Error(op+" failed",
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, msg)
}
