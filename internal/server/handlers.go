package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sbellem/SiennaNetwork/internal/contract"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	Class     string `json:"class,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// LoginRequest exchanges a rewards viewing key for a bearer token
type LoginRequest struct {
	Address types.Address `json:"address"`
	Key     string        `json:"key"`
}

// LoginResponse carries a bearer token
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PoolInfo is one entry of /pools
type PoolInfo struct {
	ID     string             `json:"id"`
	Escrow types.ContractLink `json:"escrow"`
}

type statusQuery struct {
	Pool    string        `schema:"pool"`
	At      *types.Moment `schema:"at"`
	Address types.Address `schema:"address"`
	Key     string        `schema:"key"`
}

type simulateQuery struct {
	Pools   []string      `schema:"pool"`
	At      *types.Moment `schema:"at"`
	Address types.Address `schema:"address"`
	Key     string        `schema:"key"`
}

type summaryQuery struct {
	At *types.Moment `schema:"at"`
}

type receiptQuery struct {
	ID string `schema:"id"`
}

type balanceQuery struct {
	Token    types.Address `schema:"token"`
	CodeHash string        `schema:"code_hash"`
	Address  types.Address `schema:"address"`
	Key      string        `schema:"key"`
}

func statusFor(c contract.Class) int {
	switch c {
	case contract.ClassNone:
		return http.StatusOK
	case contract.ClassInvalid:
		return http.StatusBadRequest
	case contract.ClassUnauthorized:
		return http.StatusForbidden
	case contract.ClassNotFound:
		return http.StatusNotFound
	case contract.ClassRejected:
		return http.StatusConflict
	case contract.ClassUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse writes a JSON error
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, code int, msg string) {
	s.writeError(w, r, code, "", msg)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, code int, class, msg string) {
	id := RequestIDFromCtx(r.Context())
	entry := logrus.WithFields(logrus.Fields{"status": code, "request_id": id, "path": r.URL.Path})
	if code >= http.StatusInternalServerError {
		entry.Error(msg)
	} else {
		entry.Debug(msg)
	}
	writeJSON(w, code, ErrorResponse{Error: msg, Class: class, RequestID: id})
}

// fail maps an executor error to a response
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	class := contract.Classify(err)
	msg := err.Error()
	if class == contract.ClassInternal {
		msg = "internal error"
	}
	s.writeError(w, r, statusFor(class), class.String(), msg)
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := s.decoder.Decode(dst, r.URL.Query()); err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid query: %v", err))
		return false
	}
	return true
}

// moment resolves an optional query moment to the current block time
func (s *Server) moment(r *http.Request, at *types.Moment) (types.Moment, error) {
	if at != nil {
		return *at, nil
	}
	return s.exec.Now(r.Context())
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	sender, _ := SenderFromCtx(r.Context())

	var tx contract.Tx
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tx); err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid transaction body: %v", err))
		return
	}

	env, err := s.exec.Env(r.Context(), sender)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	receipt, err := s.exec.Execute(r.Context(), env, tx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Address.IsZero() {
		s.errorResponse(w, r, http.StatusBadRequest, "address is required")
		return
	}
	if err := s.exec.Authenticate(r.Context(), req.Address, req.Key); err != nil {
		s.fail(w, r, err)
		return
	}
	tok, exp, err := s.issuer.Issue(req.Address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: tok, ExpiresAt: exp})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var q statusQuery
	if !s.decodeQuery(w, r, &q) {
		return
	}
	if q.Pool == "" {
		s.errorResponse(w, r, http.StatusBadRequest, "pool is required")
		return
	}
	at, err := s.moment(r, q.At)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status, err := s.exec.Status(r.Context(), q.Pool, at, q.Address, q.Key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var q simulateQuery
	if !s.decodeQuery(w, r, &q) {
		return
	}
	if q.Address.IsZero() {
		s.errorResponse(w, r, http.StatusBadRequest, "address is required")
		return
	}
	at, err := s.moment(r, q.At)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sim, err := s.exec.SimulateClaims(r.Context(), q.Pools, q.Address, q.Key, at)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sim)
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	ids, err := s.exec.Pools(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pools := make([]PoolInfo, 0, len(ids))
	for _, id := range ids {
		escrow, err := s.exec.Escrow(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		pools = append(pools, PoolInfo{ID: id, Escrow: escrow})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": pools})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var q summaryQuery
	if !s.decodeQuery(w, r, &q) {
		return
	}
	at, err := s.moment(r, q.At)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	summary, err := s.exec.Summary(r.Context(), at)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	var q receiptQuery
	if !s.decodeQuery(w, r, &q) {
		return
	}
	receipt, err := s.exec.Receipt(r.Context(), q.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	var q balanceQuery
	if !s.decodeQuery(w, r, &q) {
		return
	}
	if q.Token.IsZero() || q.Address.IsZero() {
		s.errorResponse(w, r, http.StatusBadRequest, "token and address are required")
		return
	}
	link := types.ContractLink{Address: q.Token, CodeHash: q.CodeHash}
	balance, err := s.exec.Balance(r.Context(), link, q.Address, q.Key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": link, "address": q.Address, "amount": balance})
}

// handleCircuit shows the budget query breaker; an authenticated POST with
// action=reset closes it
func (s *Server) handleCircuit(w http.ResponseWriter, r *http.Request) {
	breaker := s.exec.Breaker()
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		reset := func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("action") != "reset" {
				s.errorResponse(w, r, http.StatusBadRequest, "unknown action")
				return
			}
			sender, _ := SenderFromCtx(r.Context())
			breaker.Reset()
			logrus.WithField("sender", sender).Warn("Circuit breaker reset over HTTP")
			writeJSON(w, http.StatusOK, map[string]any{"state": breaker.GetState().String(), "message": "Circuit breaker reset"})
		}
		s.authenticated(reset)(w, r)
		return
	default:
		s.errorResponse(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": breaker.GetState().String()})
}
