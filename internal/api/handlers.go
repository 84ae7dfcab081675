package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/screa/d3caf/internal/crypto"
	"github.com/screa/d3caf/pkg/auction"
	"github.com/screa/d3caf/pkg/types"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := classify(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func badValue(format string, args ...any) error {
	return fmt.Errorf("%w: %s", auction.ErrBadValue, fmt.Sprintf(format, args...))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badValue("decode body: %v", err)
	}
	return nil
}

// caller reads the X-From header. A missing header is the zero address.
func caller(r *http.Request) (auction.Tx, error) {
	from := r.Header.Get(FromHeader)
	if from == "" {
		return auction.Tx{}, nil
	}
	addr, err := crypto.ParseAddress(from)
	if err != nil {
		return auction.Tx{}, badValue("%s header: %v", FromHeader, err)
	}
	return auction.Tx{From: addr}, nil
}

func pathID(r *http.Request) (common.Hash, error) {
	id, err := crypto.ParseHash(mux.Vars(r)["id"])
	if err != nil {
		return common.Hash{}, badValue("request id: %v", err)
	}
	return id, nil
}

func viewOf(sr *types.StoredRequest) RequestView {
	return RequestView{
		ID:          sr.ID,
		Request:     sr.Request,
		BestSalt:    sr.BestSalt,
		BestAddress: auction.ComputeRequestAddress(&sr.Request, sr.BestSalt),
		Improved:    sr.Improved(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "height": s.auction.Height()})
}

func (s *Server) handleChain(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, ChainView{Height: s.auction.Height(), Address: s.auction.Address()})
}

func (s *Server) handleComputeSalt(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	solver, err := crypto.ParseAddress(q.Get("solver"))
	if err != nil {
		s.writeError(w, r, badValue("solver: %v", err))
		return
	}
	source, err := crypto.ParseHash(q.Get("sourceSalt"))
	if err != nil {
		s.writeError(w, r, badValue("sourceSalt: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]common.Hash{"salt": auction.ComputeSalt(solver, source)})
}

func (s *Server) handleComputeRequestID(w http.ResponseWriter, r *http.Request) {
	var req types.Request
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := auction.ComputeRequestID(&req)
	if err != nil {
		s.writeError(w, r, badValue("encode request: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, RegisterResponse{RequestID: id})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var body DepositRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Amount == nil {
		s.writeError(w, r, badValue("missing amount"))
		return
	}
	if err := s.auction.Deposit(r.Context(), body.Asset, body.Account, body.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBalance(w, r, body.Asset, body.Account)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	asset, err := crypto.ParseAddress(vars["asset"])
	if err != nil {
		s.writeError(w, r, badValue("asset: %v", err))
		return
	}
	account, err := crypto.ParseAddress(vars["account"])
	if err != nil {
		s.writeError(w, r, badValue("account: %v", err))
		return
	}
	s.writeBalance(w, r, asset, account)
}

func (s *Server) writeBalance(w http.ResponseWriter, r *http.Request, asset, account common.Address) {
	bal, err := s.auction.BalanceOf(asset, account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, BalanceView{Asset: asset, Account: account, Balance: bal})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	tx, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body RegisterRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	tx.Value = body.Value

	id, err := s.auction.RegisterCreate2Request(r.Context(), tx, body.Request)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, RegisterResponse{RequestID: id})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	var (
		list []*types.StoredRequest
		err  error
	)
	if r.URL.Query().Get("finalizable") == "true" {
		list, err = s.auction.Finalizable(s.auction.Height())
	} else {
		list, err = s.auction.Pending()
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views := make([]RequestView, 0, len(list))
	for _, sr := range list {
		views = append(views, viewOf(sr))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sr, err := s.auction.GetCreate2Request(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(sr))
}

func (s *Server) handleBestSalt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sr, err := s.auction.GetCreate2Request(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SaltView{
		Salt:    sr.BestSalt,
		Address: auction.ComputeRequestAddress(&sr.Request, sr.BestSalt),
	})
}

func (s *Server) handleComputeAddress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	salt, err := crypto.ParseHash(r.URL.Query().Get("salt"))
	if err != nil {
		s.writeError(w, r, badValue("salt: %v", err))
		return
	}
	addr, err := s.auction.ComputeAddress(id, salt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SaltView{Salt: salt, Address: addr})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	tx, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body SubmitRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	accepted, err := s.auction.RegisterResponse(r.Context(), tx, id, body.Salt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SubmitResponse{Accepted: accepted})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	tx, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body ClaimRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	payout, err := s.auction.ClaimReward(r.Context(), tx, id, body.Solver, body.SourceSalt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PayoutView{
		Solver:     payout.Solver,
		Address:    payout.Address,
		Reward:     payout.Reward,
		Commission: payout.Commission,
		SolverPaid: payout.SolverPaid,
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	tx, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.auction.RequesterWithdraw(r.Context(), tx, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "refunded"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.auction.Config()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSetCommissionReceiver(w http.ResponseWriter, r *http.Request) {
	var body AddressValue
	s.adminCall(w, r, &body, func(tx auction.Tx) error {
		return s.auction.SetCommissionReceiver(r.Context(), tx, body.Value)
	})
}

func (s *Server) handleSetCommissionRate(w http.ResponseWriter, r *http.Request) {
	var body UintValue
	s.adminCall(w, r, &body, func(tx auction.Tx) error {
		return s.auction.SetCommissionRateBasisPoints(r.Context(), tx, body.Value)
	})
}

func (s *Server) handleSetMaxDeadline(w http.ResponseWriter, r *http.Request) {
	var body UintValue
	s.adminCall(w, r, &body, func(tx auction.Tx) error {
		return s.auction.SetMaxDeadlineBlockDuration(r.Context(), tx, body.Value)
	})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var body AddressValue
	s.adminCall(w, r, &body, func(tx auction.Tx) error {
		return s.auction.TransferOwnership(r.Context(), tx, body.Value)
	})
}

func (s *Server) adminCall(w http.ResponseWriter, r *http.Request, body any, call func(auction.Tx) error) {
	tx, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := decodeBody(r, body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := call(tx); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleGetConfig(w, r)
}
