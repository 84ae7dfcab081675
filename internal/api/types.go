package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/screa/d3caf/pkg/types"
)

// RegisterRequest is the body of POST /v1/requests
type RegisterRequest struct {
	Request types.Request `json:"request"`
	Value   *uint256.Int  `json:"value,omitempty"`
}

// RegisterResponse is returned by POST /v1/requests
type RegisterResponse struct {
	RequestID common.Hash `json:"requestId"`
}

// RequestView is a stored request with its best address
type RequestView struct {
	ID          common.Hash    `json:"id"`
	Request     types.Request  `json:"request"`
	BestSalt    common.Hash    `json:"bestSalt"`
	BestAddress common.Address `json:"bestAddress"`
	Improved    bool           `json:"improved"`
}

// SaltView pairs a salt with the address it yields
type SaltView struct {
	Salt    common.Hash    `json:"salt"`
	Address common.Address `json:"address"`
}

// SubmitRequest is the body of POST /v1/requests/{id}/responses
type SubmitRequest struct {
	Salt common.Hash `json:"salt"`
}

// SubmitResponse reports whether a salt became the new best
type SubmitResponse struct {
	Accepted bool `json:"accepted"`
}

// ClaimRequest is the body of POST /v1/requests/{id}/claim
type ClaimRequest struct {
	Solver     common.Address `json:"solver"`
	SourceSalt common.Hash    `json:"sourceSalt"`
}

// PayoutView is returned by a successful claim
type PayoutView struct {
	Solver     common.Address `json:"solver"`
	Address    common.Address `json:"address"`
	Reward     *uint256.Int   `json:"reward"`
	Commission *uint256.Int   `json:"commission"`
	SolverPaid *uint256.Int   `json:"solverPaid"`
}

// DepositRequest is the body of POST /v1/faucet
type DepositRequest struct {
	Asset   common.Address `json:"asset"`
	Account common.Address `json:"account"`
	Amount  *uint256.Int   `json:"amount"`
}

// BalanceView is an account balance
type BalanceView struct {
	Asset   common.Address `json:"asset"`
	Account common.Address `json:"account"`
	Balance *uint256.Int   `json:"balance"`
}

// ChainView describes the ledger the auction runs on
type ChainView struct {
	Height  uint64         `json:"height"`
	Address common.Address `json:"address"`
}

// AddressValue is the body of admin calls taking an address
type AddressValue struct {
	Value common.Address `json:"value"`
}

// UintValue is the body of admin calls taking a number
type UintValue struct {
	Value uint64 `json:"value"`
}
