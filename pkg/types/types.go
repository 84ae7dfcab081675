package types

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RewardType is the denomination of an escrowed reward
type RewardType uint8

const (
	RewardNative RewardType = iota
	RewardToken
)

func (t RewardType) String() string {
	switch t {
	case RewardNative:
		return "native"
	case RewardToken:
		return "token"
	default:
		return fmt.Sprintf("RewardType(%d)", uint8(t))
	}
}

// NativeAsset is the ledger asset key for the chain's native value
var NativeAsset = common.Address{}

// Request is a CREATE2 salt mining request. All fields are immutable once registered.
type Request struct {
	Factory        common.Address `json:"factory"`
	BytecodeHash   common.Hash    `json:"bytecodeHash"`
	ExpireAt       uint64         `json:"expireAt"`
	InitSalt       common.Hash    `json:"initSalt"`
	RewardType     RewardType     `json:"rewardType"`
	RewardAmount   *uint256.Int   `json:"rewardAmount"`
	RewardToken    common.Address `json:"rewardToken"`
	RefundReceiver common.Address `json:"refundReceiver"`
}

// Asset returns the ledger asset the reward is held in
func (r *Request) Asset() common.Address {
	if r.RewardType == RewardToken {
		return r.RewardToken
	}
	return NativeAsset
}

// Amount returns the reward amount, treating a missing amount as zero
func (r *Request) Amount() *uint256.Int {
	if r.RewardAmount == nil {
		return new(uint256.Int)
	}
	return r.RewardAmount
}

// StoredRequest is a registered request together with its mutable best salt
type StoredRequest struct {
	ID       common.Hash `json:"id"`
	Request  Request     `json:"request"`
	BestSalt common.Hash `json:"bestSalt"`
}

// Improved reports whether a solver has replaced the initial salt
func (s *StoredRequest) Improved() bool {
	return s.BestSalt != s.Request.InitSalt
}

// Result represents a mining result
type Result struct {
	SourceSalt common.Hash
	Salt       common.Hash
	Address    common.Address
	Attempts   int64
	Duration   time.Duration
	Match      bool // beats the target threshold
}

// WorkerConfig contains configuration for individual workers
type WorkerConfig struct {
	Solver       common.Address
	Factory      common.Address
	BytecodeHash common.Hash
	Verbose      bool

	// Largest address that counts as a match. Nil means track the lowest address only.
	Threshold *uint256.Int

	// Pre-computed for the hot path.
	Create2Prefix [21]byte // 0xff + factory, constant per run
	Create2Suffix [32]byte // bytecode hash, constant per run
}

// WorkerResult represents a result from a single worker
type WorkerResult struct {
	SourceSalt   [32]byte
	Salt         [32]byte
	AddressBytes [20]byte
	Attempts     int64
	IsMatch      bool
}
