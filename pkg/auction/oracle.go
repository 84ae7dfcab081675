package auction

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/screa/d3caf/internal/crypto"
	"github.com/screa/d3caf/pkg/types"
)

// ImprovementFactor is how much smaller, as an integer, an accepted address must be
// than the current best one.
const ImprovementFactor = 16

// requestArgs mirrors abi.encode of the request tuple
var requestArgs = abi.Arguments{
	{Type: mustType("address")},
	{Type: mustType("bytes32")},
	{Type: mustType("uint256")},
	{Type: mustType("bytes32")},
	{Type: mustType("uint8")},
	{Type: mustType("uint256")},
	{Type: mustType("address")},
	{Type: mustType("address")},
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// EncodeRequest returns the canonical encoding of the immutable request fields
func EncodeRequest(r *types.Request) ([]byte, error) {
	return requestArgs.Pack(
		r.Factory,
		[32]byte(r.BytecodeHash),
		new(big.Int).SetUint64(r.ExpireAt),
		[32]byte(r.InitSalt),
		uint8(r.RewardType),
		r.Amount().ToBig(),
		r.RewardToken,
		r.RefundReceiver,
	)
}

// ComputeRequestID hashes the immutable request fields. Identical requests share an id.
func ComputeRequestID(r *types.Request) (common.Hash, error) {
	enc, err := EncodeRequest(r)
	if err != nil {
		return common.Hash{}, err
	}
	return gethcrypto.Keccak256Hash(enc), nil
}

// ComputeSalt binds solver into sourceSalt. Only whoever knows both can reproduce it.
func ComputeSalt(solver common.Address, sourceSalt common.Hash) common.Hash {
	return crypto.ComputeSalt(solver, sourceSalt)
}

// ComputeRequestAddress is the address r's bytecode lands at when deployed with salt
func ComputeRequestAddress(r *types.Request, salt common.Hash) common.Address {
	return crypto.Create2Address(r.Factory, salt, r.BytecodeHash)
}
