package crypto

import (
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

const (
	// CREATE2 input layout: 0xff (1) + factory (20) + salt (32) + bytecodeHash (32) = 85
	Create2PrefixLen = 1 + common.AddressLength
	Create2SaltLen   = common.HashLength
	Create2SuffixLen = common.HashLength
	Create2InputLen  = Create2PrefixLen + Create2SaltLen + Create2SuffixLen

	// Salt binding input layout: solver (20) + sourceSalt (32) = 52
	SaltInputLen = common.AddressLength + common.HashLength
)

// Create2PrefixBytes returns the constant prefix for CREATE2 input (0xff + factory, 21 bytes).
// Caller can copy into input buffer then fill salt and suffix.
func Create2PrefixBytes(factory common.Address) [Create2PrefixLen]byte {
	var prefix [Create2PrefixLen]byte
	prefix[0] = 0xff
	copy(prefix[1:], factory[:])
	return prefix
}

// Create2AddressInto hashes CREATE2 input and writes the 20-byte address into addrBuf.
// Reuses the provided hasher to avoid allocations. inputBuf must be Create2InputLen (85),
// hashBuf must be at least 32 bytes, addrBuf must be 20 bytes.
// Layout: inputBuf = prefix(21) + salt(32) + suffix(32).
func Create2AddressInto(hasher hash.Hash, inputBuf, hashBuf, addrBuf []byte) {
	hasher.Reset()
	hasher.Write(inputBuf)
	sum := hasher.Sum(hashBuf[:0])
	copy(addrBuf, sum[12:32])
}

// SaltInto writes keccak256(solver ++ sourceSalt) into saltBuf.
// inputBuf must be SaltInputLen (52) with the solver already in its first 20 bytes.
func SaltInto(hasher hash.Hash, inputBuf, saltBuf []byte) {
	hasher.Reset()
	hasher.Write(inputBuf)
	hasher.Sum(saltBuf[:0])
}

// Create2Address derives the address code with bytecodeHash occupies once the
// factory deploys it with salt.
func Create2Address(factory common.Address, salt, bytecodeHash common.Hash) common.Address {
	prefix := Create2PrefixBytes(factory)
	input := make([]byte, 0, Create2InputLen)
	input = append(input, prefix[:]...)
	input = append(input, salt[:]...)
	input = append(input, bytecodeHash[:]...)
	return common.BytesToAddress(keccak256Bytes(input)[12:])
}

// ComputeSalt binds a solver to a source salt: keccak256(solver ++ sourceSalt).
func ComputeSalt(solver common.Address, sourceSalt common.Hash) common.Hash {
	input := make([]byte, 0, SaltInputLen)
	input = append(input, solver[:]...)
	input = append(input, sourceSalt[:]...)
	return common.BytesToHash(keccak256Bytes(input))
}

// AddressInt reads an address as an unsigned 160-bit integer.
func AddressInt(addr common.Address) *uint256.Int {
	return new(uint256.Int).SetBytes20(addr[:])
}

// ImprovementThreshold is the largest address a candidate may have to beat best.
func ImprovementThreshold(best common.Address, factor uint64) *uint256.Int {
	return new(uint256.Int).Div(AddressInt(best), uint256.NewInt(factor))
}

// IsImprovement reports whether candidate <= best / factor.
func IsImprovement(candidate, best common.Address, factor uint64) bool {
	return !AddressInt(candidate).Gt(ImprovementThreshold(best, factor))
}

// ---- helpers ----

func keccak256Bytes(b []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(b)
	return h.Sum(nil)
}

// Keccak256 calculates the keccak256 hash of the input bytes
func Keccak256(data []byte) []byte {
	return keccak256Bytes(data)
}

// NewKeccak256 returns a reusable keccak256 hasher for hot loops.
func NewKeccak256() hash.Hash {
	return sha3.NewLegacyKeccak256()
}

// HexToBytes decodes a hex string (with or without 0x).
func HexToBytes(hexStr string) ([]byte, error) {
	h := strings.TrimSpace(hexStr)
	if len(h) >= 2 && (h[0:2] == "0x" || h[0:2] == "0X") {
		h = h[2:]
	}
	if len(h)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even length")
	}
	return hex.DecodeString(h)
}

// ParseAddress decodes a 20-byte hex address, rejecting anything of another length.
func ParseAddress(s string) (common.Address, error) {
	b, err := HexToBytes(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid address hex: %w", err)
	}
	if len(b) != common.AddressLength {
		return common.Address{}, fmt.Errorf("invalid address length: got %d bytes, want %d", len(b), common.AddressLength)
	}
	return common.BytesToAddress(b), nil
}

// ParseHash decodes a 32-byte hex value such as a salt or a bytecode hash.
// Shorter inputs are left-padded, matching hexZeroPad.
func ParseHash(s string) (common.Hash, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(h)%2 != 0 {
		h = "0" + h
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash length: got %d bytes, want at most %d", len(b), common.HashLength)
	}
	return common.BytesToHash(b), nil
}
