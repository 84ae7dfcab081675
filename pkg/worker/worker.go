package worker

import (
	"bytes"
	"crypto/rand"
	"hash"
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/screa/d3caf/internal/crypto"
	"github.com/screa/d3caf/pkg/types"
)

// Worker searches source salts for one whose bound salt yields a low address
type Worker struct {
	config   *types.WorkerConfig
	attempts *int64
	hasher   hash.Hash

	// Pre-allocated buffers for performance
	saltInput    [crypto.SaltInputLen]byte    // solver (20) + source salt (32)
	create2Input [crypto.Create2InputLen]byte // prefix (21) + salt (32) + bytecode hash (32)
	hashBuf      [32]byte
	addrBuf      [20]byte
	threshold    [20]byte
	hasThreshold bool
}

// NewWorker creates a new worker instance
func NewWorker(config *types.WorkerConfig, attempts *int64) *Worker {
	w := &Worker{
		config:   config,
		attempts: attempts,
		hasher:   crypto.NewKeccak256(),
	}
	copy(w.saltInput[:], config.Solver[:])
	copy(w.create2Input[:], config.Create2Prefix[:])
	copy(w.create2Input[crypto.Create2PrefixLen+crypto.Create2SaltLen:], config.Create2Suffix[:])
	if config.Threshold != nil {
		w.threshold = config.Threshold.Bytes20()
		w.hasThreshold = true
	}
	return w
}

// fastRandomSourceSalt fills the source salt half of the salt input
func (w *Worker) fastRandomSourceSalt() bool {
	_, err := rand.Read(w.saltInput[20:])
	return err == nil
}

// try derives the address for the current source salt
func (w *Worker) try() {
	salt := w.create2Input[crypto.Create2PrefixLen : crypto.Create2PrefixLen+crypto.Create2SaltLen]
	crypto.SaltInto(w.hasher, w.saltInput[:], salt)
	crypto.Create2AddressInto(w.hasher, w.create2Input[:], w.hashBuf[:], w.addrBuf[:])
	atomic.AddInt64(w.attempts, 1)
}

func (w *Worker) result() *types.WorkerResult {
	r := &types.WorkerResult{
		AddressBytes: w.addrBuf,
		Attempts:     atomic.LoadInt64(w.attempts),
		IsMatch:      w.matchesBytes(w.addrBuf[:]),
	}
	copy(r.SourceSalt[:], w.saltInput[20:])
	copy(r.Salt[:], w.create2Input[crypto.Create2PrefixLen:])
	return r
}

// GenerateAddress tries one random source salt
func (w *Worker) GenerateAddress() *types.WorkerResult {
	if !w.fastRandomSourceSalt() {
		return nil
	}
	w.try()
	return w.result()
}

// ProcessBatch tries batchSize random source salts and returns the lowest
// address among them. It returns early on the first match.
func (w *Worker) ProcessBatch(batchSize int) *types.WorkerResult {
	var best *types.WorkerResult
	for i := 0; i < batchSize; i++ {
		if !w.fastRandomSourceSalt() {
			continue
		}
		w.try()

		if best == nil || bytes.Compare(w.addrBuf[:], best.AddressBytes[:]) < 0 {
			best = w.result()
			if best.IsMatch {
				return best
			}
		}
	}
	return best
}

// matchesBytes reports whether a 20-byte address is at or below the threshold.
// Big-endian byte order makes the byte comparison an integer comparison.
func (w *Worker) matchesBytes(addr []byte) bool {
	if !w.hasThreshold {
		return false
	}
	return bytes.Compare(addr, w.threshold[:]) <= 0
}

// Threshold returns the match bound as an integer, or nil when tracking the lowest address only
func (w *Worker) Threshold() *uint256.Int {
	if !w.hasThreshold {
		return nil
	}
	return new(uint256.Int).SetBytes20(w.threshold[:])
}
