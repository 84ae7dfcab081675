package miner

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/screa/d3caf/internal/crypto"
	"github.com/screa/d3caf/internal/logger"
	"github.com/screa/d3caf/pkg/types"
	"github.com/screa/d3caf/pkg/worker"
)

// ImprovementFactor mirrors the auction's acceptance rule
const ImprovementFactor = 16

// Target describes what a mining run must beat
type Target struct {
	Solver       common.Address
	Factory      common.Address
	BytecodeHash common.Hash
	// BestSalt is the request's current best salt. Nil means search for the
	// lowest address until stopped.
	BestSalt *common.Hash
}

// Options tunes a Miner
type Options struct {
	Workers     int
	Verbose     bool
	LogInterval time.Duration
	BatchSize   int
}

// Miner provides high-performance address mining coordination
type Miner struct {
	options      Options
	logger       *logger.Logger
	attempts     int64
	bestResult   *types.Result
	bestAddr     [20]byte
	mu           sync.RWMutex
	done         chan struct{}
	wg           sync.WaitGroup
	once         sync.Once
	workerConfig *types.WorkerConfig
}

// NewMiner creates a new miner instance
func NewMiner(target Target, opts Options, log *logger.Logger) *Miner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000 // Process in batches for better performance
	}
	if opts.LogInterval <= 0 {
		opts.LogInterval = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(zap.String("solver", target.Solver.Hex()))

	workerConfig := &types.WorkerConfig{
		Solver:        target.Solver,
		Factory:       target.Factory,
		BytecodeHash:  target.BytecodeHash,
		Verbose:       opts.Verbose,
		Create2Prefix: crypto.Create2PrefixBytes(target.Factory),
		Create2Suffix: target.BytecodeHash,
	}
	if target.BestSalt != nil {
		best := crypto.Create2Address(target.Factory, *target.BestSalt, target.BytecodeHash)
		workerConfig.Threshold = crypto.ImprovementThreshold(best, ImprovementFactor)
	}

	return &Miner{
		options:      opts,
		logger:       log,
		done:         make(chan struct{}),
		workerConfig: workerConfig,
	}
}

// Mine runs the workers until a salt beats the target, ctx is cancelled or
// Stop is called. It returns the match, or the lowest address seen so far
// with Match unset.
func (m *Miner) Mine(ctx context.Context) *types.Result {
	start := time.Now()

	go func() {
		select {
		case <-ctx.Done():
			m.Stop()
		case <-m.done:
		}
	}()

	// Start workers
	for i := 0; i < m.options.Workers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	// Start periodic logging if verbose mode is enabled
	var logTicker *time.Ticker
	var logDone chan struct{}
	if m.options.Verbose {
		logTicker = time.NewTicker(m.options.LogInterval)
		logDone = make(chan struct{})
		go m.periodicLogger(logTicker, logDone, start)

		m.logger.Info("mining started",
			zap.Int("workers", m.options.Workers),
			zap.Duration("logInterval", m.options.LogInterval),
		)
	}

	// Wait for completion
	m.wg.Wait()

	// Stop periodic logging
	if logTicker != nil {
		logTicker.Stop()
		close(logDone)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bestResult == nil {
		return nil
	}
	m.bestResult.Duration = time.Since(start)
	m.bestResult.Attempts = atomic.LoadInt64(&m.attempts)
	result := *m.bestResult
	return &result
}

// worker runs the mining logic for a single worker
func (m *Miner) worker(workerID int) {
	defer m.wg.Done()

	w := worker.NewWorker(m.workerConfig, &m.attempts)

	for {
		select {
		case <-m.done:
			return
		default:
		}

		result := w.ProcessBatch(m.options.BatchSize)
		if result == nil {
			continue
		}

		m.mu.Lock()
		if m.bestResult == nil || m.isBetterBytes(result.AddressBytes, m.bestAddr) {
			m.bestAddr = result.AddressBytes
			m.bestResult = &types.Result{
				SourceSalt: common.Hash(result.SourceSalt),
				Salt:       common.Hash(result.Salt),
				Address:    common.Address(result.AddressBytes),
				Attempts:   result.Attempts,
				Match:      result.IsMatch,
			}
			if m.options.Verbose {
				m.logger.Debug("new best",
					zap.Int("worker", workerID),
					zap.String("address", m.bestResult.Address.Hex()),
				)
			}
		}
		m.mu.Unlock()

		if result.IsMatch {
			m.Stop()
			return
		}
	}
}

// isBetterBytes compares addresses as big-endian integers
func (m *Miner) isBetterBytes(newAddr, oldAddr [20]byte) bool {
	return bytes.Compare(newAddr[:], oldAddr[:]) < 0
}

// Stop stops the mining process
func (m *Miner) Stop() {
	m.once.Do(func() { close(m.done) })
}

// GetBestResult returns the current best result
func (m *Miner) GetBestResult() *types.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bestResult == nil {
		return nil
	}
	result := *m.bestResult
	return &result
}

// Attempts returns the number of salts tried so far
func (m *Miner) Attempts() int64 {
	return atomic.LoadInt64(&m.attempts)
}

// Describe summarizes the run's target for logging
func (m *Miner) Describe() string {
	if m.workerConfig.Threshold == nil {
		return "lowest address"
	}
	return fmt.Sprintf("address <= 0x%040x", m.workerConfig.Threshold.ToBig())
}

// periodicLogger logs mining progress at regular intervals
func (m *Miner) periodicLogger(ticker *time.Ticker, done chan struct{}, start time.Time) {
	for {
		select {
		case <-ticker.C:
			attempts := atomic.LoadInt64(&m.attempts)
			elapsed := time.Since(start)

			// Calculate rate safely
			rate := 0.0
			if elapsed.Seconds() > 0 {
				rate = float64(attempts) / elapsed.Seconds()
			}

			best := m.GetBestResult()
			if best != nil {
				m.logger.Printf("Progress: %d attempts, %.2f hashes/sec, Best so far: %s (source salt: %s)",
					attempts, rate, best.Address.Hex(), best.SourceSalt.Hex())
			} else {
				m.logger.Printf("Progress: %d attempts, %.2f hashes/sec, No result yet",
					attempts, rate)
			}
		case <-done:
			return
		}
	}
}
