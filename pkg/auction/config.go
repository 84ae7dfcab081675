package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/screa/d3caf/internal/store"
)

const (
	// BasisPoints is the denominator of the commission rate
	BasisPoints = 10000

	DefaultCommissionRateBasisPoints = 500
	DefaultMaxDeadlineBlockDuration  = 604800 / 12
)

var configKey = []byte("cfg")

// Config is the owner-controlled configuration. It is read at the time of
// each operation, so changes apply to requests already registered.
type Config struct {
	Owner                     common.Address `json:"owner"`
	CommissionReceiver        common.Address `json:"commissionReceiver"`
	CommissionRateBasisPoints uint64         `json:"commissionRateBasisPoints"`
	MaxDeadlineBlockDuration  uint64         `json:"maxDeadlineBlockDuration"`
}

// DefaultConfig returns the configuration a fresh auction starts with
func DefaultConfig(owner common.Address) Config {
	return Config{
		Owner:                     owner,
		CommissionReceiver:        owner,
		CommissionRateBasisPoints: DefaultCommissionRateBasisPoints,
		MaxDeadlineBlockDuration:  DefaultMaxDeadlineBlockDuration,
	}
}

func loadConfig(r interface{ Get([]byte) ([]byte, error) }) (Config, bool, error) {
	v, err := r.Get(configKey)
	if errors.Is(err, store.ErrNotFound) {
		return Config{}, false, nil
	}
	if err != nil {
		return Config{}, false, err
	}
	var cfg Config
	if err := json.Unmarshal(v, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("decode config: %w", err)
	}
	return cfg, true, nil
}

func putConfig(txn *store.Txn, cfg Config) error {
	v, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	txn.Put(configKey, v)
	return nil
}

// Config returns the current configuration
func (a *Auction) Config() (Config, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cfg, _, err := loadConfig(a.store)
	return cfg, err
}

// Owner returns the administrator
func (a *Auction) Owner() (common.Address, error) {
	cfg, err := a.Config()
	return cfg.Owner, err
}

// GetCommissionReceiver returns who is paid the commission on claims
func (a *Auction) GetCommissionReceiver() (common.Address, error) {
	cfg, err := a.Config()
	return cfg.CommissionReceiver, err
}

// GetCommissionRateBasisPoints returns the commission rate in basis points
func (a *Auction) GetCommissionRateBasisPoints() (uint64, error) {
	cfg, err := a.Config()
	return cfg.CommissionRateBasisPoints, err
}

// GetMaxDeadlineBlockDuration returns how far ahead a request may expire
func (a *Auction) GetMaxDeadlineBlockDuration() (uint64, error) {
	cfg, err := a.Config()
	return cfg.MaxDeadlineBlockDuration, err
}

// SetCommissionReceiver changes who is paid the commission
func (a *Auction) SetCommissionReceiver(ctx context.Context, tx Tx, receiver common.Address) error {
	return a.updateConfig(ctx, tx, "commissionReceiver", func(cfg *Config) error {
		if receiver == a.address {
			return fmt.Errorf("%w: commission receiver is the escrow account", ErrBadValue)
		}
		cfg.CommissionReceiver = receiver
		return nil
	})
}

// SetCommissionRateBasisPoints changes the commission rate. It applies to every
// claim from now on, including claims on requests registered earlier.
func (a *Auction) SetCommissionRateBasisPoints(ctx context.Context, tx Tx, rate uint64) error {
	return a.updateConfig(ctx, tx, "commissionRateBasisPoints", func(cfg *Config) error {
		if rate > BasisPoints {
			return fmt.Errorf("%w: commission rate %d exceeds %d basis points", ErrBadValue, rate, BasisPoints)
		}
		cfg.CommissionRateBasisPoints = rate
		return nil
	})
}

// SetMaxDeadlineBlockDuration changes the registration deadline bound
func (a *Auction) SetMaxDeadlineBlockDuration(ctx context.Context, tx Tx, blocks uint64) error {
	return a.updateConfig(ctx, tx, "maxDeadlineBlockDuration", func(cfg *Config) error {
		cfg.MaxDeadlineBlockDuration = blocks
		return nil
	})
}

// TransferOwnership hands the admin surface to owner
func (a *Auction) TransferOwnership(ctx context.Context, tx Tx, owner common.Address) error {
	return a.updateConfig(ctx, tx, "owner", func(cfg *Config) error {
		if owner == (common.Address{}) {
			return fmt.Errorf("%w: new owner is the zero address", ErrBadValue)
		}
		cfg.Owner = owner
		return nil
	})
}

func (a *Auction) updateConfig(_ context.Context, tx Tx, field string, apply func(*Config) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg, _, err := loadConfig(a.store)
	if err != nil {
		return err
	}
	if tx.From != cfg.Owner {
		return fmt.Errorf("set %s from %s: %w", field, tx.From.Hex(), ErrUnauthorized)
	}
	if err := apply(&cfg); err != nil {
		return err
	}

	txn := a.store.Begin()
	if err := putConfig(txn, cfg); err != nil {
		return err
	}
	if err := a.commit(txn, a.clock.Height()); err != nil {
		return err
	}
	a.metrics.CommissionRate.Set(float64(cfg.CommissionRateBasisPoints))
	a.log.Info("config updated", zap.String("field", field), zap.String("by", tx.From.Hex()))
	return nil
}
