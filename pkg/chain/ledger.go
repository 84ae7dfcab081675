package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/screa/d3caf/internal/store"
)

// ErrInsufficientBalance is returned when a debit exceeds the account balance
var ErrInsufficientBalance = errors.New("insufficient balance")

var balancePrefix = []byte("bal/")

// Reader is the read side of a store or transaction
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// BalanceKey is the storage key for an account's balance of asset
func BalanceKey(asset, account common.Address) []byte {
	key := make([]byte, 0, len(balancePrefix)+2*common.AddressLength)
	key = append(key, balancePrefix...)
	key = append(key, asset[:]...)
	key = append(key, account[:]...)
	return key
}

// Balance returns the balance of account in asset
func Balance(r Reader, asset, account common.Address) (*uint256.Int, error) {
	v, err := r.Get(BalanceKey(asset, account))
	if errors.Is(err, store.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(v), nil
}

// Credit adds amount to account's balance of asset
func Credit(txn *store.Txn, asset, account common.Address, amount *uint256.Int) error {
	bal, err := Balance(txn, asset, account)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("credit %s to %s: balance overflow", amount.Dec(), account.Hex())
	}
	putBalance(txn, asset, account, sum)
	return nil
}

// Debit removes amount from account's balance of asset
func Debit(txn *store.Txn, asset, account common.Address, amount *uint256.Int) error {
	bal, err := Balance(txn, asset, account)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return fmt.Errorf("debit %s from %s (balance %s): %w", amount.Dec(), account.Hex(), bal.Dec(), ErrInsufficientBalance)
	}
	putBalance(txn, asset, account, new(uint256.Int).Sub(bal, amount))
	return nil
}

// Transfer moves amount of asset between accounts within txn
func Transfer(txn *store.Txn, asset, from, to common.Address, amount *uint256.Int) error {
	if err := Debit(txn, asset, from, amount); err != nil {
		return err
	}
	return Credit(txn, asset, to, amount)
}

func putBalance(txn *store.Txn, asset, account common.Address, bal *uint256.Int) {
	b := bal.Bytes32()
	txn.Put(BalanceKey(asset, account), b[:])
}
