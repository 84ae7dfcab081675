package chain

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screa/d3caf/internal/store"
)

func TestManualClock(t *testing.T) {
	c := NewManualClock(100)
	assert.Equal(t, uint64(100), c.Height())
	assert.Equal(t, uint64(110), c.Advance(10))

	c.Set(105)
	assert.Equal(t, uint64(110), c.Height(), "clock must not move backwards")
	c.Set(200)
	assert.Equal(t, uint64(200), c.Height())
}

func TestTickingClock(t *testing.T) {
	c := NewTickingClock(1, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Height() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestLedgerTransfer(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	asset := common.HexToAddress("0x70")
	alice := common.HexToAddress("0xa1")
	bob := common.HexToAddress("0xb0")

	txn := s.Begin()
	require.NoError(t, Credit(txn, asset, alice, uint256.NewInt(100)))
	require.NoError(t, Transfer(txn, asset, alice, bob, uint256.NewInt(30)))
	require.NoError(t, txn.Commit())

	bal, err := Balance(s, asset, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(70), bal.Uint64())
	bal, err = Balance(s, asset, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), bal.Uint64())

	// other assets are untouched
	bal, err = Balance(s, common.Address{}, alice)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestLedgerDebitInsufficient(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	txn := s.Begin()
	err = Debit(txn, common.Address{}, common.HexToAddress("0xa1"), uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestLedgerCreditOverflow(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	max := new(uint256.Int).SetAllOne()
	account := common.HexToAddress("0xa1")
	txn := s.Begin()
	require.NoError(t, Credit(txn, common.Address{}, account, max))
	assert.Error(t, Credit(txn, common.Address{}, account, uint256.NewInt(1)))
}

func TestStoredHeightOnlyGrows(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := StoredHeight(s)
	require.NoError(t, err)
	assert.False(t, ok)

	txn := s.Begin()
	require.NoError(t, PutHeight(txn, 20))
	require.NoError(t, PutHeight(txn, 15))
	require.NoError(t, txn.Commit())

	h, ok, err := StoredHeight(s)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(20), h)
}

func TestRestore(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	c := NewManualClock(3)
	h, err := Restore(s, c)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), h, "nothing stored")

	txn := s.Begin()
	require.NoError(t, PutHeight(txn, 30))
	require.NoError(t, txn.Commit())

	h, err = Restore(s, c)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), h)
	assert.Equal(t, uint64(30), c.Height())

	ahead := NewTickingClock(50, time.Second)
	h, err = Restore(s, ahead)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), h)
}

func TestTickingClockOnTick(t *testing.T) {
	c := NewTickingClock(1, time.Millisecond)
	seen := make(chan uint64, 16)
	c.OnTick(func(h uint64) {
		select {
		case seen <- h:
		default:
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	assert.Equal(t, uint64(2), <-seen)
	assert.Equal(t, uint64(3), <-seen)
}
