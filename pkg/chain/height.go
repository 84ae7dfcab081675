package chain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/screa/d3caf/internal/store"
)

var heightKey = []byte("chain/height")

// Settable is a clock that can be moved forward to a given height
type Settable interface {
	Clock
	Set(height uint64)
}

// StoredHeight returns the highest block height committed to r
func StoredHeight(r Reader) (uint64, bool, error) {
	v, err := r.Get(heightKey)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(v) != 8 {
		return 0, false, fmt.Errorf("stored height: got %d bytes, want 8", len(v))
	}
	return binary.BigEndian.Uint64(v), true, nil
}

// PutHeight stages height in txn. Heights at or below the stored one are ignored.
func PutHeight(txn *store.Txn, height uint64) error {
	stored, ok, err := StoredHeight(txn)
	if err != nil {
		return err
	}
	if ok && height <= stored {
		return nil
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	txn.Put(heightKey, b[:])
	return nil
}

// Restore moves clock up to the height stored in r. A clock already past it is left alone.
// It fails when the clock is behind and cannot be moved.
func Restore(r Reader, clock Clock) (uint64, error) {
	stored, ok, err := StoredHeight(r)
	if err != nil || !ok {
		return clock.Height(), err
	}
	if clock.Height() >= stored {
		return clock.Height(), nil
	}
	c, settable := clock.(Settable)
	if !settable {
		return 0, fmt.Errorf("clock at height %d is behind stored height %d", clock.Height(), stored)
	}
	c.Set(stored)
	return c.Height(), nil
}
