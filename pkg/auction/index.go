package auction

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/btree"
)

type indexItem struct {
	expireAt uint64
	id       common.Hash
}

func indexLess(a, b indexItem) bool {
	if a.expireAt != b.expireAt {
		return a.expireAt < b.expireAt
	}
	return bytes.Compare(a.id[:], b.id[:]) < 0
}

// expiryIndex orders unresolved requests by deadline. Not safe for concurrent use.
type expiryIndex struct {
	tree *btree.BTreeG[indexItem]
}

func newExpiryIndex() *expiryIndex {
	return &expiryIndex{tree: btree.NewG(16, indexLess)}
}

func (x *expiryIndex) add(id common.Hash, expireAt uint64) {
	x.tree.ReplaceOrInsert(indexItem{expireAt: expireAt, id: id})
}

func (x *expiryIndex) remove(id common.Hash, expireAt uint64) {
	x.tree.Delete(indexItem{expireAt: expireAt, id: id})
}

func (x *expiryIndex) len() int {
	return x.tree.Len()
}

// expiredBy returns ids with expireAt <= height, earliest deadline first
func (x *expiryIndex) expiredBy(height uint64) []common.Hash {
	var ids []common.Hash
	x.tree.Ascend(func(it indexItem) bool {
		if it.expireAt > height {
			return false
		}
		ids = append(ids, it.id)
		return true
	})
	return ids
}

func (x *expiryIndex) all() []common.Hash {
	ids := make([]common.Hash, 0, x.tree.Len())
	x.tree.Ascend(func(it indexItem) bool {
		ids = append(ids, it.id)
		return true
	})
	return ids
}
