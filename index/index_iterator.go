package index

import (
	"fmt"

	"github.com/stratumdb/stratum/buffer"
	"github.com/stratumdb/stratum/storage/disk"
)

// Iterator returns a forward iterator positioned at the first entry of the
// tree. The iterator keeps its current leaf pinned, so it must be closed.
func (b *BplusTree) Iterator() (*indexIterator, error) {
	if b.IsEmpty() {
		return &indexIterator{bpm: b.bpm}, nil
	}

	guard, err := b.findLeafGuard(0, true)
	if err != nil {
		return nil, err
	}
	return newIndexIterator(b.bpm, guard, 0)
}

// IteratorFrom returns a forward iterator positioned at the first entry with
// key >= the given lower bound.
func (b *BplusTree) IteratorFrom(key int64) (*indexIterator, error) {
	if b.IsEmpty() {
		return &indexIterator{bpm: b.bpm}, nil
	}

	guard, err := b.findLeafGuard(key, false)
	if err != nil {
		return nil, err
	}
	pos := asLeafPage(guard.Data()).keyIndex(key, b.comparator)
	return newIndexIterator(b.bpm, guard, pos)
}

func newIndexIterator(bpm *buffer.BufferpoolManager, guard *buffer.PageGuard, pos int) (*indexIterator, error) {
	it := &indexIterator{bpm: bpm, guard: guard, pos: pos}
	// the starting slot may sit past the leaf's last entry
	if err := it.advanceLeaf(); err != nil {
		it.Close()
		return nil, err
	}
	return it, nil
}

// indexIterator walks leaf pages through their sibling links, holding a pin
// on the current leaf for its whole lifetime.
type indexIterator struct {
	pos   int
	guard *buffer.PageGuard
	bpm   *buffer.BufferpoolManager
}

func (it *indexIterator) IsEnd() bool {
	return it.guard == nil
}

// Next returns the entry under the cursor and advances it.
func (it *indexIterator) Next() (int64, int64, error) {
	if it.IsEnd() {
		return 0, 0, fmt.Errorf("iterator is exhausted")
	}

	leaf := asLeafPage(it.guard.Data())
	key := leaf.keyAt(it.pos)
	value := leaf.valueAt(it.pos)
	it.pos += 1

	if err := it.advanceLeaf(); err != nil {
		return key, value, err
	}
	return key, value, nil
}

// advanceLeaf follows sibling links until the cursor rests on a live entry,
// unpinning each exhausted leaf. An invalid sibling link ends the iterator.
func (it *indexIterator) advanceLeaf() error {
	for it.guard != nil {
		leaf := asLeafPage(it.guard.Data())
		if it.pos < leaf.getSize() {
			return nil
		}

		nextPageId := leaf.next()
		it.guard.Drop()
		it.guard = nil

		if nextPageId == disk.INVALID_PAGE_ID {
			return nil
		}

		guard, err := it.bpm.FetchPageGuard(nextPageId)
		if err != nil {
			return err
		}
		it.guard = guard
		it.pos = 0
	}
	return nil
}

// Close releases the pin on the current leaf. Safe to call repeatedly.
func (it *indexIterator) Close() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
	}
}
