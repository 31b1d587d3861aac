package index

import (
	"encoding/binary"

	"github.com/stratumdb/stratum/storage/disk"
)

// leafPage views a page as an ordered run of unique (key, value) pairs with
// a sibling link to the next leaf.
type leafPage struct {
	nodePage
}

func asLeafPage(data []byte) leafPage {
	return leafPage{nodePage{data}}
}

func (p leafPage) init(pageId, parentPageId int64, maxSize int) {
	p.setPageType(LEAF_PAGE)
	p.setSize(0)
	p.setMaxSize(maxSize)
	p.setPageId(pageId)
	p.setParent(parentPageId)
	p.setNext(disk.INVALID_PAGE_ID)
}

func (p leafPage) next() int64 {
	return int64(binary.LittleEndian.Uint64(p.data[offsetNext:]))
}

func (p leafPage) setNext(pageId int64) {
	binary.LittleEndian.PutUint64(p.data[offsetNext:], uint64(pageId))
}

func (p leafPage) lookup(key int64, comparator Comparator) (int64, bool) {
	idx := p.keyIndex(key, comparator)
	if idx < p.getSize() && comparator(p.keyAt(idx), key) == 0 {
		return p.valueAt(idx), true
	}
	return 0, false
}

// insert places the pair keeping keys ascending and returns the new size.
// The caller has already ruled out a duplicate.
func (p leafPage) insert(key, value int64, comparator Comparator) int {
	idx := p.keyIndex(key, comparator)
	p.shiftRight(idx)
	p.setKeyAt(idx, key)
	p.setValueAt(idx, value)
	p.setSize(p.getSize() + 1)
	return p.getSize()
}

func (p leafPage) removeAt(idx int) {
	p.shiftLeft(idx)
	p.setSize(p.getSize() - 1)
}

// moveHalfTo moves the upper half of the entries into other, which must be
// freshly initialized. Used when splitting an overflowing leaf.
func (p leafPage) moveHalfTo(other leafPage) {
	size := p.getSize()
	splitIdx := size / 2

	other.copySlots(0, p.nodePage, splitIdx, size-splitIdx)
	other.setSize(size - splitIdx)
	p.setSize(splitIdx)
}

// moveAllTo appends every entry to other and threads the sibling link past
// this leaf. Used when coalescing an underflowing leaf.
func (p leafPage) moveAllTo(other leafPage) {
	size := p.getSize()
	otherSize := other.getSize()

	other.copySlots(otherSize, p.nodePage, 0, size)
	other.setSize(otherSize + size)
	other.setNext(p.next())
	p.setSize(0)
}

// moveFirstToEndOf shifts one entry to the left sibling during
// redistribution.
func (p leafPage) moveFirstToEndOf(other leafPage) {
	otherSize := other.getSize()
	other.setKeyAt(otherSize, p.keyAt(0))
	other.setValueAt(otherSize, p.valueAt(0))
	other.setSize(otherSize + 1)
	p.removeAt(0)
}

// moveLastToFrontOf shifts one entry to the right sibling during
// redistribution.
func (p leafPage) moveLastToFrontOf(other leafPage) {
	last := p.getSize() - 1
	other.shiftRight(0)
	other.setKeyAt(0, p.keyAt(last))
	other.setValueAt(0, p.valueAt(last))
	other.setSize(other.getSize() + 1)
	p.setSize(last)
}
