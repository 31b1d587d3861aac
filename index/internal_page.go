package index

import (
	"github.com/stratumdb/stratum/buffer"
	"github.com/stratumdb/stratum/storage/disk"
)

// internalPage views a page as an ordered run of (key, child page id) pairs.
// Size counts children; the key in slot 0 is a dummy, so child i covers keys
// in [key[i], key[i+1]). Every structural move that adopts children rewrites
// their stored parent pointers through the buffer pool.
type internalPage struct {
	nodePage
}

func asInternalPage(data []byte) internalPage {
	return internalPage{nodePage{data}}
}

func (p internalPage) init(pageId, parentPageId int64, maxSize int) {
	p.setPageType(INTERNAL_PAGE)
	p.setSize(0)
	p.setMaxSize(maxSize)
	p.setPageId(pageId)
	p.setParent(parentPageId)
}

// lookup returns the child covering key: the child of the greatest key <=
// target, child 0 when every key is greater.
func (p internalPage) lookup(key int64, comparator Comparator) int64 {
	childIdx := 0
	for i := 1; i < p.getSize(); i++ {
		if comparator(key, p.keyAt(i)) >= 0 {
			childIdx = i
		} else {
			break
		}
	}
	return p.valueAt(childIdx)
}

// valueIndex returns the slot holding child pageId, -1 if absent.
func (p internalPage) valueIndex(pageId int64) int {
	for i := 0; i < p.getSize(); i++ {
		if p.valueAt(i) == pageId {
			return i
		}
	}
	return -1
}

// populateNewRoot seeds a fresh root with two children split by key.
func (p internalPage) populateNewRoot(leftChild, key, rightChild int64) {
	p.setValueAt(0, leftChild)
	p.setKeyAt(1, key)
	p.setValueAt(1, rightChild)
	p.setSize(2)
}

// insertNodeAfter places (key, newChild) right after oldChild and returns
// the new size.
func (p internalPage) insertNodeAfter(oldChild, key, newChild int64) int {
	idx := p.valueIndex(oldChild) + 1
	p.shiftRight(idx)
	p.setKeyAt(idx, key)
	p.setValueAt(idx, newChild)
	p.setSize(p.getSize() + 1)
	return p.getSize()
}

func (p internalPage) remove(idx int) {
	p.shiftLeft(idx)
	p.setSize(p.getSize() - 1)
}

// removeAndReturnOnlyChild empties the node and returns its single child,
// used when collapsing the root.
func (p internalPage) removeAndReturnOnlyChild() int64 {
	child := p.valueAt(0)
	p.setSize(0)
	return child
}

// moveHalfTo moves the upper half of the pairs into other. The key that
// lands in other's slot 0 becomes the separator the caller pushes into the
// parent; within other it is the usual dummy.
func (p internalPage) moveHalfTo(other internalPage, bpm *buffer.BufferpoolManager) error {
	size := p.getSize()
	splitIdx := size / 2

	other.copySlots(0, p.nodePage, splitIdx, size-splitIdx)
	other.setSize(size - splitIdx)
	p.setSize(splitIdx)

	return other.adoptChildren(0, other.getSize(), bpm)
}

// moveAllTo appends every pair to other, threading middleKey (pulled from
// the parent) as the key of the first moved pair.
func (p internalPage) moveAllTo(other internalPage, middleKey int64, bpm *buffer.BufferpoolManager) error {
	size := p.getSize()
	otherSize := other.getSize()

	p.setKeyAt(0, middleKey)
	other.copySlots(otherSize, p.nodePage, 0, size)
	other.setSize(otherSize + size)
	p.setSize(0)

	return other.adoptChildren(otherSize, otherSize+size, bpm)
}

// moveFirstToEndOf appends (middleKey, first child) to the left sibling
// during redistribution.
func (p internalPage) moveFirstToEndOf(other internalPage, middleKey int64, bpm *buffer.BufferpoolManager) error {
	otherSize := other.getSize()
	other.setKeyAt(otherSize, middleKey)
	other.setValueAt(otherSize, p.valueAt(0))
	other.setSize(otherSize + 1)

	p.remove(0)

	return other.adoptChildren(otherSize, otherSize+1, bpm)
}

// moveLastToFrontOf prepends the last child to the right sibling during
// redistribution; the sibling's old first child gets middleKey as its
// separator.
func (p internalPage) moveLastToFrontOf(other internalPage, middleKey int64, bpm *buffer.BufferpoolManager) error {
	last := p.getSize() - 1

	other.shiftRight(0)
	other.setSize(other.getSize() + 1)
	other.setKeyAt(1, middleKey)
	other.setKeyAt(0, 0)
	other.setValueAt(0, p.valueAt(last))
	p.setSize(last)

	return other.adoptChildren(0, 1, bpm)
}

// adoptChildren points the children in slots [from, to) back at this node.
func (p internalPage) adoptChildren(from, to int, bpm *buffer.BufferpoolManager) error {
	for i := from; i < to; i++ {
		childId := p.valueAt(i)
		if childId == disk.INVALID_PAGE_ID {
			continue
		}

		guard, err := bpm.FetchPageGuard(childId)
		if err != nil {
			return err
		}
		child := nodePage{guard.Data()}
		child.setParent(p.pageId())
		guard.SetDirty()
		guard.Drop()
	}
	return nil
}
