package index

import (
	"cmp"
	"fmt"

	"go.uber.org/zap"

	"github.com/stratumdb/stratum/buffer"
	"github.com/stratumdb/stratum/storage/disk"
)

const MIN_MAX_SIZE = 3

// repairOutcome reports which pages a structural repair discarded, so a
// caller knows what to free once its own pin is released.
type repairOutcome int

const (
	repairNone                 repairOutcome = iota // nothing freed at this level
	repairNodeRemoved                               // the node was merged away; caller frees its page
	repairNodeAndParentRemoved                      // the node and its parent were both merged away
)

// NewBplusTree opens the named index, loading its root from the directory
// page or registering a fresh record. Max sizes of zero pick the largest
// values the page layout allows.
func NewBplusTree(name string, bpm *buffer.BufferpoolManager, comparator Comparator, leafMaxSize, internalMaxSize int, logger *zap.Logger) (*BplusTree, error) {
	if comparator == nil {
		comparator = cmp.Compare[int64]
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &BplusTree{
		indexName:       name,
		rootPageId:      disk.INVALID_PAGE_ID,
		bpm:             bpm,
		comparator:      comparator,
		leafMaxSize:     clampMaxSize(leafMaxSize),
		internalMaxSize: clampMaxSize(internalMaxSize),
		logger:          logger.Named("bplustree"),
	}

	guard, err := bpm.FetchPageGuard(DIRECTORY_PAGE_ID)
	if err != nil {
		return nil, fmt.Errorf("error reading directory page: %v", err)
	}
	defer guard.Drop()

	dir, err := loadDirectoryPage(guard.Data())
	if err != nil {
		return nil, err
	}

	if rootPageId, ok := dir.getRecord(name); ok {
		b.rootPageId = rootPageId
	} else {
		dir.insertRecord(name, disk.INVALID_PAGE_ID)
		if err := dir.save(guard.Data()); err != nil {
			return nil, err
		}
		guard.SetDirty()
	}

	return b, nil
}

// BplusTree is a unique-key ordered index over buffer-pool pages. Point and
// range reads may run concurrently with each other, but structural
// modification is not latched: callers that mutate the tree from several
// goroutines must serialize those calls themselves.
type BplusTree struct {
	indexName       string
	rootPageId      int64
	bpm             *buffer.BufferpoolManager
	comparator      Comparator
	leafMaxSize     int
	internalMaxSize int
	logger          *zap.Logger
}

func (b *BplusTree) IsEmpty() bool {
	return b.rootPageId == disk.INVALID_PAGE_ID
}

// GetValue returns the value stored under key, reporting absence via the
// bool.
func (b *BplusTree) GetValue(key int64) (int64, bool, error) {
	if b.IsEmpty() {
		return 0, false, nil
	}

	leafGuard, err := b.findLeafGuard(key, false)
	if err != nil {
		return 0, false, err
	}
	defer leafGuard.Drop()

	value, found := asLeafPage(leafGuard.Data()).lookup(key, b.comparator)
	return value, found, nil
}

// Insert adds the pair, returning false if the key is already present.
func (b *BplusTree) Insert(key, value int64) (bool, error) {
	if b.IsEmpty() {
		if err := b.startNewTree(key, value); err != nil {
			return false, err
		}
		return true, nil
	}

	leafGuard, err := b.findLeafGuard(key, false)
	if err != nil {
		return false, err
	}
	defer leafGuard.Drop()

	leaf := asLeafPage(leafGuard.Data())
	idx := leaf.keyIndex(key, b.comparator)
	if idx < leaf.getSize() && b.comparator(leaf.keyAt(idx), key) == 0 {
		return false, nil
	}

	size := leaf.insert(key, value, b.comparator)
	leafGuard.SetDirty()

	if size >= leaf.maxSize() {
		if err := b.splitLeaf(leafGuard); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Remove deletes the entry under key, repairing underflowing nodes by
// redistribution or coalescing. Removing an absent key is a no-op.
func (b *BplusTree) Remove(key int64) error {
	if b.IsEmpty() {
		return nil
	}

	leafGuard, err := b.findLeafGuard(key, false)
	if err != nil {
		return err
	}

	leaf := asLeafPage(leafGuard.Data())
	idx := leaf.keyIndex(key, b.comparator)
	if idx >= leaf.getSize() || b.comparator(leaf.keyAt(idx), key) != 0 {
		leafGuard.Drop()
		return nil
	}

	leaf.removeAt(idx)
	leafGuard.SetDirty()

	outcome := repairNone
	freed := []int64{}
	if b.needsRepair(leaf.nodePage) {
		outcome, err = b.coalesceOrRedistribute(leafGuard, &freed)
	}

	leafId := leafGuard.Id()
	leafGuard.Drop()
	if err != nil {
		return err
	}

	if outcome != repairNone {
		freed = append(freed, leafId)
	}
	// structurally removed pages go back to the pool only after every pin
	// on them is gone
	for _, pageId := range freed {
		b.bpm.DeletePage(pageId)
	}
	return nil
}

func (b *BplusTree) startNewTree(key, value int64) error {
	guard, err := b.bpm.NewPageGuard()
	if err != nil {
		return err
	}
	defer guard.Drop()

	leaf := asLeafPage(guard.Data())
	leaf.init(guard.Id(), disk.INVALID_PAGE_ID, b.leafMaxSize)
	leaf.insert(key, value, b.comparator)

	return b.setRootPageId(guard.Id())
}

func (b *BplusTree) splitLeaf(leafGuard *buffer.PageGuard) error {
	newGuard, err := b.bpm.NewPageGuard()
	if err != nil {
		return err
	}
	defer newGuard.Drop()

	leaf := asLeafPage(leafGuard.Data())
	newLeaf := asLeafPage(newGuard.Data())
	newLeaf.init(newGuard.Id(), leaf.parent(), b.leafMaxSize)

	leaf.moveHalfTo(newLeaf)
	newLeaf.setNext(leaf.next())
	leaf.setNext(newLeaf.pageId())

	return b.insertIntoParent(leafGuard, newLeaf.keyAt(0), newGuard)
}

func (b *BplusTree) splitInternal(nodeGuard *buffer.PageGuard) error {
	newGuard, err := b.bpm.NewPageGuard()
	if err != nil {
		return err
	}
	defer newGuard.Drop()

	node := asInternalPage(nodeGuard.Data())
	sibling := asInternalPage(newGuard.Data())
	sibling.init(newGuard.Id(), node.parent(), b.internalMaxSize)

	if err := node.moveHalfTo(sibling, b.bpm); err != nil {
		return err
	}

	return b.insertIntoParent(nodeGuard, sibling.keyAt(0), newGuard)
}

// insertIntoParent hooks a freshly split-off sibling into the tree,
// recursing while parents keep overflowing.
func (b *BplusTree) insertIntoParent(oldGuard *buffer.PageGuard, key int64, newGuard *buffer.PageGuard) error {
	old := nodePage{oldGuard.Data()}
	sibling := nodePage{newGuard.Data()}

	if old.pageId() == b.rootPageId {
		rootGuard, err := b.bpm.NewPageGuard()
		if err != nil {
			return err
		}
		defer rootGuard.Drop()

		root := asInternalPage(rootGuard.Data())
		root.init(rootGuard.Id(), disk.INVALID_PAGE_ID, b.internalMaxSize)
		root.populateNewRoot(old.pageId(), key, sibling.pageId())

		old.setParent(root.pageId())
		sibling.setParent(root.pageId())
		oldGuard.SetDirty()
		newGuard.SetDirty()

		b.logger.Debug("grew a new root", zap.Int64("pageId", root.pageId()))
		return b.setRootPageId(root.pageId())
	}

	parentGuard, err := b.bpm.FetchPageGuard(old.parent())
	if err != nil {
		return err
	}
	defer parentGuard.Drop()

	parent := asInternalPage(parentGuard.Data())
	size := parent.insertNodeAfter(old.pageId(), key, sibling.pageId())
	parentGuard.SetDirty()

	if size >= parent.maxSize() {
		return b.splitInternal(parentGuard)
	}
	return nil
}

// coalesceOrRedistribute repairs an underflowing node: pull one entry from
// a sibling with spare entries, otherwise merge with a sibling and recurse
// into the parent. Freed page ids are collected for the caller to delete
// after all pins are released.
func (b *BplusTree) coalesceOrRedistribute(nodeGuard *buffer.PageGuard, freed *[]int64) (repairOutcome, error) {
	node := nodePage{nodeGuard.Data()}
	if node.pageId() == b.rootPageId {
		return b.adjustRoot(nodeGuard)
	}

	parentGuard, err := b.bpm.FetchPageGuard(node.parent())
	if err != nil {
		return repairNone, err
	}
	defer parentGuard.Drop()

	parent := asInternalPage(parentGuard.Data())
	nodeIdx := parent.valueIndex(node.pageId())
	if nodeIdx < 0 {
		return repairNone, fmt.Errorf("page %d missing from its parent %d", node.pageId(), parent.pageId())
	}

	var leftGuard, rightGuard *buffer.PageGuard
	defer func() {
		leftGuard.Drop()
		rightGuard.Drop()
	}()

	if nodeIdx > 0 {
		leftGuard, err = b.bpm.FetchPageGuard(parent.valueAt(nodeIdx - 1))
		if err != nil {
			return repairNone, err
		}
		left := nodePage{leftGuard.Data()}
		if left.getSize() > b.minSize(left) {
			return repairNone, b.redistributeFromLeft(leftGuard, nodeGuard, parentGuard, nodeIdx)
		}
	}

	if nodeIdx < parent.getSize()-1 {
		rightGuard, err = b.bpm.FetchPageGuard(parent.valueAt(nodeIdx + 1))
		if err != nil {
			return repairNone, err
		}
		right := nodePage{rightGuard.Data()}
		if right.getSize() > b.minSize(right) {
			return repairNone, b.redistributeFromRight(rightGuard, nodeGuard, parentGuard, nodeIdx)
		}
	}

	if leftGuard == nil && rightGuard == nil {
		// only child of its parent, nothing to borrow from or merge with
		return repairNone, nil
	}

	outcome := repairNone
	if leftGuard != nil {
		// merge the node into its left sibling; the node page goes away
		if err := b.coalesce(leftGuard, nodeGuard, parentGuard, nodeIdx); err != nil {
			return repairNone, err
		}
		outcome = repairNodeRemoved
	} else {
		// leftmost child: absorb the right sibling instead
		if err := b.coalesce(nodeGuard, rightGuard, parentGuard, nodeIdx+1); err != nil {
			return repairNone, err
		}
		*freed = append(*freed, rightGuard.Id())
	}

	if b.needsRepair(parent.nodePage) {
		rec, err := b.coalesceOrRedistribute(parentGuard, freed)
		if err != nil {
			return outcome, err
		}
		if rec != repairNone {
			*freed = append(*freed, parentGuard.Id())
			if outcome == repairNodeRemoved {
				outcome = repairNodeAndParentRemoved
			}
		}
	}

	return outcome, nil
}

// coalesce moves every entry of src into dst and drops src's separating key
// from the parent.
func (b *BplusTree) coalesce(dstGuard, srcGuard, parentGuard *buffer.PageGuard, parentKeyIdx int) error {
	parent := asInternalPage(parentGuard.Data())

	if (nodePage{srcGuard.Data()}).isLeafPage() {
		asLeafPage(srcGuard.Data()).moveAllTo(asLeafPage(dstGuard.Data()))
	} else {
		middleKey := parent.keyAt(parentKeyIdx)
		if err := asInternalPage(srcGuard.Data()).moveAllTo(asInternalPage(dstGuard.Data()), middleKey, b.bpm); err != nil {
			return err
		}
	}

	parent.remove(parentKeyIdx)
	dstGuard.SetDirty()
	srcGuard.SetDirty()
	parentGuard.SetDirty()
	return nil
}

func (b *BplusTree) redistributeFromLeft(leftGuard, nodeGuard, parentGuard *buffer.PageGuard, nodeIdx int) error {
	parent := asInternalPage(parentGuard.Data())

	if (nodePage{nodeGuard.Data()}).isLeafPage() {
		left := asLeafPage(leftGuard.Data())
		node := asLeafPage(nodeGuard.Data())
		left.moveLastToFrontOf(node)
		parent.setKeyAt(nodeIdx, node.keyAt(0))
	} else {
		left := asInternalPage(leftGuard.Data())
		node := asInternalPage(nodeGuard.Data())
		middleKey := parent.keyAt(nodeIdx)
		newSeparator := left.keyAt(left.getSize() - 1)
		if err := left.moveLastToFrontOf(node, middleKey, b.bpm); err != nil {
			return err
		}
		parent.setKeyAt(nodeIdx, newSeparator)
	}

	leftGuard.SetDirty()
	nodeGuard.SetDirty()
	parentGuard.SetDirty()
	return nil
}

func (b *BplusTree) redistributeFromRight(rightGuard, nodeGuard, parentGuard *buffer.PageGuard, nodeIdx int) error {
	parent := asInternalPage(parentGuard.Data())
	rightIdx := nodeIdx + 1

	if (nodePage{nodeGuard.Data()}).isLeafPage() {
		right := asLeafPage(rightGuard.Data())
		node := asLeafPage(nodeGuard.Data())
		right.moveFirstToEndOf(node)
		parent.setKeyAt(rightIdx, right.keyAt(0))
	} else {
		right := asInternalPage(rightGuard.Data())
		node := asInternalPage(nodeGuard.Data())
		middleKey := parent.keyAt(rightIdx)
		newSeparator := right.keyAt(1)
		if err := right.moveFirstToEndOf(node, middleKey, b.bpm); err != nil {
			return err
		}
		parent.setKeyAt(rightIdx, newSeparator)
	}

	rightGuard.SetDirty()
	nodeGuard.SetDirty()
	parentGuard.SetDirty()
	return nil
}

// adjustRoot handles the underflow cases only the root is allowed to reach:
// an empty leaf root empties the tree, an internal root with one child hands
// the root over to that child.
func (b *BplusTree) adjustRoot(rootGuard *buffer.PageGuard) (repairOutcome, error) {
	root := nodePage{rootGuard.Data()}

	if root.isLeafPage() {
		if root.getSize() > 0 {
			return repairNone, nil
		}
		if err := b.setRootPageId(disk.INVALID_PAGE_ID); err != nil {
			return repairNone, err
		}
		return repairNodeRemoved, nil
	}

	if root.getSize() > 1 {
		return repairNone, nil
	}

	childId := asInternalPage(rootGuard.Data()).removeAndReturnOnlyChild()
	rootGuard.SetDirty()

	childGuard, err := b.bpm.FetchPageGuard(childId)
	if err != nil {
		return repairNone, err
	}
	(nodePage{childGuard.Data()}).setParent(disk.INVALID_PAGE_ID)
	childGuard.SetDirty()
	childGuard.Drop()

	if err := b.setRootPageId(childId); err != nil {
		return repairNone, err
	}
	return repairNodeRemoved, nil
}

// findLeafGuard descends to the leaf covering key (or the leftmost leaf),
// holding a pin only on the node currently being examined.
func (b *BplusTree) findLeafGuard(key int64, leftMost bool) (*buffer.PageGuard, error) {
	currPageId := b.rootPageId

	for {
		guard, err := b.bpm.FetchPageGuard(currPageId)
		if err != nil {
			return nil, err
		}

		if (nodePage{guard.Data()}).isLeafPage() {
			return guard, nil
		}

		internal := asInternalPage(guard.Data())
		if leftMost {
			currPageId = internal.valueAt(0)
		} else {
			currPageId = internal.lookup(key, b.comparator)
		}
		guard.Drop()
	}
}

func (b *BplusTree) setRootPageId(pageId int64) error {
	b.rootPageId = pageId

	guard, err := b.bpm.FetchPageGuard(DIRECTORY_PAGE_ID)
	if err != nil {
		return fmt.Errorf("error updating root record: %v", err)
	}
	defer guard.Drop()

	dir, err := loadDirectoryPage(guard.Data())
	if err != nil {
		return err
	}
	dir.updateRecord(b.indexName, pageId)
	if err := dir.save(guard.Data()); err != nil {
		return err
	}
	guard.SetDirty()

	b.logger.Debug("root changed", zap.String("index", b.indexName), zap.Int64("rootPageId", pageId))
	return nil
}

// minSize is the structural lower bound for non-root nodes: half the
// configured capacity, counting entries in leaves and children in internal
// nodes.
func (b *BplusTree) minSize(n nodePage) int {
	return n.maxSize() / 2
}

func (b *BplusTree) needsRepair(n nodePage) bool {
	if n.pageId() == b.rootPageId {
		if n.isLeafPage() {
			return n.getSize() == 0
		}
		return n.getSize() <= 1
	}
	return n.getSize() < b.minSize(n)
}

func clampMaxSize(maxSize int) int {
	if maxSize <= 0 {
		return MAX_PAGE_SLOTS
	}
	if maxSize < MIN_MAX_SIZE {
		return MIN_MAX_SIZE
	}
	if maxSize > MAX_PAGE_SLOTS {
		return MAX_PAGE_SLOTS
	}
	return maxSize
}
