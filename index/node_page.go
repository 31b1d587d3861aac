package index

import (
	"encoding/binary"
	"fmt"

	"github.com/stratumdb/stratum/storage/disk"
)

type PAGE_TYPE = int32

const (
	INVALID_PAGE PAGE_TYPE = iota
	INTERNAL_PAGE
	LEAF_PAGE
)

// DIRECTORY_PAGE_ID is the reserved page holding index name to root page id
// records.
const DIRECTORY_PAGE_ID int64 = 0

// On-page layout. A fixed header followed by 16 byte (key, value) slots.
// Values are child page ids in internal nodes and user values in leaves.
const (
	offsetPageType = 0
	offsetSize     = 4
	offsetMaxSize  = 8
	offsetParent   = 12
	offsetSelf     = 20
	offsetNext     = 28
	nodeHeaderSize = 36
	entrySize      = 16
)

// MAX_PAGE_SLOTS is the number of usable slots per page. One slot is held
// back so an insert can transiently overflow a full node before it splits.
const MAX_PAGE_SLOTS = (disk.PAGE_SIZE-nodeHeaderSize)/entrySize - 1

// Comparator orders keys; negative, zero, positive like cmp.Compare.
type Comparator func(a, b int64) int

// nodePage is a typed view over a frame's raw bytes. It holds no state of
// its own: every accessor reads or writes the underlying page image, so
// mutations are visible to the buffer pool immediately.
type nodePage struct {
	data []byte
}

func (p nodePage) pageType() PAGE_TYPE {
	return PAGE_TYPE(binary.LittleEndian.Uint32(p.data[offsetPageType:]))
}

func (p nodePage) setPageType(pageType PAGE_TYPE) {
	binary.LittleEndian.PutUint32(p.data[offsetPageType:], uint32(pageType))
}

func (p nodePage) isLeafPage() bool {
	return p.pageType() == LEAF_PAGE
}

func (p nodePage) getSize() int {
	return int(int32(binary.LittleEndian.Uint32(p.data[offsetSize:])))
}

func (p nodePage) setSize(size int) {
	binary.LittleEndian.PutUint32(p.data[offsetSize:], uint32(size))
}

func (p nodePage) maxSize() int {
	return int(int32(binary.LittleEndian.Uint32(p.data[offsetMaxSize:])))
}

func (p nodePage) setMaxSize(maxSize int) {
	binary.LittleEndian.PutUint32(p.data[offsetMaxSize:], uint32(maxSize))
}

func (p nodePage) parent() int64 {
	return int64(binary.LittleEndian.Uint64(p.data[offsetParent:]))
}

func (p nodePage) setParent(pageId int64) {
	binary.LittleEndian.PutUint64(p.data[offsetParent:], uint64(pageId))
}

func (p nodePage) pageId() int64 {
	return int64(binary.LittleEndian.Uint64(p.data[offsetSelf:]))
}

func (p nodePage) setPageId(pageId int64) {
	binary.LittleEndian.PutUint64(p.data[offsetSelf:], uint64(pageId))
}

func (p nodePage) keyAt(idx int) int64 {
	return int64(binary.LittleEndian.Uint64(p.data[p.entryOffset(idx):]))
}

func (p nodePage) setKeyAt(idx int, key int64) {
	binary.LittleEndian.PutUint64(p.data[p.entryOffset(idx):], uint64(key))
}

func (p nodePage) valueAt(idx int) int64 {
	return int64(binary.LittleEndian.Uint64(p.data[p.entryOffset(idx)+8:]))
}

func (p nodePage) setValueAt(idx int, value int64) {
	binary.LittleEndian.PutUint64(p.data[p.entryOffset(idx)+8:], uint64(value))
}

// keyIndex returns the first index in [0, size) whose key is >= target, or
// size if every key is smaller.
func (p nodePage) keyIndex(key int64, comparator Comparator) int {
	left := 0
	right := p.getSize() - 1

	for left <= right {
		mid := left + (right-left)/2
		if comparator(p.keyAt(mid), key) < 0 {
			left = mid + 1
		} else {
			right = mid - 1
		}
	}

	return left
}

func (p nodePage) entryOffset(idx int) int {
	// one spare slot past maxSize is legal: inserts overflow before a split
	if idx < 0 || idx > MAX_PAGE_SLOTS {
		panic(fmt.Sprintf("page slot %d out of range", idx))
	}
	return nodeHeaderSize + idx*entrySize
}

// shiftRight moves slots [idx, size) one slot towards the end, opening a gap
// at idx. Caller bumps size afterwards.
func (p nodePage) shiftRight(idx int) {
	size := p.getSize()
	start := nodeHeaderSize + idx*entrySize
	end := nodeHeaderSize + size*entrySize
	copy(p.data[start+entrySize:end+entrySize], p.data[start:end])
}

// shiftLeft closes the gap at idx by moving slots (idx, size) one slot
// towards the front. Caller decrements size afterwards.
func (p nodePage) shiftLeft(idx int) {
	size := p.getSize()
	start := nodeHeaderSize + idx*entrySize
	end := nodeHeaderSize + size*entrySize
	copy(p.data[start:], p.data[start+entrySize:end])
}

// copySlots copies n slots starting at srcIdx in src into this page starting
// at dstIdx. Sizes are not touched.
func (p nodePage) copySlots(dstIdx int, src nodePage, srcIdx, n int) {
	if n <= 0 {
		return
	}
	dst := nodeHeaderSize + dstIdx*entrySize
	from := nodeHeaderSize + srcIdx*entrySize
	copy(p.data[dst:dst+n*entrySize], src.data[from:from+n*entrySize])
}
