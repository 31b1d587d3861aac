package disk

import (
	"fmt"
	"os"
	"sync"
)

const PAGE_SIZE = 4096
const DEFAULT_PAGE_CAPACITY = 16

const INVALID_PAGE_ID int64 = -1

// Page id 0 is reserved for the index directory, allocation starts above it.
const RESERVED_PAGE_COUNT = 1

func NewManager(file *os.File) *Manager {
	return &Manager{
		dbFile:       file,
		pageCapacity: DEFAULT_PAGE_CAPACITY,
		freeSlots:    []int64{},
		freeIds:      []int64{},
		offsets:      map[int64]int64{},
		nextPageId:   RESERVED_PAGE_COUNT,
	}
}

// Manager persists fixed-size pages in a single file. Pages are placed at
// file offsets independent of their ids so that deallocated slots can be
// reused without renumbering.
type Manager struct {
	mu           sync.Mutex
	dbFile       *os.File
	offsets      map[int64]int64
	freeSlots    []int64
	freeIds      []int64
	nextPageId   int64
	nextOffset   int64
	pageCapacity int
}

func (dm *Manager) WritePage(pageId int64, data []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	offset, err := dm.slotFor(pageId)
	if err != nil {
		return err
	}

	if _, err := dm.dbFile.WriteAt(data, offset); err != nil {
		return fmt.Errorf("error writing page %d at offset %d: %v", pageId, offset, err)
	}

	return nil
}

// ReadPage fills buf with the page's persisted bytes. A page that was never
// written reads back as zeroes.
func (dm *Manager) ReadPage(pageId int64, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	offset, err := dm.slotFor(pageId)
	if err != nil {
		return err
	}

	if _, err := dm.dbFile.ReadAt(buf[:PAGE_SIZE], offset); err != nil {
		return fmt.Errorf("error reading page %d from offset %d: %v", pageId, offset, err)
	}

	return nil
}

// AllocatePage hands out a page id, reusing deallocated ids first.
func (dm *Manager) AllocatePage() int64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if len(dm.freeIds) > 0 {
		id := dm.freeIds[0]
		dm.freeIds = dm.freeIds[1:]
		return id
	}

	id := dm.nextPageId
	dm.nextPageId += 1
	return id
}

func (dm *Manager) DeallocatePage(pageId int64) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if offset, ok := dm.offsets[pageId]; ok {
		dm.freeSlots = append(dm.freeSlots, offset)
		delete(dm.offsets, pageId)
	}
	dm.freeIds = append(dm.freeIds, pageId)
}

// slotFor returns the file offset backing pageId, assigning one on first use.
// Caller must hold dm.mu.
func (dm *Manager) slotFor(pageId int64) (int64, error) {
	if offset, ok := dm.offsets[pageId]; ok {
		return offset, nil
	}

	if len(dm.freeSlots) > 0 {
		offset := dm.freeSlots[0]
		dm.freeSlots = dm.freeSlots[1:]
		dm.offsets[pageId] = offset
		return offset, nil
	}

	offset := dm.nextOffset
	for offset+PAGE_SIZE > int64(dm.pageCapacity)*PAGE_SIZE {
		dm.pageCapacity *= 2
	}
	if err := os.Truncate(dm.dbFile.Name(), int64(dm.pageCapacity)*PAGE_SIZE); err != nil {
		return -1, fmt.Errorf("error resizing db file: %v", err)
	}

	dm.nextOffset += PAGE_SIZE
	dm.offsets[pageId] = offset
	return offset, nil
}
