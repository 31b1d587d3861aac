package buffer

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/stratumdb/stratum/storage/disk"
	"github.com/stratumdb/stratum/util"
)

func NewBufferpoolManager(size int, replacer *lruReplacer, diskScheduler *disk.DiskScheduler, logger *zap.Logger, reg prometheus.Registerer) *BufferpoolManager {
	frames := make([]*Page, size)
	freeFrames := make([]int, size)

	for i := 0; i < size; i++ {
		frames[i] = newFrame(i)
		freeFrames[i] = i
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &BufferpoolManager{
		frames:        frames,
		pageTable:     make(map[int64]int),
		replacer:      replacer,
		diskScheduler: diskScheduler,
		freeFrames:    freeFrames,
		logger:        logger.Named("bufferpool"),
		metrics:       NewMetrics(reg),
	}
}

// BufferpoolManager caches a fixed number of disk pages in preallocated
// frames. The page table, free list and frame metadata are guarded by one
// pool-wide mutex; the whole fetch/evict/install sequence, including the
// dirty write-back, runs as a single critical section per page.
type BufferpoolManager struct {
	mu            sync.Mutex
	frames        []*Page
	pageTable     map[int64]int
	diskScheduler *disk.DiskScheduler
	replacer      *lruReplacer
	freeFrames    []int
	logger        *zap.Logger
	metrics       *Metrics
}

// FetchPage returns the page pinned. Every successful fetch must be matched
// by exactly one UnpinPage.
func (b *BufferpoolManager) FetchPage(pageId int64) (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameId, ok := b.pageTable[pageId]; ok {
		frame := b.frames[frameId]
		frame.pinCount += 1
		b.replacer.pin(frameId)
		b.metrics.Hits.Inc()
		return frame, nil
	}
	b.metrics.Misses.Inc()

	frameId, err := b.acquireFrame()
	if err != nil {
		return nil, err
	}

	frame := b.frames[frameId]
	frame.pageId = pageId
	frame.pinCount = 1
	frame.dirty = false
	b.pageTable[pageId] = frameId

	resp := <-b.diskScheduler.Schedule(disk.NewRequest(pageId, nil, false))
	if !resp.Success {
		delete(b.pageTable, pageId)
		frame.reset()
		b.freeFrames = append(b.freeFrames, frameId)
		return nil, fmt.Errorf("error reading page %d from disk", pageId)
	}
	copy(frame.data, resp.Data)

	return frame, nil
}

// NewPage allocates a fresh page id and returns its zeroed page pinned.
func (b *BufferpoolManager) NewPage() (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, err := b.acquireFrame()
	if err != nil {
		return nil, err
	}

	pageId := b.diskScheduler.AllocatePage()
	frame := b.frames[frameId]
	frame.pageId = pageId
	frame.pinCount = 1
	frame.dirty = false
	b.pageTable[pageId] = frameId

	return frame, nil
}

// UnpinPage drops one pin and records the caller's writes via dirty. It
// returns false if the page is not resident or was not pinned.
func (b *BufferpoolManager) UnpinPage(pageId int64, dirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable[pageId]
	if !ok {
		return false
	}

	frame := b.frames[frameId]
	if frame.pinCount <= 0 {
		return false
	}

	frame.dirty = frame.dirty || dirty
	frame.pinCount -= 1
	if frame.pinCount == 0 {
		b.replacer.unpin(frameId)
	}
	return true
}

// FlushPage writes the page back if dirty. The page may still be pinned.
// Returns false if the page is not resident.
func (b *BufferpoolManager) FlushPage(pageId int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable[pageId]
	if !ok {
		return false
	}

	b.flush(b.frames[frameId])
	return true
}

func (b *BufferpoolManager) FlushAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, frameId := range b.pageTable {
		b.flush(b.frames[frameId])
	}
}

// DeletePage removes the page from the pool and reclaims its id. Succeeds
// trivially if the page is not resident, fails if any holder still pins it.
func (b *BufferpoolManager) DeletePage(pageId int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable[pageId]
	if !ok {
		b.diskScheduler.DeallocatePage(pageId)
		return true
	}

	frame := b.frames[frameId]
	if frame.pinCount > 0 {
		return false
	}

	delete(b.pageTable, pageId)
	b.replacer.pin(frameId)
	frame.reset()
	b.freeFrames = append(b.freeFrames, frameId)
	b.diskScheduler.DeallocatePage(pageId)
	return true
}

// Size returns the pool capacity in frames.
func (b *BufferpoolManager) Size() int {
	return len(b.frames)
}

// acquireFrame hands out a reusable frame, preferring the free list and
// falling back to eviction. Caller must hold b.mu.
func (b *BufferpoolManager) acquireFrame() (int, error) {
	if len(b.freeFrames) > 0 {
		frameId := b.freeFrames[0]
		b.freeFrames = b.freeFrames[1:]
		return frameId, nil
	}

	frameId, ok := b.replacer.victim()
	if !ok {
		b.logger.Warn("bufferpool exhausted", zap.Int("poolSize", len(b.frames)))
		return INVALID_FRAME_ID, util.NewPoolExhaustedError()
	}

	frame := b.frames[frameId]
	b.flush(frame)
	b.logger.Debug("evicted page", zap.Int64("pageId", frame.pageId), zap.Int("frameId", frameId))
	b.metrics.Evictions.Inc()

	delete(b.pageTable, frame.pageId)
	frame.reset()
	return frameId, nil
}

// flush writes the frame back if dirty, blocking until the write completes.
// Caller must hold b.mu.
func (b *BufferpoolManager) flush(frame *Page) {
	if !frame.dirty {
		return
	}

	resp := <-b.diskScheduler.Schedule(disk.NewRequest(frame.pageId, frame.data, true))
	if !resp.Success {
		b.logger.Error("failed writing page to disk", zap.Int64("pageId", frame.pageId))
		return
	}
	frame.dirty = false
	b.metrics.Flushes.Inc()
}
