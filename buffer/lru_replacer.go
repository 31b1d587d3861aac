package buffer

import (
	"sync"
)

const INVALID_FRAME_ID = -1

func NewLruReplacer() *lruReplacer {
	return &lruReplacer{
		evictable: map[int]int64{},
	}
}

// lruReplacer tracks frames whose pin count has dropped to zero. Each frame
// is stamped when it becomes evictable and the victim is the frame with the
// oldest stamp. Re-marking an already evictable frame keeps the original
// stamp, so the first frame to become eligible is the first one evicted.
type lruReplacer struct {
	mu        sync.Mutex
	evictable map[int]int64
	timestamp int64
}

func (lru *lruReplacer) unpin(frameId int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if _, ok := lru.evictable[frameId]; ok {
		return
	}

	lru.timestamp += 1
	lru.evictable[frameId] = lru.timestamp
}

func (lru *lruReplacer) pin(frameId int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	delete(lru.evictable, frameId)
}

// victim removes and returns the evictable frame with the smallest stamp.
func (lru *lruReplacer) victim() (int, bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if len(lru.evictable) == 0 {
		return INVALID_FRAME_ID, false
	}

	oldest := INVALID_FRAME_ID
	var oldestStamp int64
	for frameId, stamp := range lru.evictable {
		if oldest == INVALID_FRAME_ID || stamp < oldestStamp {
			oldest = frameId
			oldestStamp = stamp
		}
	}

	delete(lru.evictable, oldest)
	return oldest, true
}

func (lru *lruReplacer) size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	return len(lru.evictable)
}
