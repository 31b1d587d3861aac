package buffer

// PageGuard pairs a pinned page with the unpin it owes the pool. Callers
// defer Drop so every exit path releases the pin exactly once; Drop is
// idempotent and nil-safe.
type PageGuard struct {
	page   *Page
	pageId int64
	bpm    *BufferpoolManager
	dirty  bool
	done   bool
}

// FetchPageGuard pins pageId and wraps it in a guard.
func (b *BufferpoolManager) FetchPageGuard(pageId int64) (*PageGuard, error) {
	page, err := b.FetchPage(pageId)
	if err != nil {
		return nil, err
	}

	return &PageGuard{page: page, pageId: pageId, bpm: b}, nil
}

// NewPageGuard allocates a fresh page and wraps it in a guard. The guard is
// born dirty since a new page must reach disk at least once.
func (b *BufferpoolManager) NewPageGuard() (*PageGuard, error) {
	page, err := b.NewPage()
	if err != nil {
		return nil, err
	}

	return &PageGuard{page: page, pageId: page.pageId, bpm: b, dirty: true}, nil
}

func (pg *PageGuard) Id() int64 {
	return pg.pageId
}

func (pg *PageGuard) Data() []byte {
	return pg.page.data
}

// SetDirty records that the caller mutated the page through this guard.
func (pg *PageGuard) SetDirty() {
	pg.dirty = true
}

// Drop releases the guard's pin, reporting accumulated dirtiness.
func (pg *PageGuard) Drop() {
	if pg == nil || pg.done {
		return
	}
	pg.done = true
	pg.bpm.UnpinPage(pg.pageId, pg.dirty)
}
