package buffer

import (
	"github.com/stratumdb/stratum/storage/disk"
)

// Page is one pool frame: a page-sized buffer holding the image of the
// resident page plus the bookkeeping the pool needs to manage it. Frames are
// created once at pool construction and reused for the pool's lifetime.
// All fields are guarded by the pool mutex.
type Page struct {
	frameId  int
	pageId   int64
	data     []byte
	pinCount int32
	dirty    bool
}

func newFrame(frameId int) *Page {
	return &Page{
		frameId: frameId,
		pageId:  disk.INVALID_PAGE_ID,
		data:    make([]byte, disk.PAGE_SIZE),
	}
}

func (p *Page) Id() int64 {
	return p.pageId
}

func (p *Page) Data() []byte {
	return p.data
}

func (p *Page) PinCount() int32 {
	return p.pinCount
}

func (p *Page) IsDirty() bool {
	return p.dirty
}

func (p *Page) reset() {
	p.pageId = disk.INVALID_PAGE_ID
	p.pinCount = 0
	p.dirty = false
	clear(p.data)
}
