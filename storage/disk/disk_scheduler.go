package disk

import (
	"sync"
)

func NewScheduler(diskManager *Manager) *DiskScheduler {
	ds := &DiskScheduler{
		reqCh:       make(chan DiskReq, 100),
		pageQueue:   make(map[int64]chan DiskReq),
		pageQueueMu: sync.Mutex{},
		diskManager: diskManager,
	}

	go ds.handleDiskReq()
	return ds
}

func NewRequest(pageId int64, data []byte, isWrite bool) DiskReq {
	respCh := make(chan DiskResp, 1)
	return DiskReq{
		PageId: pageId,
		Data:   data,
		Write:  isWrite,
		RespCh: respCh,
	}
}

func (ds *DiskScheduler) Schedule(req DiskReq) <-chan DiskResp {
	ds.reqCh <- req
	return req.RespCh
}

// AllocatePage and DeallocatePage are pass-throughs so that holders of the
// scheduler don't also need the manager.
func (ds *DiskScheduler) AllocatePage() int64 {
	return ds.diskManager.AllocatePage()
}

func (ds *DiskScheduler) DeallocatePage(pageId int64) {
	ds.diskManager.DeallocatePage(pageId)
}

func (ds *DiskScheduler) handleDiskReq() {
	for req := range ds.reqCh {
		ds.pageQueueMu.Lock()
		_, ok := ds.pageQueue[req.PageId]
		if !ok {
			ds.pageQueue[req.PageId] = make(chan DiskReq, 10)
		}
		queue := ds.pageQueue[req.PageId]
		// enqueue while holding the lock so a draining worker can't drop
		// the queue between lookup and send
		queue <- req
		ds.pageQueueMu.Unlock()

		// !ok means we created a new page queue, therefore we should start a
		// new worker to handle the queue's page requests
		if !ok {
			go ds.pageWorker(req.PageId, queue)
		}
	}
}

func (ds *DiskScheduler) pageWorker(pageId int64, reqQueue chan DiskReq) {
	for {
		select {
		case req := <-reqQueue:
			if req.Write {
				if err := ds.diskManager.WritePage(req.PageId, req.Data); err != nil {
					req.RespCh <- DiskResp{Success: false}
				} else {
					req.RespCh <- DiskResp{Success: true}
				}
			} else {
				buf := make([]byte, PAGE_SIZE)
				if err := ds.diskManager.ReadPage(req.PageId, buf); err != nil {
					req.RespCh <- DiskResp{Success: false}
				} else {
					req.RespCh <- DiskResp{Success: true, Data: buf}
				}
			}

		default:
			// drained; recheck under the lock before retiring the queue
			ds.pageQueueMu.Lock()
			if len(reqQueue) > 0 {
				ds.pageQueueMu.Unlock()
				continue
			}
			delete(ds.pageQueue, pageId)
			ds.pageQueueMu.Unlock()
			return
		}
	}
}

type DiskScheduler struct {
	reqCh       chan DiskReq
	diskManager *Manager

	pageQueue   map[int64]chan DiskReq
	pageQueueMu sync.Mutex
}

type DiskReq struct {
	PageId int64
	Data   []byte
	Write  bool
	RespCh chan DiskResp
}

type DiskResp struct {
	Success bool
	Data    []byte
}
