package rt

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

const mergeQueueCapacity = 1024

// mergeQueue carries objects whose shared reference count went negative to
// the owning thread for merging. The fast path is a bounded multi-producer
// ring using per-slot sequence numbers (Vyukov); a mutex-guarded overflow
// list absorbs bursts so a queued object is never dropped.
type mergeQueue struct {
	_pad0   [64]byte
	mask    uint64
	_pad1   [64]byte
	enqueue uint64
	_pad2   [64]byte
	dequeue uint64
	_pad3   [64]byte
	cells   []mergeCell

	overflowMu sync.Mutex
	overflow   []*objmodel.Object
}

type mergeCell struct {
	seq  uint64
	_pad [56]byte
	val  *objmodel.Object
}

func newMergeQueue(capacity uint64) *mergeQueue {
	if capacity < 2 {
		capacity = 2
	}
	capPow2 := uint64(1)
	for capPow2 < capacity {
		capPow2 <<= 1
	}
	q := &mergeQueue{
		mask:  capPow2 - 1,
		cells: make([]mergeCell, capPow2),
	}
	for i := range q.cells {
		q.cells[i].seq = uint64(i)
	}
	return q
}

func (q *mergeQueue) push(v *objmodel.Object) {
	for {
		pos := atomic.LoadUint64(&q.enqueue)
		c := &q.cells[pos&q.mask]
		seq := atomic.LoadUint64(&c.seq)
		dif := int64(seq) - int64(pos)
		if dif == 0 {
			if atomic.CompareAndSwapUint64(&q.enqueue, pos, pos+1) {
				c.val = v
				atomic.StoreUint64(&c.seq, pos+1)
				return
			}
		} else if dif < 0 {
			q.overflowMu.Lock()
			q.overflow = append(q.overflow, v)
			q.overflowMu.Unlock()
			return
		} else {
			runtime.Gosched()
		}
	}
}

func (q *mergeQueue) pop() (*objmodel.Object, bool) {
	for {
		pos := atomic.LoadUint64(&q.dequeue)
		c := &q.cells[pos&q.mask]
		seq := atomic.LoadUint64(&c.seq)
		dif := int64(seq) - int64(pos+1)
		if dif == 0 {
			if atomic.CompareAndSwapUint64(&q.dequeue, pos, pos+1) {
				v := c.val
				c.val = nil
				atomic.StoreUint64(&c.seq, pos+q.mask+1)
				return v, true
			}
		} else if dif < 0 {
			q.overflowMu.Lock()
			if n := len(q.overflow); n > 0 {
				v := q.overflow[n-1]
				q.overflow = q.overflow[:n-1]
				q.overflowMu.Unlock()
				return v, true
			}
			q.overflowMu.Unlock()
			return nil, false
		} else {
			runtime.Gosched()
		}
	}
}
