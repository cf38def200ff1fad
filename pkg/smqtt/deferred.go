package smqtt

// pendingSend is an outbound message queued while a handler was running.
type pendingSend struct {
	data    []byte
	replyID uint32
}

// deferredQueue is a fixed-capacity FIFO ring of pending sends.
type deferredQueue struct {
	items []pendingSend
	head  int
	count int
}

func newDeferredQueue(capacity int) *deferredQueue {
	return &deferredQueue{items: make([]pendingSend, capacity)}
}

func (q *deferredQueue) len() int { return q.count }

func (q *deferredQueue) push(p pendingSend) error {
	if q.count == len(q.items) {
		return ErrDeferredQueueFull
	}
	q.items[(q.head+q.count)%len(q.items)] = p
	q.count++
	return nil
}

func (q *deferredQueue) pop() (pendingSend, bool) {
	if q.count == 0 {
		return pendingSend{}, false
	}
	p := q.items[q.head]
	q.items[q.head] = pendingSend{}
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return p, true
}

// has reports whether a reliable send with replyID is queued.
func (q *deferredQueue) has(replyID uint32) bool {
	if replyID == 0 {
		return false
	}
	for i := 0; i < q.count; i++ {
		if q.items[(q.head+i)%len(q.items)].replyID == replyID {
			return true
		}
	}
	return false
}

// remove drops the queued send with replyID, keeping the order of the rest.
func (q *deferredQueue) remove(replyID uint32) bool {
	if !q.has(replyID) {
		return false
	}
	out := 0
	for i := 0; i < q.count; i++ {
		p := q.items[(q.head+i)%len(q.items)]
		if p.replyID == replyID {
			continue
		}
		q.items[(q.head+out)%len(q.items)] = p
		out++
	}
	for i := out; i < q.count; i++ {
		q.items[(q.head+i)%len(q.items)] = pendingSend{}
	}
	q.count = out
	return true
}
