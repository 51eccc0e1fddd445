package model

import "sync/atomic"

// genericQueueBox is the atomically-settable reference backing a
// snapshot's pending-update queue (§5: "the update queue inside a
// snapshot is held through an atomically-settable reference so that a
// single flusher drains it exactly once"). Each snapshot type
// (SubjectData, ContextInheritance) instantiates it with its own op type
// so every snapshot exclusively owns its queue (§3).
type genericQueueBox[T any] struct {
	ops atomic.Pointer[[]T]
}

func newGenericQueueBox[T any](ops []T) *genericQueueBox[T] {
	b := &genericQueueBox[T]{}
	cp := append([]T(nil), ops...)
	b.ops.Store(&cp)
	return b
}

// peek returns the queue's current contents without draining it.
func (b *genericQueueBox[T]) peek() []T {
	p := b.ops.Load()
	if p == nil {
		return nil
	}
	return *p
}

// drain atomically takes the queue's contents, leaving an empty queue
// behind. A second concurrent call observes the empty queue and drains
// nothing, making flush idempotent under concurrent flushers.
func (b *genericQueueBox[T]) drain() []T {
	empty := []T{}
	old := b.ops.Swap(&empty)
	if old == nil {
		return nil
	}
	return *old
}
