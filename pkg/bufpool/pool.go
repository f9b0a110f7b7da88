// Package bufpool implements the BufferManager contract: leasable
// power-of-two-sized byte buffers, returned on every exit path.
package bufpool

import (
	"sync"
	"sync/atomic"
)

// Lease is a rented buffer. Callers must call Manager.Return on every exit
// path (success, error, or cancellation).
type Lease struct {
	Buf      []byte
	class    int
	returned int32
}

// Manager pools byte slices by power-of-two size class.
type Manager struct {
	classes []*sync.Pool
}

// New creates a Manager with size classes from 64 bytes up to 1<<maxClass.
func New(maxClass int) *Manager {
	m := &Manager{classes: make([]*sync.Pool, maxClass+1)}
	for i := range m.classes {
		size := 1 << uint(i)
		m.classes[i] = &sync.Pool{
			New: func() any {
				return make([]byte, size)
			},
		}
	}
	return m
}

func classFor(minLen int) int {
	class := 6 // smallest class is 64 bytes
	size := 1 << uint(class)
	for size < minLen {
		size <<= 1
		class++
	}
	return class
}

// Rent returns a buffer whose length is at least minLen.
func (m *Manager) Rent(minLen int) *Lease {
	class := classFor(minLen)
	if class >= len(m.classes) {
		// Larger than any pooled class: allocate directly, do not pool it.
		return &Lease{Buf: make([]byte, minLen), class: -1}
	}
	buf := m.classes[class].Get().([]byte)
	if len(buf) < minLen {
		buf = make([]byte, 1<<uint(class))
	}
	return &Lease{Buf: buf[:minLen], class: class}
}

// Return releases a lease back to its size class. Safe to call more than
// once; only the first call has an effect.
func (m *Manager) Return(l *Lease) {
	if l == nil || l.class < 0 {
		return
	}
	if !atomic.CompareAndSwapInt32(&l.returned, 0, 1) {
		return
	}
	m.classes[l.class].Put(l.Buf[:cap(l.Buf)])
}

// TrackingManager wraps Manager and counts outstanding leases, for tests
// that assert every lease was returned.
type TrackingManager struct {
	*Manager
	outstanding int64
}

// NewTracking creates a TrackingManager.
func NewTracking(maxClass int) *TrackingManager {
	return &TrackingManager{Manager: New(maxClass)}
}

// Rent rents a buffer and increments the outstanding-lease counter.
func (t *TrackingManager) Rent(minLen int) *Lease {
	atomic.AddInt64(&t.outstanding, 1)
	return t.Manager.Rent(minLen)
}

// Return returns a buffer and decrements the outstanding-lease counter.
func (t *TrackingManager) Return(l *Lease) {
	t.Manager.Return(l)
	atomic.AddInt64(&t.outstanding, -1)
}

// Outstanding reports the number of leases rented but not yet returned.
func (t *TrackingManager) Outstanding() int64 {
	return atomic.LoadInt64(&t.outstanding)
}
