package nbio

// FreeList is a bounded cache of reusable objects. Alloc returns a pooled
// object if one is available, otherwise it constructs a new one via ctor;
// Free pushes an object back onto the list unless it is already at
// capacity, in which case the object is simply dropped.
//
// FreeList does no validation or resetting of returned objects — callers
// must reset state themselves before reuse. It is not safe for concurrent
// use; every component in this package is driven from a single
// event-loop thread, so no locking is needed.
type FreeList[T any] struct {
	items []T
	cap   int
	ctor  func() T
}

// NewFreeList creates a free list with the given soft capacity. A capacity
// of 0 or less falls back to a default of 100.
func NewFreeList[T any](capacity int, ctor func() T) *FreeList[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &FreeList[T]{cap: capacity, ctor: ctor}
}

// Alloc returns a pooled instance, or a freshly constructed one if the list
// is empty.
func (f *FreeList[T]) Alloc() T {
	if n := len(f.items); n > 0 {
		v := f.items[n-1]
		f.items = f.items[:n-1]
		return v
	}
	return f.ctor()
}

// Free returns obj to the list for reuse, unless the list is already at its
// soft cap, in which case obj is dropped (left for the garbage collector).
func (f *FreeList[T]) Free(obj T) {
	if len(f.items) >= f.cap {
		return
	}
	f.items = append(f.items, obj)
}

// Len reports the number of objects currently cached.
func (f *FreeList[T]) Len() int { return len(f.items) }
