package nbio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreeListAllocConstructsWhenEmpty(t *testing.T) {
	calls := 0
	fl := NewFreeList(2, func() *ioWatcher {
		calls++
		return &ioWatcher{}
	})

	a := fl.Alloc()
	b := fl.Alloc()

	assert.NotNil(t, a)
	assert.NotNil(t, b)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, fl.Len())
}

func TestFreeListReusesFreedObject(t *testing.T) {
	calls := 0
	fl := NewFreeList(4, func() *ioWatcher {
		calls++
		return &ioWatcher{}
	})

	w := fl.Alloc()
	fl.Free(w)
	assert.Equal(t, 1, fl.Len())

	w2 := fl.Alloc()
	assert.Same(t, w, w2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, fl.Len())
}

func TestFreeListCapBoundsRetainedObjects(t *testing.T) {
	fl := NewFreeList(1, func() *ioWatcher { return &ioWatcher{} })

	fl.Free(&ioWatcher{fd: 1})
	fl.Free(&ioWatcher{fd: 2}) // over cap, dropped rather than retained

	assert.Equal(t, 1, fl.Len())
}
