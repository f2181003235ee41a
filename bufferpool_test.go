package nbio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferPoolReservedWriteAndRewind(t *testing.T) {
	p := NewBufferPool(64, 8)

	v := p.ReservedWrite(10)
	assert.Equal(t, 10, len(v.Bytes()))

	p.Rewind(v)
	v2 := p.ReservedWrite(10)
	assert.Equal(t, v.offset, v2.offset, "rewinding should give the slot back for reuse")
}

func TestBufferPoolAvailableGrowsIntoSameSlab(t *testing.T) {
	p := NewBufferPool(64, 8)

	view, dst := p.Available()
	assert.GreaterOrEqual(t, len(dst), 1)
	copy(dst, []byte("hi"))
	bv := view(2)
	assert.Equal(t, "hi", string(bv.Bytes()))
}

func TestBufferPoolRotatesSlabBelowLowWater(t *testing.T) {
	p := NewBufferPool(16, 8)

	first := p.ReservedWrite(10) // leaves 6 bytes remaining, below the low-water mark of 8
	second := p.ReservedWrite(4)

	assert.NotSame(t, first.slab, second.slab)
}

func TestBufferPoolFits(t *testing.T) {
	p := NewBufferPool(64, 8)

	assert.True(t, p.Fits(1))
	assert.True(t, p.Fits(64))
	assert.False(t, p.Fits(65))
	assert.False(t, p.Fits(0))
}

func TestBufferViewRemainingTracksSentCursor(t *testing.T) {
	p := NewBufferPool(64, 8)
	v := p.ReservedWrite(5)
	copy(v.Bytes(), []byte("abcde"))

	v.sent = 2
	assert.Equal(t, "cde", string(v.Remaining()))
	assert.False(t, v.fullyConsumed())

	v.sent = 5
	assert.True(t, v.fullyConsumed())
}
