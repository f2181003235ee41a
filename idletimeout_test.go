package nbio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimeout(t *testing.T) {
	assert.Equal(t, int64(0), normalizeTimeout(0))
	assert.Equal(t, int64(0), normalizeTimeout(-5))
	assert.Equal(t, int64(1000), normalizeTimeout(1))
	assert.Equal(t, int64(1000), normalizeTimeout(999))
	assert.Equal(t, int64(1000), normalizeTimeout(1000))
	assert.Equal(t, int64(5000), normalizeTimeout(5400))
}

func TestIdleSchedulerEnrollAssignsBucketOnFirstActive(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	s := newStream(loop, TransportTCP)
	loop.Idle.Enroll(s, 2000)
	assert.Nil(t, s.idleBucket, "Enroll alone must not insert into a bucket")

	loop.Idle.Active(s)
	require.NotNil(t, s.idleBucket)
	assert.Equal(t, int64(2000), s.idleBucket.ms)
	assert.Same(t, s, s.idleBucket.head)
	assert.Same(t, s, s.idleBucket.tail)
}

func TestIdleSchedulerActiveMovesStreamToTail(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	a := newStream(loop, TransportTCP)
	b := newStream(loop, TransportTCP)
	loop.Idle.Enroll(a, 1000)
	loop.Idle.Enroll(b, 1000)

	loop.Idle.Active(a)
	loop.Idle.Active(b)
	bucket := b.idleBucket
	assert.Same(t, a, bucket.head)
	assert.Same(t, b, bucket.tail)

	loop.Idle.Active(a) // touching a again should move it back to the tail
	assert.Same(t, b, bucket.head)
	assert.Same(t, a, bucket.tail)
}

func TestIdleSchedulerUnenrollRemovesFromBucket(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	s := newStream(loop, TransportTCP)
	loop.Idle.Enroll(s, 1000)
	loop.Idle.Active(s)
	bucket := s.idleBucket
	require.NotNil(t, bucket)

	loop.Idle.Unenroll(s)
	assert.Nil(t, s.idleBucket)
	assert.True(t, bucket.empty())
	assert.Equal(t, int64(0), s.timeoutMs)
}

func TestIdleSchedulerActiveIsNoopWithoutTimeout(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	s := newStream(loop, TransportTCP)
	loop.Idle.Active(s)
	assert.Nil(t, s.idleBucket)
}

func TestIdleSchedulerRetargetsBucketOnTimeoutChange(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	s := newStream(loop, TransportTCP)
	loop.Idle.Enroll(s, 1000)
	loop.Idle.Active(s)
	firstBucket := s.idleBucket

	loop.Idle.Enroll(s, 5000)
	assert.Nil(t, s.idleBucket)
	assert.True(t, firstBucket.empty())

	loop.Idle.Active(s)
	assert.Equal(t, int64(5000), s.idleBucket.ms)
	assert.NotSame(t, firstBucket, s.idleBucket)
}
