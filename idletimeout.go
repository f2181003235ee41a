package nbio

import (
	"github.com/fzft/nbio/log"
	"go.uber.org/zap"
)

// normalizeTimeout rounds a millisecond timeout to the bucket granularity
// this scheduler uses: values in (0, 1000) round up to 1000; larger values
// round down to the nearest 1000; zero or negative means disabled.
func normalizeTimeout(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	if ms < 1000 {
		return 1000
	}
	return (ms / 1000) * 1000
}

// idleBucket is the intrusive, sentinel-free doubly-linked list of Streams
// sharing one timeout value, driven by a single repeating Timer. List
// order is activity order: head is the least-recently-active Stream, tail
// the most recently active one. The linked-list shape itself is adapted
// from fzft-go-mock-redis's generic db.List[T] (db/dlist.go); it is
// inlined onto *Stream directly here, without a T-boxing node, since every
// element is always a *Stream and the scheduler needs O(1)
// splice-and-reappend on every read/write.
type idleBucket struct {
	ms         int64
	head, tail *Stream
	timer      *Timer
	sched      *IdleScheduler
}

func (b *idleBucket) empty() bool { return b.head == nil }

func (b *idleBucket) pushTail(s *Stream) {
	s.idlePrev = b.tail
	s.idleNext = nil
	if b.tail != nil {
		b.tail.idleNext = s
	} else {
		b.head = s
	}
	b.tail = s
	s.idleBucket = b
}

func (b *idleBucket) splice(s *Stream) {
	if s.idlePrev != nil {
		s.idlePrev.idleNext = s.idleNext
	} else {
		b.head = s.idleNext
	}
	if s.idleNext != nil {
		s.idleNext.idlePrev = s.idlePrev
	} else {
		b.tail = s.idlePrev
	}
	s.idlePrev, s.idleNext, s.idleBucket = nil, nil, nil
}

// IdleScheduler groups Streams by timeout-bucket onto intrusive linked
// lists, each driven by a single repeating timer. This keeps timer cost at
// O(M) — the number of distinct timeout values in use — rather than O(N)
// sockets, on the observation that most applications use one or two
// timeout values.
type IdleScheduler struct {
	loop    *EventLoop
	buckets map[int64]*idleBucket
}

// NewIdleScheduler creates a scheduler bound to loop's Timer facility.
func NewIdleScheduler(loop *EventLoop) *IdleScheduler {
	s := &IdleScheduler{loop: loop, buckets: make(map[int64]*idleBucket)}
	loop.debug.RegisterProbe("idle_scheduler.buckets", func() any {
		out := make(map[int64]int, len(s.buckets))
		for ms, b := range s.buckets {
			n := 0
			for c := b.head; c != nil; c = c.idleNext {
				n++
			}
			out[ms] = n
		}
		return out
	})
	return s
}

func (s *IdleScheduler) bucketFor(ms int64) *idleBucket {
	b, ok := s.buckets[ms]
	if ok {
		return b
	}
	b = &idleBucket{ms: ms, sched: s}
	b.timer = s.loop.NewTimer(func() { s.fire(b) })
	s.buckets[ms] = b
	return b
}

// Enroll sets stream's configured timeout, first unenrolling it from
// whatever bucket it currently occupies. It does not itself insert the
// stream into a bucket's list or arm any timer — that happens lazily on the
// next Active call.
func (s *IdleScheduler) Enroll(stream *Stream, ms int64) {
	if stream.idleBucket != nil {
		s.unlink(stream)
	}
	stream.timeoutMs = normalizeTimeout(ms)
}

// Unenroll removes stream from its bucket entirely and clears its
// configured timeout.
func (s *IdleScheduler) Unenroll(stream *Stream) {
	s.unlink(stream)
	stream.timeoutMs = 0
}

func (s *IdleScheduler) unlink(stream *Stream) {
	b := stream.idleBucket
	if b == nil {
		return
	}
	b.splice(stream)
	if b.empty() {
		b.timer.Stop()
	}
}

// Active is called on every successful read or write. If the
// stream has no configured timeout it is a no-op; otherwise the stream is
// moved to the tail of its bucket's list and stamped with the current time,
// arming the bucket's timer if the list had been empty.
func (s *IdleScheduler) Active(stream *Stream) {
	if stream.timeoutMs <= 0 {
		return
	}

	b := s.bucketFor(stream.timeoutMs)
	if stream.idleBucket != nil && stream.idleBucket != b {
		s.unlink(stream)
	} else if stream.idleBucket == b {
		b.splice(stream)
	}

	wasEmpty := b.empty()
	b.pushTail(stream)
	stream.idleStart = s.loop.now()
	if wasEmpty {
		b.timer.Again(b.ms)
	}
}

// fire is the bucket's Timer callback: scan from the head (oldest),
// expiring streams whose idle window has elapsed, until either the list
// empties or the head is found to still be within its window, at which
// point the timer is re-armed for exactly the remaining delta rather than
// the nominal period — the libev "smart timeout" idiom this component is
// named after.
func (s *IdleScheduler) fire(b *idleBucket) {
	for {
		head := b.head
		if head == nil {
			return
		}
		now := s.loop.now()
		elapsedMs := (now - head.idleStart) / 1e6
		if elapsedMs < b.ms {
			b.timer.Again(b.ms - elapsedMs)
			return
		}

		b.splice(head)
		log.Logger.Debug("idle timeout expired", zap.Int("fd", head.fd), zap.Int64("timeout_ms", b.ms))
		head.emit(EventTimeout)
		head.forceClose(errIdleTimeout)
	}
}
