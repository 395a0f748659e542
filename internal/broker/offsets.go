package broker

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

// offsetTracker orders commits for concurrently processed messages. The
// group coordinator stores a single offset per partition, so committing
// a message implicitly commits every earlier offset on its partition; a
// commit must never run ahead of an earlier message that is still in
// flight. The tracker releases the newest message up to which a
// partition is contiguously complete, and nothing before that.
//
// Released commits from different goroutines can still land out of
// order; that can only rewind the stored offset, which causes
// redelivery, never loss.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[int]*partitionWindow
}

type partitionWindow struct {
	// next is the lowest fetched offset not yet completed.
	next      int64
	completed map[int64]kafka.Message
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[int]*partitionWindow)}
}

// track registers a fetched message. Fetches arrive in offset order per
// partition, so the first tracked message fixes the window's lower bound.
func (t *offsetTracker) track(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.partitions[m.Partition]; !ok {
		t.partitions[m.Partition] = &partitionWindow{
			next:      m.Offset,
			completed: make(map[int64]kafka.Message),
		}
	}
}

// complete marks m as processed and reports the newest message safe to
// commit on m's partition. ok is false while an earlier offset is still
// in flight.
func (t *offsetTracker) complete(m kafka.Message) (last kafka.Message, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.partitions[m.Partition]
	w.completed[m.Offset] = m
	for {
		next, done := w.completed[w.next]
		if !done {
			break
		}
		delete(w.completed, w.next)
		last = next
		ok = true
		w.next++
	}
	return last, ok
}
