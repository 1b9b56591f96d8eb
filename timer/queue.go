// Package timer provides keyed one-shot timers whose firings are delivered on
// a channel, so that a single event loop can process them in order with the
// rest of its work.
package timer

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Fire is a timer firing. Pass it to Queue.Claim before acting on it.
type Fire[K comparable] struct {
	ID  K
	gen uint64
}

type pending struct {
	t   *time.Timer
	gen uint64
}

// Queue holds at most one outstanding timer per key.
type Queue[K comparable] struct {
	mu      sync.Mutex
	timers  map[K]pending
	gen     uint64
	fired   chan Fire[K]
	done    chan struct{}
	stopped bool
	log     *log.Entry
}

// NewQueue creates a Queue whose firings are buffered up to backlog.
func NewQueue[K comparable](backlog int) *Queue[K] {
	return &Queue[K]{
		timers: make(map[K]pending),
		fired:  make(chan Fire[K], backlog),
		done:   make(chan struct{}),
		log: log.WithFields(log.Fields{
			"app":       "riarp",
			"component": "timer",
		}),
	}
}

// C delivers firings.
func (q *Queue[K]) C() <-chan Fire[K] {
	return q.fired
}

// Schedule arms a timer for id, replacing any outstanding one.
func (q *Queue[K]) Schedule(after time.Duration, id K) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	if p, ok := q.timers[id]; ok {
		p.t.Stop()
	}
	q.gen++
	f := Fire[K]{ID: id, gen: q.gen}
	q.timers[id] = pending{
		gen: f.gen,
		t: time.AfterFunc(after, func() {
			select {
			case q.fired <- f:
			case <-q.done:
			}
		}),
	}
}

// Cancel stops the timer for id. It reports whether one was outstanding.
func (q *Queue[K]) Cancel(id K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.timers[id]
	if !ok {
		return false
	}
	p.t.Stop()
	delete(q.timers, id)
	return true
}

// Claim marks f as handled and reports whether it is still current. A firing
// that was canceled or rescheduled after it was queued is stale and must be
// ignored.
func (q *Queue[K]) Claim(f Fire[K]) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.timers[f.ID]
	if !ok || p.gen != f.gen {
		q.log.Debugf("Dropping stale timer firing for %v", f.ID)
		return false
	}
	delete(q.timers, f.ID)
	return true
}

// outstanding reports whether a timer for id is armed or fired but unclaimed.
func (q *Queue[K]) outstanding(id K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.timers[id]
	return ok
}

func (q *Queue[K]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Stop cancels every timer. Schedule is a no-op afterwards.
func (q *Queue[K]) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	for id, p := range q.timers {
		p.t.Stop()
		delete(q.timers, id)
	}
	close(q.done)
}
