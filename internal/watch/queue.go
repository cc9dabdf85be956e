package watch

import (
	"context"
	"sync"
	"time"
)

// Queue is a FIFO of paths in which a path appears at most once.
type Queue struct {
	mu      sync.Mutex
	items   []string
	pending map[string]struct{}
	ready   chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		pending: make(map[string]struct{}),
		ready:   make(chan struct{}, 1),
	}
}

// Push appends path unless it is already waiting. It reports whether the
// path was added.
func (q *Queue) Push(path string) bool {
	q.mu.Lock()
	if _, ok := q.pending[path]; ok {
		q.mu.Unlock()
		return false
	}
	q.pending[path] = struct{}{}
	q.items = append(q.items, path)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Pop blocks until a path is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			path := q.items[0]
			q.items = q.items[1:]
			delete(q.pending, path)
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			return path, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.ready:
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// settler calls fire for a path once no event for it arrived during delay.
type settler struct {
	mu     sync.Mutex
	delay  time.Duration
	timers map[string]*time.Timer
	fire   func(path string)
}

func newSettler(delay time.Duration, fire func(string)) *settler {
	return &settler{delay: delay, timers: make(map[string]*time.Timer), fire: fire}
}

func (s *settler) touch(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[path]; ok {
		t.Reset(s.delay)
		return
	}
	s.timers[path] = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		delete(s.timers, path)
		s.mu.Unlock()
		s.fire(path)
	})
}

func (s *settler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, t := range s.timers {
		t.Stop()
		delete(s.timers, path)
	}
}
