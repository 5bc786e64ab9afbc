package stream

import "sync"

// Hub fans published values out to every attached Subscription.
// Publish never blocks: each subscription owns an unbounded queue that is
// drained into its channel by a dedicated goroutine.
type Hub[T any] struct {
	mu   sync.Mutex
	subs map[*Subscription[T]]struct{}
}

// NewHub constructs an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe attaches a new subscription. Values in initial are queued ahead
// of anything published afterwards.
func (h *Hub[T]) Subscribe(initial ...T) *Subscription[T] {
	s := &Subscription[T]{
		hub:  h,
		out:  make(chan T),
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.queue = append(s.queue, initial...)

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go s.pump()
	return s
}

// Publish queues v on every attached subscription.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.push(v)
	}
}

// Len reports the number of attached subscriptions.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub[T]) remove(s *Subscription[T]) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Subscription receives values published on a Hub in publish order.
type Subscription[T any] struct {
	hub *Hub[T]

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool

	out  chan T
	done chan struct{}
}

// C returns the delivery channel. It is closed after Close.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Close detaches the subscription and discards undelivered values.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	close(s.done)
	s.cond.Broadcast()
	s.mu.Unlock()

	s.hub.remove(s)
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, v)
	s.cond.Signal()
}

func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		v := s.queue[0]
		var zero T
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.done:
			return
		}
	}
}
