// Package spsc provides the bounded single-producer/single-consumer queue
// and counting semaphore primitives that decouple the GPU readback stage
// from the encoder hand-off stage.
package spsc

// Semaphore is a counting semaphore bounded by a maximum count. Acquire
// blocks until the count is greater than zero and decrements it; Release
// increments the count, up to max, and wakes exactly one waiter.
//
// The implementation is a buffered channel used as a token bucket, mirroring
// the channel-as-semaphore idiom: acquiring is a receive, releasing is a
// send. This gives fair FIFO wake order under the Go runtime's channel
// scheduling without any OS-specific primitive.
type Semaphore struct {
	tokens chan struct{}
	max    int
}

// NewSemaphore creates a semaphore with an initial count and a maximum
// count. init must be in [0, max].
func NewSemaphore(init, max int) *Semaphore {
	if init < 0 || max <= 0 || init > max {
		panic("spsc: invalid semaphore bounds")
	}
	s := &Semaphore{
		tokens: make(chan struct{}, max),
		max:    max,
	}
	for i := 0; i < init; i++ {
		s.tokens <- struct{}{}
	}
	return s
}

// Acquire blocks until a token is available and consumes it.
func (s *Semaphore) Acquire() {
	<-s.tokens
}

// TryAcquire consumes a token without blocking. It reports whether it
// succeeded.
func (s *Semaphore) TryAcquire() bool {
	select {
	case <-s.tokens:
		return true
	default:
		return false
	}
}

// Release returns a token to the pool. Releasing beyond max is a programming
// error and panics, matching the "misuse is a programming error" failure
// model for this component.
func (s *Semaphore) Release() {
	select {
	case s.tokens <- struct{}{}:
	default:
		panic("spsc: semaphore released past max_count")
	}
}

// Count reports the number of currently available tokens. It is a snapshot
// only, useful for tests and diagnostics.
func (s *Semaphore) Count() int {
	return len(s.tokens)
}
