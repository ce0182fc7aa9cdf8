package spsc

import (
	"sync"
	"testing"
)

func TestQueuePushPullOrder(t *testing.T) {
	q := NewQueue[int](4)
	q.Push(1)
	q.Push(2)
	q.Push(3)
	if got := q.Pull(); got != 1 {
		t.Fatalf("Pull() = %d, want 1", got)
	}
	q.Push(4)
	q.Push(5)
	want := []int{2, 3, 4, 5}
	for _, w := range want {
		if got := q.Pull(); got != w {
			t.Fatalf("Pull() = %d, want %d", got, w)
		}
	}
}

func TestQueuePushOnFullPanics(t *testing.T) {
	q := NewQueue[int](1)
	q.Push(1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic pushing onto full queue")
		}
	}()
	q.Push(2)
}

func TestQueuePullOnEmptyPanics(t *testing.T) {
	q := NewQueue[int](1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic pulling from empty queue")
		}
	}()
	q.Pull()
}

// TestQueueSemaphoreSafety models property 6: under SPSC with capacity K,
// size never exceeds K, and a producer/consumer pair gated by paired
// semaphores never pushes to a full queue or pulls from an empty one.
func TestQueueSemaphoreSafety(t *testing.T) {
	const capacity = 8
	const n = 5000

	q := NewQueue[int](capacity)
	freeSem := NewSemaphore(capacity, capacity)
	filledSem := NewSemaphore(0, capacity)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			freeSem.Acquire()
			if q.Size() > capacity {
				t.Errorf("queue size %d exceeds capacity %d", q.Size(), capacity)
			}
			q.Push(i)
			filledSem.Release()
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			filledSem.Acquire()
			got := q.Pull()
			if got != i {
				t.Errorf("Pull() = %d, want %d", got, i)
			}
			freeSem.Release()
		}
	}()

	wg.Wait()
}
