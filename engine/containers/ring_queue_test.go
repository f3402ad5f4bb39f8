package containers

import "testing"

func TestRingQueueFIFOOrder(t *testing.T) {
	rq := NewRingQueue[int](4)
	for i := 0; i < 4; i++ {
		rq.Enqueue(i)
	}
	for want := 0; want < 4; want++ {
		got, err := rq.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if got != want {
			t.Errorf("Dequeue = %d, want %d", got, want)
		}
	}
	if _, err := rq.Dequeue(); err != ErrQueueEmpty {
		t.Errorf("Dequeue on empty = %v, want ErrQueueEmpty", err)
	}
}

func TestRingQueueWrapAndGrow(t *testing.T) {
	rq := NewRingQueue[string](2)
	rq.Enqueue("a")
	rq.Enqueue("b")
	if v, _ := rq.Dequeue(); v != "a" {
		t.Fatalf("Dequeue = %q, want a", v)
	}
	// Wraps into the freed slot, then grows past the original capacity.
	rq.Enqueue("c")
	rq.Enqueue("d")
	rq.Enqueue("e")
	want := []string{"b", "c", "d", "e"}
	for _, w := range want {
		got, err := rq.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if got != w {
			t.Errorf("Dequeue = %q, want %q", got, w)
		}
	}
	if !rq.IsEmpty() {
		t.Errorf("queue should be empty, Len = %d", rq.Len())
	}
}

func TestRingQueueClear(t *testing.T) {
	rq := NewRingQueue[int](2)
	rq.Enqueue(1)
	rq.Enqueue(2)
	rq.Clear()
	if !rq.IsEmpty() {
		t.Fatalf("Clear left %d elements", rq.Len())
	}
	rq.Enqueue(7)
	if got, _ := rq.Dequeue(); got != 7 {
		t.Errorf("Dequeue after Clear = %d, want 7", got)
	}
}
