package queue

import "testing"

func TestQueueFIFOOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.PushBack(i)
	}
	if q.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", q.Len())
	}
	for i := 0; i < 5; i++ {
		v, ok := q.PopFront()
		if !ok {
			t.Fatalf("PopFront() ok = false at i=%d", i)
		}
		if v != i {
			t.Fatalf("PopFront() = %d, want %d", v, i)
		}
	}
	if !q.Empty() {
		t.Fatalf("Empty() = false after draining queue")
	}
}

func TestQueuePopFrontEmpty(t *testing.T) {
	q := New[string]()
	if _, ok := q.PopFront(); ok {
		t.Fatalf("PopFront() on empty queue returned ok = true")
	}
}

func TestQueueInterleaved(t *testing.T) {
	q := New[int]()
	q.PushBack(1)
	q.PushBack(2)
	if v, _ := q.PopFront(); v != 1 {
		t.Fatalf("PopFront() = %d, want 1", v)
	}
	q.PushBack(3)
	if v, _ := q.PopFront(); v != 2 {
		t.Fatalf("PopFront() = %d, want 2", v)
	}
	if v, _ := q.PopFront(); v != 3 {
		t.Fatalf("PopFront() = %d, want 3", v)
	}
	if !q.Empty() {
		t.Fatalf("Empty() = false, want true")
	}
}
