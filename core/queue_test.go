package core

import "testing"

// TestDeque_FIFO verifies PushBack/PopFront order
func TestDeque_FIFO(t *testing.T) {
	q := newDeque[int]()
	for i := range 5 {
		q.PushBack(i)
	}

	for i := range 5 {
		v, ok := q.PopFront()
		if !ok || v != i {
			t.Fatalf("PopFront: got = (%d, %v), want = (%d, true)", v, ok, i)
		}
	}
	if _, ok := q.PopFront(); ok {
		t.Error("PopFront on empty deque: got ok = true, want = false")
	}
}

// TestDeque_PushFront verifies head insertion with and without slack
func TestDeque_PushFront(t *testing.T) {
	q := newDeque[string]()
	q.PushBack("b")
	q.PushFront("a") // no slack: regrows with front room

	q.PushBack("c")
	q.PopFront()
	q.PushFront("x") // reuses the popped slot

	var got []string
	for q.Len() > 0 {
		v, _ := q.PopFront()
		got = append(got, v)
	}
	if want := []string{"x", "b", "c"}; !equalStrings(got, want) {
		t.Errorf("order: got = %v, want = %v", got, want)
	}
}

// TestDeque_PushFrontGrowth verifies repeated head insertion reallocates only
// logarithmically often and keeps LIFO order
func TestDeque_PushFrontGrowth(t *testing.T) {
	// Arrange
	q := newDeque[int]()
	q.PushBack(-1)
	grows := 0

	// Act
	for i := range 1000 {
		before := cap(q.items)
		q.PushFront(i)
		if cap(q.items) != before {
			grows++
		}
	}

	// Assert
	if grows > 12 {
		t.Errorf("reallocations: got = %d, want <= 12", grows)
	}
	if q.Len() != 1001 {
		t.Fatalf("Len: got = %d, want = 1001", q.Len())
	}
	for want := 999; want >= -1; want-- {
		if v, _ := q.PopFront(); v != want {
			t.Fatalf("PopFront: got = %d, want = %d", v, want)
		}
	}
}

// TestDeque_PeekFront verifies peek does not consume
func TestDeque_PeekFront(t *testing.T) {
	q := newDeque[int]()
	if _, ok := q.PeekFront(); ok {
		t.Error("PeekFront on empty deque: got ok = true, want = false")
	}
	q.PushBack(7)
	if v, ok := q.PeekFront(); !ok || v != 7 {
		t.Errorf("PeekFront: got = (%d, %v), want = (7, true)", v, ok)
	}
	if q.Len() != 1 {
		t.Errorf("Len: got = %d, want = 1", q.Len())
	}
}

// TestDeque_RemoveFunc verifies the first match is removed and order is kept
func TestDeque_RemoveFunc(t *testing.T) {
	q := newDeque[int]()
	for _, v := range []int{1, 2, 3, 2} {
		q.PushBack(v)
	}

	if !q.RemoveFunc(func(v int) bool { return v == 2 }) {
		t.Fatal("RemoveFunc(2): got = false, want = true")
	}
	if q.RemoveFunc(func(v int) bool { return v == 9 }) {
		t.Error("RemoveFunc(9): got = true, want = false")
	}

	got := q.Drain()
	want := []int{1, 3, 2}
	if len(got) != len(want) {
		t.Fatalf("Drain: got = %v, want = %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Drain[%d]: got = %d, want = %d", i, got[i], want[i])
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len after Drain: got = %d, want = 0", q.Len())
	}
}

// TestDeque_Compaction verifies a large drained deque shrinks back
func TestDeque_Compaction(t *testing.T) {
	q := newDeque[int]()
	for i := range 1000 {
		q.PushBack(i)
	}
	for range 990 {
		q.PopFront()
	}

	if cap(q.items) >= 1000 {
		t.Errorf("cap after draining most items: got = %d, want < 1000", cap(q.items))
	}
	if q.Len() != 10 {
		t.Fatalf("Len: got = %d, want = 10", q.Len())
	}
	if v, _ := q.PopFront(); v != 990 {
		t.Errorf("PopFront after compaction: got = %d, want = 990", v)
	}
}
