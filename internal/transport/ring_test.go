package transport

import "testing"

func TestEventRing_AppendAssignsMonotonicIDs(t *testing.T) {
	r := newEventRing(4)
	a := r.append([]byte("one"))
	b := r.append([]byte("two"))
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("got ids %d, %d, want 1, 2", a.ID, b.ID)
	}
}

func TestEventRing_AfterReturnsEventsInOrder(t *testing.T) {
	r := newEventRing(8)
	for i := 0; i < 5; i++ {
		r.append([]byte{byte(i)})
	}
	events, trimmed := r.after(2)
	if trimmed {
		t.Fatal("expected no trim for a ring well under capacity")
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	for i, ev := range events {
		if ev.ID != int64(3+i) {
			t.Errorf("events[%d].ID = %d, want %d", i, ev.ID, 3+i)
		}
	}
}

func TestEventRing_EvictionSetsTrimmed(t *testing.T) {
	r := newEventRing(3)
	for i := 0; i < 10; i++ {
		r.append([]byte{byte(i)})
	}
	_, trimmed := r.after(1)
	if !trimmed {
		t.Fatal("expected trimmed=true once events have been evicted past the ring size")
	}
}

func TestEventRing_AfterZeroReturnsNothing(t *testing.T) {
	r := newEventRing(4)
	r.append([]byte("x"))
	events, trimmed := r.after(0)
	if events != nil || trimmed {
		t.Fatalf("after(0) = %v, %v, want nil, false", events, trimmed)
	}
}
