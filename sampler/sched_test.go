package sampler

import "testing"

func TestSchedulerPopsExactlyOnceAtDeadline(t *testing.T) {
	s := NewScheduler(16)
	ev := Event{Type: EventNoteOn, Key: 60}
	s.ScheduleAt(ev, 1000)

	if _, _, ok := s.PopDue(1000); ok {
		t.Fatalf("event popped before its schedule time")
	}
	got, at, ok := s.PopDue(1001)
	if !ok {
		t.Fatalf("expected event due at 1000")
	}
	if at != 1000 || got.Key != 60 {
		t.Fatalf("wrong event: at=%d key=%d", at, got.Key)
	}
	if _, _, ok := s.PopDue(1 << 40); ok {
		t.Fatalf("event popped twice")
	}
}

func TestSchedulerOrdersByTimeThenInsertion(t *testing.T) {
	s := NewScheduler(16)
	s.ScheduleAt(Event{Key: 1}, 500)
	s.ScheduleAt(Event{Key: 2}, 100)
	s.ScheduleAt(Event{Key: 3}, 100)
	s.ScheduleAt(Event{Key: 4}, 300)

	var keys []int
	for {
		ev, _, ok := s.PopDue(1 << 40)
		if !ok {
			break
		}
		keys = append(keys, int(ev.Key))
	}
	want := []int{2, 3, 4, 1}
	if len(keys) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("order mismatch at %d: got=%v want=%v", i, keys, want)
		}
	}
}

func TestScheduleAheadMicros(t *testing.T) {
	s := NewScheduler(16)
	// 1500 us at 48 kHz = 72 samples ahead of fragment position 10.
	s.ScheduleAheadMicros(Event{Key: 9}, 10000, 10, 1500, 48000)

	if _, _, ok := s.PopDue(10081); ok {
		t.Fatalf("event delivered too early")
	}
	ev, at, ok := s.PopDue(10083)
	if !ok {
		t.Fatalf("expected event due at 10082")
	}
	if at != 10082 || ev.Key != 9 {
		t.Fatalf("wrong schedule time: at=%d key=%d", at, ev.Key)
	}
}

func TestSchedulerEmptyPop(t *testing.T) {
	s := NewScheduler(4)
	if _, _, ok := s.PopDue(1 << 40); ok {
		t.Fatalf("pop on empty scheduler returned an event")
	}
}
