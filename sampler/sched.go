package sampler

import "container/heap"

// scheduledEvent is an event parked for delivery in a future cycle.
type scheduledEvent struct {
	schedTime uint64 // absolute sample time the event becomes due
	seq       uint64 // breaks ties in insertion order
	ev        Event
}

type schedHeap []scheduledEvent

func (h schedHeap) Len() int { return len(h) }
func (h schedHeap) Less(i, j int) bool {
	if h[i].schedTime != h[j].schedTime {
		return h[i].schedTime < h[j].schedTime
	}
	return h[i].seq < h[j].seq
}
func (h schedHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *schedHeap) Push(x any)        { *h = append(*h, x.(scheduledEvent)) }
func (h *schedHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Scheduler queues events whose deadline lies beyond the current audio
// fragment, keyed on a monotonic sample time.
type Scheduler struct {
	heap schedHeap
	seq  uint64
}

// NewScheduler creates a scheduler with preallocated room for capacity
// pending events.
func NewScheduler(capacity int) *Scheduler {
	return &Scheduler{heap: make(schedHeap, 0, capacity)}
}

// Len returns the number of parked events.
func (s *Scheduler) Len() int { return len(s.heap) }

// ScheduleAheadMicros parks ev for delivery micros microseconds after
// the given fragment position of the current cycle.
func (s *Scheduler) ScheduleAheadMicros(ev Event, totalSamples uint64, fragmentPosBase int, micros uint64, sampleRate int) {
	s.seq++
	at := totalSamples + uint64(fragmentPosBase) +
		uint64(float64(sampleRate)*(float64(micros)/1e6))
	heap.Push(&s.heap, scheduledEvent{schedTime: at, seq: s.seq, ev: ev})
}

// ScheduleAt parks ev for delivery at an absolute sample time.
func (s *Scheduler) ScheduleAt(ev Event, schedTime uint64) {
	s.seq++
	heap.Push(&s.heap, scheduledEvent{schedTime: schedTime, seq: s.seq, ev: ev})
}

// PopDue removes and returns the next event due strictly before end,
// along with its scheduled time. ok is false when nothing is due.
func (s *Scheduler) PopDue(end uint64) (ev Event, schedTime uint64, ok bool) {
	if len(s.heap) == 0 || s.heap[0].schedTime >= end {
		return Event{}, 0, false
	}
	it := heap.Pop(&s.heap).(scheduledEvent)
	return it.ev, it.schedTime, true
}
