package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// Simulator owns the clock and the event queue.
//
// Thread-safety: NOT thread-safe. All scheduling happens from event handlers
// or before Run.
type Simulator struct {
	queue       *EventHeap
	clock       int64
	horizon     int64
	nextEventID uint64
	executed    uint64
	stopped     bool
}

// NewSimulator creates a simulator that stops after horizon.
// A non-positive horizon means run until the queue drains.
func NewSimulator(horizon time.Duration) *Simulator {
	h := int64(horizon)
	if h <= 0 {
		h = math.MaxInt64
	}
	return &Simulator{queue: NewEventHeap(), horizon: h}
}

// Now returns the current simulated time in nanoseconds.
func (s *Simulator) Now() int64 { return s.clock }

// Elapsed returns the current simulated time as a duration.
func (s *Simulator) Elapsed() time.Duration { return time.Duration(s.clock) }

// Horizon returns the end of the run in nanoseconds.
func (s *Simulator) Horizon() int64 { return s.horizon }

// Executed returns the number of events run so far.
func (s *Simulator) Executed() uint64 { return s.executed }

// Pending returns the number of queued events.
func (s *Simulator) Pending() int { return s.queue.Len() }

// Schedule runs fn after delay. Negative delays are clamped to zero.
func (s *Simulator) Schedule(delay time.Duration, typ EventType, fn func()) Event {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(s.clock+int64(delay), typ, fn)
}

// ScheduleAt runs fn at an absolute timestamp.
// Panics if at lies in the past.
func (s *Simulator) ScheduleAt(at int64, typ EventType, fn func()) Event {
	if at < s.clock {
		panic(fmt.Sprintf("ScheduleAt: timestamp %d is before clock %d", at, s.clock))
	}
	s.nextEventID++
	e := &FuncEvent{
		BaseEvent: BaseEvent{timestamp: at, eventID: s.nextEventID, eventType: typ},
		fn:        fn,
	}
	s.queue.Schedule(e)
	return e
}

// Stop makes Run return after the current event.
func (s *Simulator) Stop() { s.stopped = true }

// Run executes events until the queue drains, the horizon passes or Stop is called.
func (s *Simulator) Run() {
	s.stopped = false
	for s.queue.Len() > 0 && !s.stopped {
		event := s.queue.PopNext()
		if event.Timestamp() > s.horizon {
			logrus.Debugf("[engine] horizon %d reached with %d events pending", s.horizon, s.queue.Len()+1)
			break
		}
		if event.Timestamp() < s.clock {
			panic(fmt.Sprintf("Clock went backwards: %d < %d", event.Timestamp(), s.clock))
		}
		s.clock = event.Timestamp()
		event.Execute(s)
		s.executed++
	}
}
