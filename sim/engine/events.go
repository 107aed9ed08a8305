package engine

// EventType classifies events for tie-breaking at equal timestamps.
type EventType string

const (
	// EventTypeControl changes the simulated world (route withdrawal, stop).
	EventTypeControl EventType = "Control"
	// EventTypeDelivery hands a frame to the receiving device.
	EventTypeDelivery EventType = "Delivery"
	// EventTypeTransmit marks the end of a frame's serialization on a link.
	EventTypeTransmit EventType = "Transmit"
	// EventTypeApplication runs traffic generators and sinks.
	EventTypeApplication EventType = "Application"
)

// EventTypePriority defines ordering for simultaneous events.
// Lower values are processed first.
var EventTypePriority = map[EventType]int{
	EventTypeControl:     0,
	EventTypeDelivery:    1,
	EventTypeTransmit:    2,
	EventTypeApplication: 3,
}

// Event is one scheduled action.
type Event interface {
	Timestamp() int64
	EventID() uint64
	Type() EventType
	Execute(sim *Simulator)
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	timestamp int64
	eventID   uint64
	eventType EventType
}

func (e *BaseEvent) Timestamp() int64 { return e.timestamp }

func (e *BaseEvent) EventID() uint64 { return e.eventID }

func (e *BaseEvent) Type() EventType { return e.eventType }

// FuncEvent runs a closure.
type FuncEvent struct {
	BaseEvent
	fn func()
}

func (e *FuncEvent) Execute(*Simulator) {
	e.fn()
}
