package resource

// Handle is an index into a resource table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventCloned
	EventDropped
	EventDestroyed
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventCloned:
		return "cloned"
	case EventDropped:
		return "dropped"
	case EventDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Event represents a resource lifecycle event. Refs is the reference count
// after the operation.
type Event struct {
	Value    any
	Resource string
	Handle   Handle
	Refs     int
	Type     EventType
}

// Observer receives notifications about resource lifecycle events.
// Observers are called outside the table lock.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Destructor releases a resource instance once its last reference is dropped.
type Destructor func(value any) error

// Dropper is optionally implemented by resource values that need cleanup.
// It is used when a table has no explicit destructor.
type Dropper interface {
	Drop()
}

func defaultDestructor(v any) error {
	if d, ok := v.(Dropper); ok {
		d.Drop()
	}
	return nil
}
