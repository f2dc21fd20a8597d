package store

// EventKind is the kind of mutation a data source requests.
type EventKind int

const (
	// EntityCreated replaces the entity at the key.
	EntityCreated EventKind = iota + 1
	// EntityChanged merges attributes into the entity at the key, creating it
	// when absent. A nil attribute value removes the attribute.
	EntityChanged
	// EntityRemoved deletes the entity at the key.
	EntityRemoved
)

func (k EventKind) String() string {
	switch k {
	case EntityCreated:
		return "EntityCreated"
	case EntityChanged:
		return "EntityChanged"
	case EntityRemoved:
		return "EntityRemoved"
	}
	return "Unknown"
}

// ParseEventKind maps the names used by event logs and the wire protocol to
// an EventKind.
func ParseEventKind(s string) (EventKind, bool) {
	switch s {
	case "EntityCreated", "created", "create":
		return EntityCreated, true
	case "EntityChanged", "changed", "change", "update":
		return EntityChanged, true
	case "EntityRemoved", "removed", "remove", "delete":
		return EntityRemoved, true
	}
	return 0, false
}

// Event is a mutation emitted by the runtime host of one data source.
type Event struct {
	Kind   EventKind
	Source string // id of the emitting data source
	Key    Key
	Entity Entity // nil for EntityRemoved
}

func Created(source string, key Key, entity Entity) Event {
	return Event{Kind: EntityCreated, Source: source, Key: key, Entity: entity}
}

func Changed(source string, key Key, entity Entity) Event {
	return Event{Kind: EntityChanged, Source: source, Key: key, Entity: entity}
}

func Removed(source string, key Key) Event {
	return Event{Kind: EntityRemoved, Source: source, Key: key}
}

// Change notifies listeners of an applied event. Entity is the stored state
// after the apply and nil for removals.
type Change struct {
	Kind   EventKind
	Source string
	Key    Key
	Entity Entity
}
