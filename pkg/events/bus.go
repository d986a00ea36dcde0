package events

// Observer receives every emitted lifecycle event. Implementations must
// tolerate being called from the single deploy goroutine; the bus imposes
// no ordering beyond emission order.
type Observer interface {
	Notify(Event) error
}

// Bus fans one event out to every registered observer. Observer failures
// are isolated: an error or panic in one observer never reaches the other
// observers and never aborts the deploy pipeline. A full disk under the
// JSONL writer must not stop a cluster deployment.
type Bus struct {
	observers []Observer
}

// NewBus creates a bus over the given observers. Order of registration is
// delivery order.
func NewBus(observers ...Observer) *Bus {
	return &Bus{observers: observers}
}

// Register appends an observer to the fan-out set.
func (b *Bus) Register(o Observer) {
	b.observers = append(b.observers, o)
}

// Emit delivers the event to every observer, swallowing per-observer
// errors and panics.
func (b *Bus) Emit(e Event) {
	if b == nil {
		return
	}
	for _, o := range b.observers {
		b.notify(o, e)
	}
}

func (b *Bus) notify(o Observer, e Event) {
	defer func() {
		_ = recover()
	}()
	_ = o.Notify(e)
}
