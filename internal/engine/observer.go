package engine

import "fmt"

// AddObserver registers o for all future notifications.
func (m *Manager) AddObserver(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, o)
}

// RemoveObserver unregisters o.
func (m *Manager) RemoveObserver(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	for i, existing := range m.observers {
		if existing == o {
			m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
			return
		}
	}
}

// emit delivers events in order. It must be called without m.mu held.
func (m *Manager) emit(events []event) {
	if len(events) == 0 {
		return
	}
	m.obsMu.RLock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.obsMu.RUnlock()

	for _, o := range observers {
		for _, ev := range events {
			m.deliver(o, ev)
		}
	}
}

func (m *Manager) deliver(o Observer, ev event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("observer panic on event %d for download %d: %v", ev.kind, ev.id, fmt.Sprint(r))
		}
	}()

	switch ev.kind {
	case eventAdded:
		o.ItemAdded(ev.id, ev.snap)
	case eventUpdated:
		o.ItemUpdated(ev.id, ev.snap)
	case eventRemoved:
		o.ItemRemoved(ev.id)
	case eventQueueChanged:
		o.QueueChanged()
	}
}
