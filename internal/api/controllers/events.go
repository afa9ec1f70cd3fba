package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/infra/logger"
	"github.com/labstack/echo/v5"
)

const (
	subscriberBuffer  = 64
	keepAliveInterval = 20 * time.Second
)

// EventBroker fans manager notifications out to server-sent event streams.
// It implements engine.Observer. Slow subscribers lose events rather than
// stalling the manager.
type EventBroker struct {
	log *logger.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewEventBroker(log *logger.Logger) *EventBroker {
	return &EventBroker{log: log, subs: make(map[chan Event]struct{})}
}

func (b *EventBroker) ItemAdded(id int64, snap domain.Snapshot) {
	b.publish(Event{Type: EventAdded, ID: id, Snapshot: &snap})
}

func (b *EventBroker) ItemUpdated(id int64, snap domain.Snapshot) {
	b.publish(Event{Type: EventUpdated, ID: id, Snapshot: &snap})
}

func (b *EventBroker) ItemRemoved(id int64) {
	b.publish(Event{Type: EventRemoved, ID: id})
}

func (b *EventBroker) QueueChanged() {
	b.publish(Event{Type: EventQueueChanged})
}

func (b *EventBroker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Debug("Dropping %s event for slow subscriber", ev.Type)
		}
	}
}

func (b *EventBroker) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *EventBroker) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}


// Stream serves GET /api/events until the client disconnects.
func (b *EventBroker) Stream(c *echo.Context) error {
	w := c.Response()
	rc := http.NewResponseController(w)

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	h := w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return err
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				b.log.Error("Failed to encode %s event: %v", ev.Type, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return nil
			}
		}
		if err := rc.Flush(); err != nil {
			return nil
		}
	}
}
