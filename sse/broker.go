// Package sse streams session and write events to connected clients.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	EventSessionChanged = "session_changed"
	EventWriteCompleted = "write_completed"
	eventSyncRequired   = "sync_required"

	subscriberBuffer = 64
)

type Event struct {
	ID   uint64
	Type string
	Data string
}

func (e *Event) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.ID, e.Type, e.Data)
	return int64(n), err
}

type Broker struct {
	mu          sync.RWMutex
	subscribers map[chan *Event]struct{}
	ring        []*Event
	ringSize    int
	lastID      uint64

	keepalive time.Duration
}

func NewBroker(ringSize int) *Broker {
	if ringSize < 1 {
		ringSize = 1
	}
	return &Broker{
		subscribers: make(map[chan *Event]struct{}),
		ring:        make([]*Event, 0, ringSize),
		ringSize:    ringSize,
		keepalive:   30 * time.Second,
	}
}

// Publish broadcasts payload as JSON to all subscribers and keeps it for replay.
func (b *Broker) Publish(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal sse event", "type", eventType, "error", err)
		return
	}

	b.mu.Lock()
	b.lastID++
	evt := &Event{ID: b.lastID, Type: eventType, Data: string(data)}
	if len(b.ring) >= b.ringSize {
		b.ring = b.ring[1:]
	}
	b.ring = append(b.ring, evt)

	subs := make([]chan *Event, 0, len(b.subscribers))
	for ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			slog.Warn("sse subscriber too slow, dropping event", "id", evt.ID, "type", evt.Type)
		}
	}
}

func (b *Broker) subscribe() chan *Event {
	ch := make(chan *Event, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(ch chan *Event) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
}

// eventsAfter returns buffered events newer than lastID. ok is false when
// events after lastID have already been evicted from the ring.
func (b *Broker) eventsAfter(lastID uint64) (events []*Event, current uint64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.ring) == 0 || lastID >= b.lastID {
		return nil, b.lastID, true
	}
	if lastID+1 < b.ring[0].ID {
		return nil, b.lastID, false
	}
	for _, e := range b.ring {
		if e.ID > lastID {
			events = append(events, e)
		}
	}
	return events, b.lastID, true
}

func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before replaying so nothing published in between is lost.
	ch := b.subscribe()
	defer b.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Header for browser reconnects, query param for the initial connect.
	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("lastEventId")
	}
	var replayed uint64
	if id, err := strconv.ParseUint(lastEventID, 10, 64); err == nil {
		events, current, ok := b.eventsAfter(id)
		if !ok {
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: {}\n\n", current, eventSyncRequired)
			replayed = current
		}
		for _, e := range events {
			e.WriteTo(w)
			replayed = e.ID
		}
	}

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(b.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if evt.ID <= replayed {
				continue
			}
			evt.WriteTo(w)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
