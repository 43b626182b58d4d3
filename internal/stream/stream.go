package stream

import (
	"context"
	"sync"
	"time"
)

// ReportEvent describes a violation-record change for the live dashboard
// feed.
type ReportEvent struct {
	Kind      string    `json:"kind"` // "reported", "resolved", "reopened", "deleted"
	ID        int64     `json:"id"`
	Type      string    `json:"violation_type,omitempty"`
	Location  string    `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	KindReported = "reported"
	KindResolved = "resolved"
	KindReopened = "reopened"
	KindDeleted  = "deleted"
)

// Stream fans report events out to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan ReportEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan ReportEvent)}
}

// Subscribe registers a listener. The returned channel closes when ctx is
// cancelled.
func (s *Stream) Subscribe(ctx context.Context) <-chan ReportEvent {
	ch := make(chan ReportEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish delivers an event to every subscriber. Slow subscribers drop
// events rather than block the publisher.
func (s *Stream) Publish(event ReportEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
