package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/event"
)

// CapturePublisher records every published event for assertions.
type CapturePublisher struct {
	mu     sync.Mutex
	events []event.Event
}

// NewCapturePublisher creates an empty recorder.
func NewCapturePublisher() *CapturePublisher {
	return &CapturePublisher{}
}

func (p *CapturePublisher) Publish(evt event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

// Events returns a snapshot of everything published so far.
func (p *CapturePublisher) Events() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Event, len(p.events))
	copy(out, p.events)
	return out
}

// EventsOfType returns the published events of one type, in order.
func (p *CapturePublisher) EventsOfType(t event.Type) []event.Event {
	var out []event.Event
	for _, evt := range p.Events() {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

// MemoryCache is a map-backed report cache that ignores TTLs.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.entries[key]
	return body, ok
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *MemoryCache) Invalidate(_ context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
}

// MemoryDocumentStore keeps uploaded bid documents in a map.
type MemoryDocumentStore struct {
	mu        sync.Mutex
	documents map[string][]byte
}

// NewMemoryDocumentStore creates an empty store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{documents: make(map[string][]byte)}
}

func (s *MemoryDocumentStore) Store(_ context.Context, bidID uuid.UUID, documentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := strings.Join([]string{bidID.String(), documentType}, "/")
	s.documents[ref] = data
	return ref, nil
}

func (s *MemoryDocumentStore) Fetch(_ context.Context, reference string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.documents[reference]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Len reports how many documents have been stored.
func (s *MemoryDocumentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.documents)
}
