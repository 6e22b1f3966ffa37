// Package events fans node events out to registered subscribers. The node
// publishes finalized state diffs through it and the websocket handler
// registers one channel per connection.
package events

import (
	"fmt"
	"sync"
)

// Events tracks one buffered channel per subscriber id.
type Events struct {
	m  map[string]chan string
	mu sync.RWMutex
}

// New constructs an Events for subscriber registration and delivery.
func New() *Events {
	return &Events{
		m: make(map[string]chan string),
	}
}

// Shutdown closes and removes every subscriber channel. It holds the write
// lock since the map is mutated.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire returns the channel registered under the specified id, creating
// it on first use.
func (evt *Events) Acquire(id string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if ch, exists := evt.m[id]; exists {
		return ch
	}

	// A subscriber stuck in a slow websocket write misses messages rather
	// than blocking delivery, so give each channel enough slack to ride
	// out a slow send.
	const messageBuffer = 100

	ch := make(chan string, messageBuffer)
	evt.m[id] = ch
	return ch
}

// Release closes and removes the channel registered under the specified id.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Send delivers the message to every subscriber without ever blocking on a
// receiver. A subscriber whose buffer is full misses the message.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- s:
		default:
		}
	}
}
