// Package events implements the progress notification bus used to
// observe long-running archive and proxy operations. It plays the role
// the original implementation gave to its window.emit("krate://progress",
// ...) calls, fanning a stream of ProgressEvent values out to any number
// of subscribers instead of a single GUI window.
package events

import (
	"sync"

	goevents "github.com/docker/go-events"
)

// Topic is the event bus name carried for logging/documentation purposes.
const Topic = "krate://progress"

// ProgressEvent reports progress for a single archive or proxy operation.
type ProgressEvent struct {
	Phase   string `json:"phase"`
	Current uint64 `json:"current"`
	Total   uint64 `json:"total"`
	Message string `json:"message"`
}

// Bus fans progress events out to any number of subscribers. It wraps a
// github.com/docker/go-events Broadcaster, the pack's pub/sub primitive,
// with channel-based subscription instead of webhook sinks.
type Bus struct {
	mu          sync.Mutex
	broadcaster *goevents.Broadcaster
	channels    map[*goevents.Channel]struct{}
}

// NewBus returns an empty, ready-to-use Bus.
func NewBus() *Bus {
	return &Bus{
		broadcaster: goevents.NewBroadcaster(),
		channels:    make(map[*goevents.Channel]struct{}),
	}
}

// Publish fans ev out to every current subscriber. Errors from individual
// sinks are swallowed, matching the original's fire-and-forget emit
// semantics: progress reporting must never fail or block the operation
// it describes.
func (b *Bus) Publish(ev ProgressEvent) {
	_ = b.broadcaster.Write(ev)
}

// Subscribe registers a new subscriber and returns a channel of events
// plus a function to unsubscribe and release it.
func (b *Bus) Subscribe() (<-chan ProgressEvent, func()) {
	ch := goevents.NewChannel(16)
	b.mu.Lock()
	b.channels[ch] = struct{}{}
	b.mu.Unlock()
	_ = b.broadcaster.Add(ch)

	out := make(chan ProgressEvent, 16)
	go func() {
		defer close(out)
		for {
			select {
			case ev := <-ch.C:
				if pe, ok := ev.(ProgressEvent); ok {
					select {
					case out <- pe:
					default: // subscriber is behind: drop the event rather than stall Publish
					}
				}
			case <-ch.Done():
				return
			}
		}
	}()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.channels, ch)
		b.mu.Unlock()
		_ = b.broadcaster.Remove(ch)
		_ = ch.Close()
	}
	return out, unsubscribe
}

// Close shuts the bus down, closing every remaining subscriber channel.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.channels {
		_ = ch.Close()
		delete(b.channels, ch)
	}
	return b.broadcaster.Close()
}
