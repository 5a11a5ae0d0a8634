package bridge

import "sync"

// Channel is the same-origin broadcast channel between tabs. Publish fans a
// message out to every subscriber except the publisher's own, mirroring the
// browser BroadcastChannel, which never delivers to the posting context.
type Channel interface {
	Publish(m Message)
	Subscribe(fn func(Message)) (cancel func())
}

// MemChannel is an in-process Channel shared by every simulated tab. Each
// tab obtains its own endpoint via Join.
type MemChannel struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*memSubscriber
}

type memSubscriber struct {
	endpoint int
	fn       func(Message)
}

// NewMemChannel creates an empty broadcast channel.
func NewMemChannel() *MemChannel {
	return &MemChannel{subs: make(map[int]*memSubscriber)}
}

// Join returns a channel endpoint for one tab. Messages published through
// an endpoint reach the subscribers of every other endpoint.
func (c *MemChannel) Join() Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return &memEndpoint{channel: c, id: c.nextID}
}

type memEndpoint struct {
	channel *MemChannel
	id      int
}

func (e *memEndpoint) Publish(m Message) {
	e.channel.mu.RLock()
	targets := make([]func(Message), 0, len(e.channel.subs))
	for _, s := range e.channel.subs {
		if s.endpoint != e.id {
			targets = append(targets, s.fn)
		}
	}
	e.channel.mu.RUnlock()

	for _, fn := range targets {
		fn(m)
	}
}

func (e *memEndpoint) Subscribe(fn func(Message)) (cancel func()) {
	e.channel.mu.Lock()
	defer e.channel.mu.Unlock()
	e.channel.nextID++
	id := e.channel.nextID
	e.channel.subs[id] = &memSubscriber{endpoint: e.id, fn: fn}
	return func() {
		e.channel.mu.Lock()
		defer e.channel.mu.Unlock()
		delete(e.channel.subs, id)
	}
}
