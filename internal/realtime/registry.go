package realtime

import (
	"sync"
)

// Conn is the write side of a connected client as seen by the registry.
type Conn interface {
	ID() string
	Send(payload []byte) error
}

// Registry maps topics to the connections subscribed on this process. It is
// pure in-memory bookkeeping: no persistence, state is rebuilt from live
// connections after a restart. One Registry is constructed per server process
// and injected where needed.
//
// The reverse index (connection -> topics) keeps unsubscribe O(k) in the
// number of the connection's own topics instead of scanning every topic.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]map[string]Conn     // topic -> conn id -> conn
	conns  map[string]map[string]struct{} // conn id -> set of topics
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[string]map[string]Conn),
		conns:  make(map[string]map[string]struct{}),
	}
}

// Subscribe adds the connection to the topic's set, creating the set if
// absent. Duplicate subscribes are idempotent. Returns true when the
// connection is the topic's first local subscriber, which is the caller's
// cue to join the shared channel.
func (r *Registry) Subscribe(c Conn, topic string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(c, topic)
}

// SubscribeExclusive moves the connection to the topic, dropping any previous
// subscriptions (single-topic mode, used by payment flows). Returns whether
// the connection is the topic's first subscriber and which previous topics
// became empty and were deleted.
func (r *Registry) SubscribeExclusive(c Conn, topic string) (first bool, released []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for prev := range r.conns[c.ID()] {
		if prev == topic {
			continue
		}
		if r.removeLocked(c.ID(), prev) {
			released = append(released, prev)
		}
	}
	return r.addLocked(c, topic), released
}

// Leave removes the connection from a single topic. Returns true when the
// topic lost its last subscriber and was deleted.
func (r *Registry) Leave(connID, topic string) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(connID, topic)
}

// Unsubscribe removes the connection from every topic it belongs to and
// forgets the connection entirely. Returns the topics that became empty.
// Must be called on disconnect so no registry entry outlives the connection.
func (r *Registry) Unsubscribe(connID string) (released []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for topic := range r.conns[connID] {
		if r.removeLocked(connID, topic) {
			released = append(released, topic)
		}
	}
	delete(r.conns, connID)
	return released
}

// PublishLocal sends the payload to every local subscriber of the topic,
// skipping excludeConnID if non-empty. A send failure evicts the failing
// connection from the topic without affecting delivery to the others.
// Returns the delivery count and any topics emptied by evictions.
func (r *Registry) PublishLocal(topic string, payload []byte, excludeConnID string) (delivered int, released []string) {
	r.mu.RLock()
	subs := make([]Conn, 0, len(r.topics[topic]))
	for id, c := range r.topics[topic] {
		if id == excludeConnID {
			continue
		}
		subs = append(subs, c)
	}
	r.mu.RUnlock()

	var failed []string
	for _, c := range subs {
		if err := c.Send(payload); err != nil {
			failed = append(failed, c.ID())
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		r.mu.Lock()
		for _, id := range failed {
			if r.removeLocked(id, topic) {
				released = append(released, topic)
			}
		}
		r.mu.Unlock()
	}
	return delivered, released
}

// Subscribers returns the number of local subscribers on a topic.
func (r *Registry) Subscribers(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// TopicCount returns the number of live topics.
func (r *Registry) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// HasTopic reports whether the topic has any subscribers.
func (r *Registry) HasTopic(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.topics[topic]
	return ok
}

func (r *Registry) addLocked(c Conn, topic string) (first bool) {
	set, ok := r.topics[topic]
	if !ok {
		set = make(map[string]Conn)
		r.topics[topic] = set
		first = true
	}
	set[c.ID()] = c

	subs, ok := r.conns[c.ID()]
	if !ok {
		subs = make(map[string]struct{})
		r.conns[c.ID()] = subs
	}
	subs[topic] = struct{}{}
	return first
}

// removeLocked detaches a connection from a topic; returns true when the
// topic became empty and was deleted. The registry never keeps an empty
// topic entry around.
func (r *Registry) removeLocked(connID, topic string) (emptied bool) {
	set, ok := r.topics[topic]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if subs, ok := r.conns[connID]; ok {
		delete(subs, topic)
	}
	if len(set) == 0 {
		delete(r.topics, topic)
		return true
	}
	return false
}
