// internal/app/realtime/router/router.go
// Package router maps logical broadcast topics to the set of transport
// connections currently subscribed. A topic is either a user's personal
// channel (the user ID itself) or an arbitrary named group.
package router

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

type topicShard struct {
	mu     sync.RWMutex
	topics map[string]map[string]struct{} // topic -> set of connIDs
}

// Router is a sharded, concurrency-safe topic-membership index. It also
// keeps a reverse index from connection to joined topics so that LeaveAll
// on disconnect only touches the topics that connection belongs to.
type Router struct {
	shards [shardCount]*topicShard

	// reverse index: connID -> set of topics. Guarded by its own lock;
	// topic shards are never locked while holding it.
	revMu sync.Mutex
	rev   map[string]map[string]struct{}
}

// New returns an empty Router.
func New() *Router {
	r := &Router{rev: make(map[string]map[string]struct{})}
	for i := range r.shards {
		r.shards[i] = &topicShard{topics: make(map[string]map[string]struct{})}
	}
	return r
}

func (r *Router) shardFor(topic string) *topicShard {
	h := fnv.New32a()
	h.Write([]byte(topic))
	return r.shards[h.Sum32()%shardCount]
}

// Join subscribes connID to topic. Joining a topic the connection already
// belongs to is a no-op.
func (r *Router) Join(connID, topic string) {
	s := r.shardFor(topic)
	s.mu.Lock()
	members, ok := s.topics[topic]
	if !ok {
		members = make(map[string]struct{})
		s.topics[topic] = members
	}
	members[connID] = struct{}{}
	s.mu.Unlock()

	r.revMu.Lock()
	joined, ok := r.rev[connID]
	if !ok {
		joined = make(map[string]struct{})
		r.rev[connID] = joined
	}
	joined[topic] = struct{}{}
	r.revMu.Unlock()
}

// Leave removes connID from topic. Leaving a topic the connection never
// joined is a no-op.
func (r *Router) Leave(connID, topic string) {
	s := r.shardFor(topic)
	s.mu.Lock()
	if members, ok := s.topics[topic]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(s.topics, topic)
		}
	}
	s.mu.Unlock()

	r.revMu.Lock()
	if joined, ok := r.rev[connID]; ok {
		delete(joined, topic)
		if len(joined) == 0 {
			delete(r.rev, connID)
		}
	}
	r.revMu.Unlock()
}

// LeaveAll removes connID from every topic it belongs to. It must be called
// on every disconnect path, including abrupt ones, so membership entries
// never outlive their connection.
func (r *Router) LeaveAll(connID string) {
	r.revMu.Lock()
	joined := r.rev[connID]
	delete(r.rev, connID)
	r.revMu.Unlock()

	for topic := range joined {
		s := r.shardFor(topic)
		s.mu.Lock()
		if members, ok := s.topics[topic]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(s.topics, topic)
			}
		}
		s.mu.Unlock()
	}
}

// MembersOf returns a snapshot copy of the connection IDs subscribed to
// topic. The caller may iterate it while members join and leave.
func (r *Router) MembersOf(topic string) []string {
	s := r.shardFor(topic)
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.topics[topic]
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// TopicsOf returns a snapshot of the topics connID currently belongs to.
func (r *Router) TopicsOf(connID string) []string {
	r.revMu.Lock()
	defer r.revMu.Unlock()

	joined := r.rev[connID]
	if len(joined) == 0 {
		return nil
	}
	out := make([]string, 0, len(joined))
	for topic := range joined {
		out = append(out, topic)
	}
	return out
}
