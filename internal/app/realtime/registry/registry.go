// internal/app/realtime/registry/registry.go
// Package registry tracks which users currently have live transport
// connections. It is the only owner of the user→connection presence index;
// callers never see or mutate the underlying maps.
package registry

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{} // userID -> set of connIDs
}

// Registry is a sharded, concurrency-safe mapping from user IDs to the set
// of their live connection IDs. Sharding is by user so connect/disconnect
// traffic for unrelated users never contends on the same lock.
type Registry struct {
	shards [shardCount]*shard
}

// New returns an empty Registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[string]map[string]struct{})}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Register adds connID under userID's connection set. It is idempotent.
// The returned flag is true when this was the user's first live connection,
// i.e. the offline→online transition the caller may want to broadcast.
func (r *Registry) Register(connID, userID string) (firstConn bool) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		s.users[userID] = conns
	}
	before := len(conns)
	conns[connID] = struct{}{}
	return before == 0 && len(conns) == 1
}

// Unregister removes connID from userID's connection set. Removing a
// connection that was never registered is a no-op, not an error. The
// returned flag is true when this removed the user's last connection,
// i.e. the online→offline transition.
func (r *Registry) Unregister(connID, userID string) (lastConn bool) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userID]
	if !ok {
		return false
	}
	if _, had := conns[connID]; !had {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(s.users, userID)
		return true
	}
	return false
}

// IsOnline reports whether userID has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

// ConnectionsOf returns a snapshot copy of userID's connection IDs. Callers
// iterating the result for delivery are unaffected by concurrent disconnects.
func (r *Registry) ConnectionsOf(userID string) []string {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := s.users[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// OnlineUsers returns the number of distinct users with at least one live
// connection. This is the authoritative "online count"; Connections is the
// derived raw-connection metric.
func (r *Registry) OnlineUsers() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.users)
		s.mu.RUnlock()
	}
	return total
}

// Connections returns the total number of live connections across all users.
func (r *Registry) Connections() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		for _, conns := range s.users {
			total += len(conns)
		}
		s.mu.RUnlock()
	}
	return total
}
