/*
Package chat contains the real-time core of the server: the presence registry,
the delivery coordinator, and the per-connection WebSocket client.

This file defines the Registry, the in-memory connection bookkeeping that is the
source of truth for "is this user connected to me". It maps transport connections
to users and back, and tracks conversation-room subscriptions. The state is
ephemeral by design: it is lost and rebuilt on restart, which is why the
coordinator forces every persisted user offline at boot.
*/
package chat

import "sync"

// Registry tracks live connections, their bound users, and room subscriptions.
// A user is online iff their connection set is non-empty.
type Registry struct {
	mu sync.RWMutex

	// clients maps connection id to the client owning it.
	clients map[string]*Client

	// conns maps connection id to the bound user id ("" while anonymous).
	conns map[string]string

	// users maps user id to the set of its live connection ids.
	users map[string]map[string]struct{}

	// rooms maps a conversation key to the set of subscribed connection ids.
	rooms map[string]map[string]struct{}
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		conns:   make(map[string]string),
		users:   make(map[string]map[string]struct{}),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Add registers a new anonymous connection. No user association yet.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c.id] = c
	r.conns[c.id] = ""
}

// Bind associates the connection with a user. It returns whether this bind took
// the user's connection set from empty to non-empty (the online transition).
// Rebinding the same connection to the same user is a no-op.
func (r *Registry) Bind(connID, userID string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[connID]; !ok {
		return false
	}

	prev := r.conns[connID]
	if prev == userID {
		return false
	}
	if prev != "" {
		r.dropUserConn(prev, connID)
	}

	r.conns[connID] = userID
	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]struct{})
		r.users[userID] = set
	}
	wasEmpty := len(set) == 0
	set[connID] = struct{}{}

	return wasEmpty
}

// Remove deregisters the connection entirely. It returns the user the connection
// was bound to (empty for anonymous connections) and whether this removal
// emptied that user's connection set (the offline transition).
func (r *Registry) Remove(connID string) (userID string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[connID]; !ok {
		return "", false
	}

	userID = r.conns[connID]
	delete(r.clients, connID)
	delete(r.conns, connID)

	for room, members := range r.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}

	if userID == "" {
		return "", false
	}
	return userID, r.dropUserConn(userID, connID)
}

// dropUserConn removes connID from userID's set and reports whether the set emptied.
// Caller must hold the write lock.
func (r *Registry) dropUserConn(userID, connID string) bool {
	set, ok := r.users[userID]
	if !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// JoinRoom subscribes the connection to a conversation room.
func (r *Registry) JoinRoom(connID, room string) {
	if room == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[connID]; !ok {
		return
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[connID] = struct{}{}
}

// LeaveRoom drops the connection's subscription to a conversation room.
func (r *Registry) LeaveRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users[userID]) > 0
}

// ClientsForUser returns every client bound to the given user.
func (r *Registry) ClientsForUser(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.users[userID]))
	for connID := range r.users[userID] {
		if c, ok := r.clients[connID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Recipients returns every client reachable for a conversation: the union of the
// room's subscribers and all connections of the given users, deduplicated by
// connection id so overlapping delivery paths collapse to a single send.
func (r *Registry) Recipients(room string, userIDs ...string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []*Client

	collect := func(connID string) {
		if _, dup := seen[connID]; dup {
			return
		}
		seen[connID] = struct{}{}
		if c, ok := r.clients[connID]; ok {
			out = append(out, c)
		}
	}

	for connID := range r.rooms[room] {
		collect(connID)
	}
	for _, userID := range userIDs {
		for connID := range r.users[userID] {
			collect(connID)
		}
	}
	return out
}

// All returns every registered client, bound or anonymous.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// OnlineSet returns the set of user ids with at least one live connection.
func (r *Registry) OnlineSet() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]struct{}, len(r.users))
	for userID, set := range r.users {
		if len(set) > 0 {
			out[userID] = struct{}{}
		}
	}
	return out
}
