package room

import (
	"sort"
	"strings"
	"sync"
)

type binding struct {
	room     string
	username string
}

// Registry is the in-memory store of rooms and their members.
//
// Each room has its own lock; the registry lock only guards the room map and
// the connection index. Locks are always taken room first, registry second.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*liveRoom
	conns map[string]binding
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*liveRoom),
		conns: make(map[string]binding),
	}
}

func (r *Registry) lookup(name string, create bool) *liveRoom {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if ok || !create {
		return room
	}
	room = newLiveRoom(name)
	r.rooms[name] = room
	return room
}

// withRoom runs fn inside the room's critical section. A room closed between
// lookup and lock is either looked up again (create) or reported absent.
func (r *Registry) withRoom(name string, create bool, fn func(*liveRoom)) bool {
	for {
		room := r.lookup(name, create)
		if room == nil {
			return false
		}
		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			if create {
				continue
			}
			return false
		}
		fn(room)
		room.mu.Unlock()
		return true
	}
}

// closeLocked removes room from the map and cancels its countdown. The caller
// holds room.mu.
func (r *Registry) closeLocked(room *liveRoom) {
	room.closed = true
	room.active = false
	room.stopCountdown()

	r.mu.Lock()
	for _, member := range room.members {
		if bound, ok := r.conns[member.ConnectionID]; ok && bound.room == room.name {
			delete(r.conns, member.ConnectionID)
		}
	}
	if r.rooms[room.name] == room {
		delete(r.rooms, room.name)
	}
	r.mu.Unlock()
	room.members = nil
}

// removeLocked drops the member at idx and deletes the room once it is empty.
// The caller holds room.mu.
func (r *Registry) removeLocked(room *liveRoom, idx int) User {
	user := room.members[idx]
	room.members = append(room.members[:idx], room.members[idx+1:]...)

	r.unbind(user.ConnectionID, room.name)
	if len(room.members) == 0 {
		r.closeLocked(room)
	}
	return user
}

func (r *Registry) unbind(connectionID string, roomName string) {
	r.mu.Lock()
	if bound, ok := r.conns[connectionID]; ok && bound.room == roomName {
		delete(r.conns, connectionID)
	}
	r.mu.Unlock()
}

// EnsureRoom returns the named room, creating it empty and active if absent.
func (r *Registry) EnsureRoom(name string) (Room, error) {
	name = NormalizeRoomName(name)
	if name == "" {
		return Room{}, invalidArgument("room")
	}
	var snapshot Room
	r.withRoom(name, true, func(room *liveRoom) {
		snapshot = room.snapshot()
	})
	return snapshot, nil
}

// ListUsers returns the members of a room in join order. When allowCreate is
// false an unknown room reports false instead of being created.
func (r *Registry) ListUsers(name string, allowCreate bool) ([]User, bool) {
	name = NormalizeRoomName(name)
	if name == "" {
		return nil, false
	}
	var users []User
	ok := r.withRoom(name, allowCreate, func(room *liveRoom) {
		users = room.snapshot().Members
	})
	return users, ok
}

// Snapshot returns a copy of the room's full state.
func (r *Registry) Snapshot(name string) (Room, bool) {
	var snapshot Room
	ok := r.withRoom(NormalizeRoomName(name), false, func(room *liveRoom) {
		snapshot = room.snapshot()
	})
	return snapshot, ok
}

// RoomOf resolves the room a connection is a member of.
func (r *Registry) RoomOf(connectionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bound, ok := r.conns[strings.TrimSpace(connectionID)]
	return bound.room, ok
}

// AddUser appends a member to the room, creating the room if needed.
//
// A connection may be bound to at most one member across all rooms and a
// name may appear once per room. Joining a room that is being evacuated for
// inactivity fails with ErrRoomExpired.
func (r *Registry) AddUser(connectionID string, roomName string, username string) error {
	connectionID = strings.TrimSpace(connectionID)
	roomName = NormalizeRoomName(roomName)
	username = NormalizeName(username)
	switch {
	case connectionID == "":
		return invalidArgument("connection_id")
	case roomName == "":
		return invalidArgument("room")
	case username == "":
		return invalidArgument("username")
	}

	var err error
	r.withRoom(roomName, true, func(room *liveRoom) {
		err = r.addLocked(room, connectionID, username)
		if err != nil && len(room.members) == 0 {
			r.closeLocked(room)
		}
	})
	return err
}

func (r *Registry) addLocked(room *liveRoom, connectionID string, username string) error {
	if !room.active {
		return roomExpired(room.name)
	}
	if room.indexOfName(username) >= 0 {
		return usernameTaken(room.name, username)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if bound, ok := r.conns[connectionID]; ok {
		return duplicateConnection(connectionID, bound)
	}
	r.conns[connectionID] = binding{room: room.name, username: username}
	room.members = append(room.members, User{Name: username, ConnectionID: connectionID})
	return nil
}

// RemoveUser removes the first member named username. The room is deleted,
// and its countdown cancelled, when the last member leaves. It reports false
// when the room or the member does not exist.
func (r *Registry) RemoveUser(roomName string, username string) (User, bool) {
	username = NormalizeName(username)
	var (
		removed User
		found   bool
	)
	r.withRoom(NormalizeRoomName(roomName), false, func(room *liveRoom) {
		idx := room.indexOfName(username)
		if idx < 0 {
			return
		}
		removed = r.removeLocked(room, idx)
		found = true
	})
	return removed, found
}

// Evict removes a member from a room that has been marked inactive. It
// reports false for active rooms so a room recreated under the same name is
// never evacuated by a stale expiry.
func (r *Registry) Evict(roomName string, username string) (User, bool) {
	username = NormalizeName(username)
	var (
		removed User
		found   bool
	)
	r.withRoom(NormalizeRoomName(roomName), false, func(room *liveRoom) {
		if room.active {
			return
		}
		idx := room.indexOfName(username)
		if idx < 0 {
			return
		}
		removed = r.removeLocked(room, idx)
		found = true
	})
	return removed, found
}

// RemoveConnection removes the member bound to connectionID, wherever it is.
func (r *Registry) RemoveConnection(connectionID string) (Departure, bool) {
	connectionID = strings.TrimSpace(connectionID)
	roomName, ok := r.RoomOf(connectionID)
	if !ok {
		return Departure{}, false
	}

	var (
		departure Departure
		found     bool
	)
	r.withRoom(roomName, false, func(room *liveRoom) {
		idx := room.indexOfConnection(connectionID)
		if idx < 0 {
			return
		}
		departure = Departure{
			Room: room.name,
			User: r.removeLocked(room, idx),
		}
		departure.Remaining = len(room.members)
		found = true
	})
	return departure, found
}

// DeleteRoom removes the room and cancels its countdown regardless of
// membership.
func (r *Registry) DeleteRoom(name string) bool {
	return r.withRoom(NormalizeRoomName(name), false, func(room *liveRoom) {
		r.closeLocked(room)
	})
}

// Rooms returns the names of all live rooms in lexical order.
func (r *Registry) Rooms() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)
	return names
}
