package room

// Election assigns the single admin of each room.
//
// The first member of a new room becomes admin deterministically; when an
// admin departs, a uniformly random remaining member is promoted so the next
// admin cannot be predicted from join order.
type Election struct {
	registry *Registry
	pick     func(n int) int
}

// NewElection builds an Election over registry. pick returns an index in
// [0, n); when nil, random assignments fall back to the first member.
func NewElection(registry *Registry, pick func(n int) int) *Election {
	return &Election{registry: registry, pick: pick}
}

// AssignAdmin marks one member of the room admin and clears the flag on every
// other member. With random it picks uniformly, otherwise it picks index 0.
// It reports false when the room is absent or empty.
func (e *Election) AssignAdmin(roomName string, random bool) (User, bool) {
	var (
		admin User
		ok    bool
	)
	e.registry.withRoom(NormalizeRoomName(roomName), false, func(room *liveRoom) {
		admin, ok = e.assignLocked(room, random)
	})
	return admin, ok
}

// CurrentAdmin returns the room's admin, or false when the room is absent or
// no admin has been elected yet.
func (e *Election) CurrentAdmin(roomName string) (User, bool) {
	var (
		admin User
		ok    bool
	)
	e.registry.withRoom(NormalizeRoomName(roomName), false, func(room *liveRoom) {
		admin, ok = room.admin()
	})
	return admin, ok
}

// EnsureAdmin re-checks a room after a mutation: when the room has members
// but no admin, a random member is elected. It returns the resulting room
// state and whether an election happened; ok is false for an absent room.
func (e *Election) EnsureAdmin(roomName string) (snapshot Room, elected bool, ok bool) {
	ok = e.registry.withRoom(NormalizeRoomName(roomName), false, func(room *liveRoom) {
		if _, found := room.admin(); !found && len(room.members) > 0 {
			_, elected = e.assignLocked(room, true)
		}
		snapshot = room.snapshot()
	})
	return snapshot, elected, ok
}

func (e *Election) assignLocked(room *liveRoom, random bool) (User, bool) {
	n := len(room.members)
	if n == 0 {
		return User{}, false
	}
	idx := 0
	if random && e.pick != nil {
		idx = e.pick(n)
		if idx < 0 || idx >= n {
			idx = 0
		}
	}
	for i := range room.members {
		room.members[i].IsAdmin = i == idx
	}
	return room.members[idx], true
}
