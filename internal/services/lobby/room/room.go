package room

import (
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// User is one member of a room.
type User struct {
	Name         string `json:"name"`
	ConnectionID string `json:"connection_id"`
	IsAdmin      bool   `json:"is_admin"`
}

// Room is a point-in-time copy of a room's state.
type Room struct {
	Name      string `json:"name"`
	Members   []User `json:"members"`
	Active    bool   `json:"active"`
	IdleTicks int    `json:"idle_ticks"`
}

// Admin returns the member currently holding the admin role.
func (r Room) Admin() (User, bool) {
	for _, member := range r.Members {
		if member.IsAdmin {
			return member, true
		}
	}
	return User{}, false
}

// Departure describes a member removed because its connection went away.
type Departure struct {
	Room      string
	User      User
	Remaining int
}

// NormalizeName trims a display name and folds it to Unicode NFC so that
// visually identical names compare equal.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// NormalizeRoomName trims a room name. Room names stay case-sensitive.
func NormalizeRoomName(name string) string {
	return strings.TrimSpace(name)
}

type liveRoom struct {
	mu        sync.Mutex
	name      string
	members   []User
	active    bool
	closed    bool
	idleTicks int
	countdown *countdown
}

func newLiveRoom(name string) *liveRoom {
	return &liveRoom{name: name, active: true}
}

func (r *liveRoom) snapshot() Room {
	members := make([]User, len(r.members))
	copy(members, r.members)
	return Room{
		Name:      r.name,
		Members:   members,
		Active:    r.active,
		IdleTicks: r.idleTicks,
	}
}

func (r *liveRoom) indexOfName(name string) int {
	for i, member := range r.members {
		if member.Name == name {
			return i
		}
	}
	return -1
}

func (r *liveRoom) indexOfConnection(connectionID string) int {
	for i, member := range r.members {
		if member.ConnectionID == connectionID {
			return i
		}
	}
	return -1
}

func (r *liveRoom) admin() (User, bool) {
	for _, member := range r.members {
		if member.IsAdmin {
			return member, true
		}
	}
	return User{}, false
}

func (r *liveRoom) stopCountdown() {
	if r.countdown != nil {
		r.countdown.stop()
		r.countdown = nil
	}
}
