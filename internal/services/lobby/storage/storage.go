// Package storage defines persistence contracts for lobby activity logs.
package storage

import (
	"context"
	"time"
)

// Log keys recorded for room membership events.
const (
	LogKeyJoinRoom  = "JoinRoom"
	LogKeyLeaveRoom = "LeaveRoom"
	LogKeyNewAdmin  = "NewAdmin"
)

// ActivityEntry is one membership event observed in a room.
type ActivityEntry struct {
	Room       string
	Username   string
	LogKey     string
	OccurredAt time.Time
}

// ActivityStore persists the membership log of each room.
type ActivityStore interface {
	AppendActivity(ctx context.Context, entry ActivityEntry) error
	// ListActivity returns up to limit of the most recent entries for room,
	// newest first.
	ListActivity(ctx context.Context, room string, limit int) ([]ActivityEntry, error)
}
