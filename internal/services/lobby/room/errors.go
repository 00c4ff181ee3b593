package room

import (
	"fmt"

	apperrors "github.com/louisbranch/lobby/internal/platform/errors"
)

// Sentinels for errors.Is; returned errors carry room/user metadata and
// match these by code.
var (
	ErrInvalidArgument     = apperrors.New(apperrors.CodeInvalidArgument, "invalid argument")
	ErrDuplicateConnection = apperrors.New(apperrors.CodeDuplicateConnection, "connection already bound to a room member")
	ErrUsernameTaken       = apperrors.New(apperrors.CodeUsernameTaken, "username already in room")
	ErrRoomExpired         = apperrors.New(apperrors.CodeRoomExpired, "room expired")
)

func invalidArgument(field string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidArgument, field+" is required", map[string]string{
		"field": field,
	})
}

func duplicateConnection(connectionID string, bound binding) error {
	return apperrors.WithMetadata(apperrors.CodeDuplicateConnection,
		fmt.Sprintf("connection already joined room %q as %q", bound.room, bound.username),
		map[string]string{
			"connection_id": connectionID,
			"room":          bound.room,
			"username":      bound.username,
		})
}

func usernameTaken(roomName string, username string) error {
	return apperrors.WithMetadata(apperrors.CodeUsernameTaken,
		fmt.Sprintf("username %q already in room %q", username, roomName),
		map[string]string{
			"room":     roomName,
			"username": username,
		})
}

func roomExpired(roomName string) error {
	return apperrors.WithMetadata(apperrors.CodeRoomExpired,
		fmt.Sprintf("room %q expired and is being evacuated", roomName),
		map[string]string{
			"room": roomName,
		})
}
