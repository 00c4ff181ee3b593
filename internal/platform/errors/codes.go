// Package errors provides the structured error type shared by lobby packages.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Input errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Registry errors
	CodeRoomNotFound        Code = "ROOM_NOT_FOUND"
	CodeUserNotFound        Code = "USER_NOT_FOUND"
	CodeDuplicateConnection Code = "DUPLICATE_CONNECTION"
	CodeUsernameTaken       Code = "USERNAME_TAKEN"
	CodeRoomExpired         Code = "ROOM_EXPIRED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidArgument:
		return codes.InvalidArgument
	case CodeRoomExpired:
		return codes.FailedPrecondition
	case CodeRoomNotFound, CodeUserNotFound:
		return codes.NotFound
	case CodeDuplicateConnection, CodeUsernameTaken:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

// FrameCode maps domain codes to the error codes carried by WebSocket
// error frames. The vocabulary mirrors gRPC status names.
func (c Code) FrameCode() string {
	switch c.GRPCCode() {
	case codes.InvalidArgument:
		return "INVALID_ARGUMENT"
	case codes.FailedPrecondition:
		return "FAILED_PRECONDITION"
	case codes.NotFound:
		return "NOT_FOUND"
	case codes.AlreadyExists:
		return "ALREADY_EXISTS"
	default:
		return "INTERNAL"
	}
}
