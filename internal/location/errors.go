package location

import "errors"

var (
	// ErrRoomNotFound is returned when a room ID does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomExists is returned when creating a room whose ID is taken.
	ErrRoomExists = errors.New("room already exists")

	// ErrInvalidName is returned when a room name is empty or too long.
	ErrInvalidName = errors.New("invalid room name")

	// ErrInvalidID is returned when a room ID has the wrong format.
	ErrInvalidID = errors.New("invalid room id")
)
