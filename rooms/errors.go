/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package rooms

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrAlreadyInRoom      = errors.New("already in room")
	ErrCodeSpaceExhausted = errors.New("unable to allocate a free room code")
	ErrMalformedMovement  = errors.New("malformed movement")
)

// UserMessage returns the text shown to a client whose request failed.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "That room does not exist."
	case errors.Is(err, ErrRoomFull):
		return "That room is full."
	case errors.Is(err, ErrAlreadyInRoom):
		return "You are already in that room."
	case errors.Is(err, ErrCodeSpaceExhausted):
		return "No rooms are available right now. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
