/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package rooms

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Event names shared by both directions of the socket.
const (
	EventCreateRoom     = "createRoom"
	EventRoomCreated    = "roomCreated"
	EventJoinRoom       = "joinRoom"
	EventRoomJoined     = "roomJoined"
	EventRoomError      = "roomError"
	EventUpdateRoom     = "updateRoom"
	EventStartGame      = "startGame"
	EventLeaveRoom      = "leaveRoom"
	EventPlayerMovement = "playerMovement"
)

// Movement is the per-frame state a client publishes to its peer.
type Movement struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Angle  float64 `json:"angle"`
	Attack bool    `json:"attack"`
}

// UnmarshalJSON accepts only objects carrying exactly x, y, angle and attack.
// A partial or foreign payload fails the whole ClientMessage, so it is never
// relayed as a zero position.
func (m *Movement) UnmarshalJSON(data []byte) error {
	var raw struct {
		X      *float64 `json:"x"`
		Y      *float64 `json:"y"`
		Angle  *float64 `json:"angle"`
		Attack *bool    `json:"attack"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMovement, err)
	}

	if raw.X == nil || raw.Y == nil || raw.Angle == nil || raw.Attack == nil {
		return fmt.Errorf("%w: missing field", ErrMalformedMovement)
	}

	*m = Movement{
		X:      *raw.X,
		Y:      *raw.Y,
		Angle:  *raw.Angle,
		Attack: *raw.Attack,
	}

	return nil
}

// ClientMessage is anything a client sends us.
type ClientMessage struct {
	Event string    `json:"event"`          // "createRoom", "joinRoom", "leaveRoom", "playerMovement"
	Code  string    `json:"code,omitempty"` // joinRoom / leaveRoom
	Data  *Movement `json:"data,omitempty"` // playerMovement
}

// Event is anything we send to a client.
type Event struct {
	Event   string    `json:"event"`
	Code    string    `json:"code,omitempty"`    // roomCreated / roomJoined
	Count   int       `json:"count,omitempty"`   // updateRoom
	Message string    `json:"message,omitempty"` // roomError
	Data    *Movement `json:"data,omitempty"`    // playerMovement
}

func roomCreated(code string) Event {
	return Event{Event: EventRoomCreated, Code: code}
}

func roomJoined(code string) Event {
	return Event{Event: EventRoomJoined, Code: code}
}

func roomError(err error) Event {
	return Event{Event: EventRoomError, Message: UserMessage(err)}
}

func updateRoom(count int) Event {
	return Event{Event: EventUpdateRoom, Count: count}
}

func startGame() Event {
	return Event{Event: EventStartGame}
}

func playerMovement(m Movement) Event {
	return Event{Event: EventPlayerMovement, Data: &m}
}
