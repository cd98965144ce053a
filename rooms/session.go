/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package rooms

import "sync"

type State int

const (
	StateConnected State = iota
	StateInRoom
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session drives a single connection through the room lifecycle.
type Session struct {
	reg *Registry
	p   Participant

	mu    sync.Mutex
	state State
}

func NewSession(reg *Registry, p Participant) *Session {
	return &Session{
		reg:   reg,
		p:     p,
		state: StateConnected,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Handle applies one inbound client message. Join failures are reported to
// this client only and leave the session usable.
func (s *Session) Handle(msg ClientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return
	}

	switch msg.Event {
	case EventCreateRoom:
		if _, err := s.reg.Create(s.p); err != nil {
			s.p.Send(roomError(err))

			return
		}
		s.state = StateInRoom

	case EventJoinRoom:
		if err := s.reg.Join(msg.Code, s.p); err != nil {
			s.p.Send(roomError(err))

			return
		}
		s.state = StateInRoom

	case EventLeaveRoom:
		s.reg.Leave(msg.Code, s.p)
		if _, seated := s.reg.RoomOf(s.p.ID()); !seated {
			s.state = StateConnected
		}

	case EventPlayerMovement:
		if msg.Data == nil {
			return
		}
		s.reg.Relay(s.p, *msg.Data)

	default:
		// ignore unknown events
	}
}

// Close marks the session as disconnected and releases its seat, if any.
// Only the first call has an effect.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return
	}

	if s.state == StateInRoom {
		s.reg.RemoveEverywhere(s.p)
	}

	s.state = StateDisconnected
}
