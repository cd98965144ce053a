/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package rooms pairs connected players into two-seat rooms and relays
// movement between the occupants of a room.
//
// Every mutation runs to completion under a single registry lock, so two
// joins racing for the last seat can never both be admitted. Notifications
// are queued with non-blocking sends while the lock is held; a participant
// whose queue is full simply misses the event.
package rooms

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Capacity is the number of seats in a room.
const Capacity = 2

// Participant is a live connection occupying at most one room seat.
type Participant interface {
	ID() string
	// Send queues ev for delivery without blocking and reports whether it
	// was accepted.
	Send(ev Event) bool
}

type Room struct {
	code      string
	members   []Participant
	createdAt time.Time
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
	Waiting      int `json:"waiting"`
	Playing      int `json:"playing"`
}

type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room  // code -> room
	members map[string]string // participant ID -> code

	codes CodeGenerator
	log   zerolog.Logger
}

type Option func(*Registry)

func WithCodeGenerator(gen CodeGenerator) Option {
	return func(r *Registry) {
		r.codes = gen
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:   make(map[string]*Room),
		members: make(map[string]string),
		codes:   RandomCode,
		log:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Create opens a new room with p as its only occupant and returns its code.
// If p already holds a seat elsewhere, that seat is released first.
func (r *Registry) Create(p Participant) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.freeCodeLocked()
	if err != nil {
		r.log.Error().Err(err).Str("participant", p.ID()).Msg("room code allocation failed")

		return "", err
	}

	if prev, ok := r.members[p.ID()]; ok {
		r.leaveLocked(prev, p)
	}

	room := &Room{
		code:      code,
		members:   []Participant{p},
		createdAt: time.Now(),
	}
	r.rooms[code] = room
	r.members[p.ID()] = code

	r.log.Info().Str("code", code).Str("participant", p.ID()).Msg("room created")

	p.Send(roomCreated(code))
	r.broadcastStatusLocked(room)

	return code, nil
}

// Join seats p in the room identified by code.
func (r *Registry) Join(code string, p Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		r.log.Debug().Str("code", code).Str("participant", p.ID()).Msg("join rejected: room not found")

		return ErrRoomNotFound
	}

	if r.members[p.ID()] == code {
		return ErrAlreadyInRoom
	}

	if len(room.members) >= Capacity {
		r.log.Debug().Str("code", code).Str("participant", p.ID()).Msg("join rejected: room full")

		return ErrRoomFull
	}

	if prev, ok := r.members[p.ID()]; ok {
		r.leaveLocked(prev, p)
	}

	room.members = append(room.members, p)
	r.members[p.ID()] = code

	r.log.Info().Str("code", code).Str("participant", p.ID()).Int("count", len(room.members)).Msg("room joined")

	p.Send(roomJoined(code))
	r.broadcastStatusLocked(room)

	return nil
}

// Leave removes p from the room identified by code, reporting whether p was
// actually seated there.
func (r *Registry) Leave(code string, p Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(code, p)
}

// RemoveEverywhere releases whatever seat p holds. Disconnecting clients do
// not say which room they were in, so the reverse index answers that.
func (r *Registry) RemoveEverywhere(p Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.members[p.ID()]
	if !ok {
		return false
	}

	return r.leaveLocked(code, p)
}

// Relay forwards m unchanged to every other occupant of the sender's room
// and returns how many occupants accepted it. A sender without a seat is
// ignored.
func (r *Registry) Relay(sender Participant, m Movement) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.members[sender.ID()]
	if !ok {
		return 0
	}

	room := r.rooms[code]
	ev := playerMovement(m)

	delivered := 0
	for _, member := range room.members {
		if member.ID() == sender.ID() {
			continue
		}
		if member.Send(ev) {
			delivered++
		}
	}

	return delivered
}

// RoomOf returns the code of the room the participant id is seated in.
func (r *Registry) RoomOf(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.members[id]

	return code, ok
}

// Members returns the participant IDs of a room in seating order.
func (r *Registry) Members(code string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(room.members))
	for _, m := range room.members {
		ids = append(ids, m.ID())
	}

	return ids
}

// Count returns the number of occupants of a room, or 0 if it does not exist.
func (r *Registry) Count(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[code]; ok {
		return len(room.members)
	}

	return 0
}

func (r *Registry) Exists(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.rooms[code]

	return ok
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rooms)
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Rooms:        len(r.rooms),
		Participants: len(r.members),
	}
	for _, room := range r.rooms {
		if len(room.members) == Capacity {
			s.Playing++
		} else {
			s.Waiting++
		}
	}

	return s
}

// freeCodeLocked assumes r.mu is held.
func (r *Registry) freeCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := r.codes()
		if err != nil {
			return "", err
		}
		if _, taken := r.rooms[code]; !taken {
			return code, nil
		}
	}

	return "", ErrCodeSpaceExhausted
}

// leaveLocked assumes r.mu is held.
func (r *Registry) leaveLocked(code string, p Participant) bool {
	room, ok := r.rooms[code]
	if !ok {
		return false
	}

	idx := slices.IndexFunc(room.members, func(m Participant) bool {
		return m.ID() == p.ID()
	})
	if idx < 0 {
		return false
	}

	room.members = slices.Delete(room.members, idx, idx+1)
	delete(r.members, p.ID())

	r.log.Info().Str("code", code).Str("participant", p.ID()).Int("count", len(room.members)).Msg("room left")

	if len(room.members) == 0 {
		delete(r.rooms, code)
		r.log.Info().Str("code", code).Dur("age", time.Since(room.createdAt)).Msg("room deleted")

		return true
	}

	r.broadcastStatusLocked(room)

	return true
}

// broadcastStatusLocked tells every occupant the new head count, followed by
// the start signal when the room has just filled. Every path that reaches a
// full room adds exactly one member, so startGame goes out once per fill.
func (r *Registry) broadcastStatusLocked(room *Room) {
	status := updateRoom(len(room.members))
	for _, m := range room.members {
		m.Send(status)
	}

	if len(room.members) != Capacity {
		return
	}

	r.log.Info().Str("code", room.code).Msg("game starting")

	start := startGame()
	for _, m := range room.members {
		m.Send(start)
	}
}
