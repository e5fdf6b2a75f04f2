package room

import (
	"errors"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"pong-match-system/game"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session already started")
	ErrNotInvited      = errors.New("not a participant of this session")
)

type Phase int

const (
	Pending Phase = iota
	Active
	Finished
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Active:
		return "active"
	}
	return "finished"
}

// JoinOutcome describes what a successful Join did.
type JoinOutcome int

const (
	JoinedPending JoinOutcome = iota
	AlreadyJoined
	Activated
)

type entry struct {
	phase     Phase
	invited   []int64
	seats     [2]*Participant
	createdAt time.Time
	session   *Session
}

func (e *entry) seatOf(userID int64) (game.Side, bool) {
	for side := game.Left; side <= game.Right; side++ {
		if p := e.seats[side]; p != nil && p.UserID == userID {
			return side, true
		}
	}
	return game.Left, false
}

func (e *entry) seated() int {
	n := 0
	for _, p := range e.seats {
		if p != nil {
			n++
		}
	}
	return n
}

// Registry holds pending and active sessions. It is not safe for concurrent
// use; the lobby goroutine is its only caller.
type Registry struct {
	rooms map[string]*entry
	rng   *rand.Rand
	now   func() time.Time
	newID func() string
}

func NewRegistry(rng *rand.Rand) *Registry {
	return &Registry{
		rooms: make(map[string]*entry),
		rng:   rng,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// CreatePending stores a new pending session and returns its id. When invited
// is non-empty only those users may join.
func (r *Registry) CreatePending(invited ...int64) string {
	id := r.newID()
	for {
		if _, exists := r.rooms[id]; !exists {
			break
		}
		id = r.newID()
	}
	r.rooms[id] = &entry{
		phase:     Pending,
		invited:   slices.Clone(invited),
		createdAt: r.now(),
	}
	return id
}

// Join seats p. The first participant gets a random side; the second fills the
// remaining one and the session becomes active.
func (r *Registry) Join(id string, p Participant) (JoinOutcome, error) {
	e, ok := r.rooms[id]
	if !ok {
		return 0, ErrSessionNotFound
	}
	if _, seated := e.seatOf(p.UserID); seated {
		return AlreadyJoined, nil
	}
	if e.phase != Pending {
		return 0, ErrSessionFull
	}
	if len(e.invited) > 0 && !slices.Contains(e.invited, p.UserID) {
		return 0, ErrNotInvited
	}

	seat := p
	if e.seated() == 0 {
		side := game.Left
		if r.rng.IntN(2) == 1 {
			side = game.Right
		}
		e.seats[side] = &seat
		return JoinedPending, nil
	}

	for side := game.Left; side <= game.Right; side++ {
		if e.seats[side] == nil {
			e.seats[side] = &seat
			break
		}
	}
	e.phase = Active
	return Activated, nil
}

func (r *Registry) Exists(id string) bool {
	_, ok := r.rooms[id]
	return ok
}

func (r *Registry) Phase(id string) (Phase, bool) {
	e, ok := r.rooms[id]
	if !ok {
		return Finished, false
	}
	return e.phase, true
}

// IsSeated reports whether userID already joined session id.
func (r *Registry) IsSeated(id string, userID int64) bool {
	e, ok := r.rooms[id]
	if !ok {
		return false
	}
	_, seated := e.seatOf(userID)
	return seated
}

func (r *Registry) SeatOf(id string, userID int64) (game.Side, bool) {
	e, ok := r.rooms[id]
	if !ok {
		return game.Left, false
	}
	return e.seatOf(userID)
}

// Participants returns the seated participants indexed by side. Empty seats are zero values.
func (r *Registry) Participants(id string) ([2]Participant, bool) {
	var out [2]Participant
	e, ok := r.rooms[id]
	if !ok {
		return out, false
	}
	for side, p := range e.seats {
		if p != nil {
			out[side] = *p
		}
	}
	return out, true
}

// Attach records the running worker of an active session.
func (r *Registry) Attach(id string, s *Session) {
	if e, ok := r.rooms[id]; ok {
		e.session = s
	}
}

func (r *Registry) Session(id string) (*Session, bool) {
	e, ok := r.rooms[id]
	if !ok || e.session == nil {
		return nil, false
	}
	return e.session, true
}

// Dispose removes the session. Disposing an unknown id is a no-op.
func (r *Registry) Dispose(id string) {
	if e, ok := r.rooms[id]; ok {
		e.phase = Finished
		delete(r.rooms, id)
	}
}

// PendingInvolving lists pending sessions where userID is seated or invited.
func (r *Registry) PendingInvolving(userID int64) []string {
	var ids []string
	for id, e := range r.rooms {
		if e.phase != Pending {
			continue
		}
		if _, seated := e.seatOf(userID); seated || slices.Contains(e.invited, userID) {
			ids = append(ids, id)
		}
	}
	return ids
}

// PendingOlderThan lists pending sessions created more than ttl ago.
func (r *Registry) PendingOlderThan(ttl time.Duration) []string {
	cutoff := r.now().Add(-ttl)
	var ids []string
	for id, e := range r.rooms {
		if e.phase == Pending && e.createdAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) Counts() (pending, active int) {
	for _, e := range r.rooms {
		switch e.phase {
		case Pending:
			pending++
		case Active:
			active++
		}
	}
	return pending, active
}
