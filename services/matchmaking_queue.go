package services

import (
	"time"

	"pong-match-system/room"
)

// QueueEntry is one user waiting for an opponent.
type QueueEntry struct {
	UserID     int64
	Conn       room.Conn
	EnqueuedAt time.Time
}

// MatchmakingQueue is a FIFO of users waiting to be paired, ordered by
// EnqueuedAt with ties broken by arrival. A user appears at most once.
// It is not safe for concurrent use; the lobby goroutine owns it.
type MatchmakingQueue struct {
	entries []QueueEntry
}

func NewMatchmakingQueue() *MatchmakingQueue {
	return &MatchmakingQueue{}
}

// Enqueue adds e at its position by time. It returns false, leaving the queue
// unchanged, when the user is already queued.
func (q *MatchmakingQueue) Enqueue(e QueueEntry) bool {
	if q.Contains(e.UserID) {
		return false
	}
	// Insert after every entry not later than e, so equal times keep arrival order.
	i := len(q.entries)
	for i > 0 && q.entries[i-1].EnqueuedAt.After(e.EnqueuedAt) {
		i--
	}
	q.entries = append(q.entries, QueueEntry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
	return true
}

// DequeuePair removes and returns the two oldest entries, or false when fewer
// than two users are waiting.
func (q *MatchmakingQueue) DequeuePair() ([2]QueueEntry, bool) {
	if len(q.entries) < 2 {
		return [2]QueueEntry{}, false
	}
	pair := [2]QueueEntry{q.entries[0], q.entries[1]}
	q.entries[0], q.entries[1] = QueueEntry{}, QueueEntry{}
	q.entries = q.entries[2:]
	return pair, true
}

// Cancel removes the user's entry and reports whether one was present.
func (q *MatchmakingQueue) Cancel(userID int64) bool {
	for i, e := range q.entries {
		if e.UserID == userID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (q *MatchmakingQueue) Size() int {
	return len(q.entries)
}

func (q *MatchmakingQueue) Contains(userID int64) bool {
	for _, e := range q.entries {
		if e.UserID == userID {
			return true
		}
	}
	return false
}
