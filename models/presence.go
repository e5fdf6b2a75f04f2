package models

// PresenceState is a user's current lifecycle stage.
type PresenceState string

const (
	StateOffline      PresenceState = "offline"
	StateInLobby      PresenceState = "in_lobby"
	StateQueued       PresenceState = "queued"
	StatePlaying      PresenceState = "playing"
	StateDisconnected PresenceState = "disconnected"

	// StateUnknown is returned for identities the store has never seen.
	// Callers treat it as offline.
	StateUnknown PresenceState = ""
)

func (s PresenceState) Valid() bool {
	switch s {
	case StateOffline, StateInLobby, StateQueued, StatePlaying, StateDisconnected:
		return true
	}
	return false
}

// Effective folds StateUnknown into StateOffline.
func (s PresenceState) Effective() PresenceState {
	if s == StateUnknown {
		return StateOffline
	}
	return s
}

// legalTransitions lists every allowed from → to move except "→ offline",
// which is always allowed.
var legalTransitions = map[PresenceState][]PresenceState{
	StateOffline: {StateInLobby},
	StateInLobby: {StateQueued, StatePlaying},
	StateQueued:  {StateInLobby},
	StatePlaying: {StateInLobby},
}

// CanTransition reports whether moving from s to next is a legal presence transition.
func (s PresenceState) CanTransition(next PresenceState) bool {
	if !next.Valid() {
		return false
	}
	if next == StateOffline {
		return true
	}
	for _, allowed := range legalTransitions[s.Effective()] {
		if allowed == next {
			return true
		}
	}
	return false
}
