package session

import (
	"sync"
	"time"

	"github.com/KirkDiggler/doodle/internal/models"
)

// State is one peer's view of the shared game. It is owned by a single peer
// and handed to each of its components; store callbacks touch it from
// several goroutines.
type State struct {
	mu sync.RWMutex

	localUserID   string
	localUsername string

	session models.Session

	players map[string]models.Player
	order   []string
}

// New creates the state for the local user
func New(localUserID, localUsername string) *State {
	return &State{
		localUserID:   localUserID,
		localUsername: localUsername,
		players:       make(map[string]models.Player),
	}
}

// LocalUserID returns the local identity
func (s *State) LocalUserID() string {
	return s.localUserID
}

// LocalUsername returns the local display name
func (s *State) LocalUsername() string {
	return s.localUsername
}

// LocalPlayer builds the roster record of the local user
func (s *State) LocalPlayer(joinedAt time.Time) models.Player {
	return models.Player{
		UserID:   s.localUserID,
		Username: s.localUsername,
		JoinedAt: joinedAt,
	}
}

// IsLocalUserDrawing is true iff the current drawer is the local user
func (s *State) IsLocalUserDrawing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.CurrentDrawer != "" && s.session.CurrentDrawer == s.localUserID
}

// CurrentDrawer returns the drawing user ID, empty before the first round
func (s *State) CurrentDrawer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.CurrentDrawer
}

// CurrentWord returns the word being drawn
func (s *State) CurrentWord() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.CurrentWord
}

// Session returns a copy of the last accepted session record
func (s *State) Session() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// ApplySession accepts a record only if it is newer than the one held
func (s *State) ApplySession(in models.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.Version <= s.session.Version {
		return false
	}
	s.session = in
	return true
}

// AddPlayer records a player the first time it is seen
func (s *State) AddPlayer(p models.Player) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[p.UserID]; ok {
		return false
	}
	s.players[p.UserID] = p
	s.order = append(s.order, p.UserID)
	return true
}

// Player looks up a known player
func (s *State) Player(userID string) (models.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[userID]
	return p, ok
}

// Players returns the known players in local join order
func (s *State) Players() []models.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Player, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.players[id])
	}
	return out
}

// PlayerIDs returns the known player IDs in local join order
func (s *State) PlayerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Snapshot is a consistent read of the whole state
type Snapshot struct {
	LocalUserID   string
	LocalUsername string
	Session       models.Session
	Players       []models.Player
}

// Snapshot returns the session and roster read under one lock
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]models.Player, 0, len(s.order))
	for _, id := range s.order {
		players = append(players, s.players[id])
	}

	return Snapshot{
		LocalUserID:   s.localUserID,
		LocalUsername: s.localUsername,
		Session:       s.session,
		Players:       players,
	}
}

// Drawing reports whether the snapshot's local user is the drawer
func (s Snapshot) Drawing() bool {
	return s.Session.CurrentDrawer != "" && s.Session.CurrentDrawer == s.LocalUserID
}

// DrawerName resolves the drawer's username, falling back to its ID
func (s Snapshot) DrawerName() string {
	for _, p := range s.Players {
		if p.UserID == s.Session.CurrentDrawer {
			return p.Username
		}
	}
	return s.Session.CurrentDrawer
}
