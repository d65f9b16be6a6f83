package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/aisouls/backend/internal/model/persona"
)

// DefaultTurnLimit is the number of user messages after which a soul
// returns to rest.
const DefaultTurnLimit = 8

var (
	ErrEmptyInput     = errors.New("message content is empty")
	ErrAlreadyStarted = errors.New("conversation already started")
	ErrNotStarted     = errors.New("conversation not started")
	ErrNoPersona      = errors.New("no persona selected")

	// ErrTurnLimitReached means the last allowed message is still waiting
	// for an answer and must be retried before anything else is sent.
	ErrTurnLimitReached = errors.New("turn limit reached, retry the pending message")
)

// Session is one user's conversation with a single persona. It is a plain
// value with no locking; callers that share it across goroutines must
// serialise access themselves.
type Session struct {
	ID        string
	TurnLimit int
	CreatedAt time.Time
	UpdatedAt time.Time

	persona *persona.Definition
	started bool
	turns   []Turn
}

// NewSession returns an un-started session with no persona selected.
func NewSession(id string, turnLimit int) *Session {
	if turnLimit <= 0 {
		turnLimit = DefaultTurnLimit
	}
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		TurnLimit: turnLimit,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Persona returns the active persona, if any.
func (s *Session) Persona() (persona.Definition, bool) {
	if s.persona == nil {
		return persona.Definition{}, false
	}
	return *s.persona, true
}

// Started reports whether the greeting has been issued.
func (s *Session) Started() bool {
	return s.started
}

// Turns returns a copy of the conversation so far.
func (s *Session) Turns() []Turn {
	return append([]Turn(nil), s.turns...)
}

// SelectPersona activates def. Personas never share history: switching to a
// different persona drops the conversation. It reports whether a reset
// happened.
func (s *Session) SelectPersona(def persona.Definition) bool {
	if s.persona != nil && s.persona.Name == def.Name {
		return false
	}
	hadConversation := s.started || len(s.turns) > 0
	s.Reset()
	s.persona = &def
	return hadConversation
}

// Start opens the conversation with the persona's greeting.
func (s *Session) Start() error {
	if s.started {
		return ErrAlreadyStarted
	}
	if s.persona == nil {
		return ErrNoPersona
	}
	s.started = true
	s.turns = []Turn{newTurn(RoleAssistant, s.persona.Greeting)}
	s.touch()
	return nil
}

// RecordUserTurn appends a user message and returns the number of user
// turns in the conversation. Blank input is rejected without touching state.
func (s *Session) RecordUserTurn(content string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, ErrEmptyInput
	}
	if !s.started {
		return 0, ErrNotStarted
	}
	if s.ShouldReset() {
		return 0, ErrTurnLimitReached
	}
	s.turns = append(s.turns, newTurn(RoleUser, content))
	s.touch()
	return s.UserTurnCount(), nil
}

// RecordAssistantTurn appends a completion result. Empty content is kept
// as-is.
func (s *Session) RecordAssistantTurn(content string) error {
	if !s.started {
		return ErrNotStarted
	}
	s.turns = append(s.turns, newTurn(RoleAssistant, content))
	s.touch()
	return nil
}

// UserTurnCount counts user-role turns.
func (s *Session) UserTurnCount() int {
	n := 0
	for _, t := range s.turns {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

// ShouldReset reports whether the user has used up the turn budget.
func (s *Session) ShouldReset() bool {
	return s.UserTurnCount() >= s.TurnLimit
}

// Reset clears the conversation but keeps the active persona.
func (s *Session) Reset() {
	s.started = false
	s.turns = nil
	s.touch()
}

// PendingUserTurn returns the last turn when it is a user message that has
// not been answered yet.
func (s *Session) PendingUserTurn() (Turn, bool) {
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	last := s.turns[len(s.turns)-1]
	if last.Role != RoleUser {
		return Turn{}, false
	}
	return last, true
}

// Snapshot is the JSON view of a session handed to clients.
type Snapshot struct {
	ID             string    `json:"id"`
	Persona        string    `json:"persona,omitempty"`
	PersonaID      string    `json:"personaId,omitempty"`
	Started        bool      `json:"started"`
	Turns          []Turn    `json:"turns"`
	UserTurns      int       `json:"userTurns"`
	RemainingTurns int       `json:"remainingTurns"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Snapshot copies the session into its client representation.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.ID,
		Started:   s.started,
		Turns:     s.Turns(),
		UserTurns: s.UserTurnCount(),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if snap.Turns == nil {
		snap.Turns = []Turn{}
	}
	if s.persona != nil {
		snap.Persona = s.persona.Name
		snap.PersonaID = s.persona.ID
	}
	if remaining := s.TurnLimit - snap.UserTurns; remaining > 0 {
		snap.RemainingTurns = remaining
	}
	return snap
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func newTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content, CreatedAt: time.Now().UTC()}
}
