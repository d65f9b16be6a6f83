package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aisouls/backend/internal/config"
	"github.com/aisouls/backend/internal/model/chat"
	"github.com/aisouls/backend/internal/model/persona"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session is waiting for a reply")
	ErrNothingToRetry  = errors.New("no unanswered message to retry")
	ErrPersonaRequired = errors.New("persona is required")
)

// Assembler builds the model prompt for a session.
type Assembler interface {
	Build(ctx context.Context, session *chat.Session) ([]*schema.Message, error)
}

// Completer is the text-generation boundary.
type Completer interface {
	Complete(ctx context.Context, messages []*schema.Message, temperature float64, maxTokens int) (string, error)
}

// Options tunes conversation behaviour.
type Options struct {
	TurnLimit      int
	ResetPolicy    config.ResetPolicy
	DefaultPersona string
}

// Reply is the outcome of one user message.
type Reply struct {
	// Content is empty when the message was consumed by a reset.
	Content  string        `json:"content"`
	Answered bool          `json:"answered"`
	Reset    bool          `json:"reset"`
	Session  chat.Snapshot `json:"session"`
}

type entry struct {
	mu      sync.Mutex
	busy    bool
	session *chat.Session
}

// Service keeps one isolated conversation per session id in memory and runs
// the record → assemble → complete cycle for each message.
type Service struct {
	personas  persona.Store
	assembler Assembler
	completer Completer
	opts      Options

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewService bootstraps the in-memory chat service.
func NewService(personas persona.Store, assembler Assembler, completer Completer, opts Options) *Service {
	if opts.TurnLimit <= 0 {
		opts.TurnLimit = chat.DefaultTurnLimit
	}
	if opts.ResetPolicy == "" {
		opts.ResetPolicy = config.ResetDiscard
	}
	return &Service{
		personas:  personas,
		assembler: assembler,
		completer: completer,
		opts:      opts,
		sessions:  make(map[string]*entry),
	}
}

// Personas exposes the registry the service resolves persona keys against.
func (s *Service) Personas() persona.Store {
	return s.personas
}

// CreateSession provisions an anonymous session. An empty key selects the
// default persona.
func (s *Service) CreateSession(ctx context.Context, personaKey string) (chat.Snapshot, error) {
	def, err := s.resolvePersona(personaKey)
	if err != nil {
		return chat.Snapshot{}, err
	}

	session := chat.NewSession(uuid.NewString(), s.opts.TurnLimit)
	session.SelectPersona(def)

	s.mu.Lock()
	s.sessions[session.ID] = &entry{session: session}
	s.mu.Unlock()

	log.Ctx(ctx).Info().Str("session", session.ID).Str("persona", def.Name).Msg("session created")
	return session.Snapshot(), nil
}

// GetSession returns the current state of a session.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Snapshot, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return chat.Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Snapshot(), nil
}

// DeleteSession drops a session.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// SelectPersona switches the session's persona, dropping the conversation
// when it changes. Unlike CreateSession there is no default persona.
func (s *Service) SelectPersona(ctx context.Context, sessionID, personaKey string) (chat.Snapshot, error) {
	if strings.TrimSpace(personaKey) == "" {
		return chat.Snapshot{}, ErrPersonaRequired
	}
	def, err := s.resolvePersona(personaKey)
	if err != nil {
		return chat.Snapshot{}, err
	}

	var snap chat.Snapshot
	err = s.withSession(sessionID, func(session *chat.Session) error {
		if session.SelectPersona(def) {
			log.Ctx(ctx).Info().Str("session", sessionID).Str("persona", def.Name).Msg("persona switched, conversation cleared")
		}
		snap = session.Snapshot()
		return nil
	})
	return snap, err
}

// StartSession issues the persona's greeting.
func (s *Service) StartSession(_ context.Context, sessionID string) (chat.Snapshot, error) {
	var snap chat.Snapshot
	err := s.withSession(sessionID, func(session *chat.Session) error {
		if err := session.Start(); err != nil {
			return err
		}
		snap = session.Snapshot()
		return nil
	})
	return snap, err
}

// SendMessage records a user message and, unless the turn budget is used up,
// answers it. With the discard policy the message that reaches the limit
// resets the conversation without a reply; with the answer policy it is
// answered first. A failed completion leaves the user turn recorded and no
// reply appended, so Retry can be used.
func (s *Service) SendMessage(ctx context.Context, sessionID, content string) (Reply, error) {
	e, err := s.acquire(sessionID)
	if err != nil {
		return Reply{}, err
	}
	defer s.release(e)

	var (
		count int
		reset bool
		snap  chat.Snapshot
	)
	e.mu.Lock()
	count, err = e.session.RecordUserTurn(content)
	if err == nil && e.session.ShouldReset() && s.opts.ResetPolicy == config.ResetDiscard {
		e.session.Reset()
		reset = true
		snap = e.session.Snapshot()
	}
	e.mu.Unlock()
	if err != nil {
		return Reply{}, err
	}

	if reset {
		log.Ctx(ctx).Info().Str("session", sessionID).Int("userTurns", count).Msg("turn limit reached, conversation reset")
		return Reply{Reset: true, Session: snap}, nil
	}
	return s.answer(ctx, e)
}

// Retry answers the last user message again after a failed completion.
func (s *Service) Retry(ctx context.Context, sessionID string) (Reply, error) {
	e, err := s.acquire(sessionID)
	if err != nil {
		return Reply{}, err
	}
	defer s.release(e)

	e.mu.Lock()
	_, pending := e.session.PendingUserTurn()
	e.mu.Unlock()
	if !pending {
		return Reply{}, ErrNothingToRetry
	}
	return s.answer(ctx, e)
}

// Sweep evicts sessions idle for longer than ttl and returns how many were
// removed. Sessions with a request in flight are kept.
func (s *Service) Sweep(ctx context.Context, ttl time.Duration) int {
	cutoff := time.Now().UTC().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		e.mu.Lock()
		expired := !e.busy && e.session.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		log.Ctx(ctx).Debug().Int("removed", removed).Msg("idle sessions evicted")
	}
	return removed
}

// Len reports the number of live sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// answer assembles the prompt, calls the model without holding the entry
// lock and appends the reply. The session is left untouched on failure.
func (s *Service) answer(ctx context.Context, e *entry) (Reply, error) {
	e.mu.Lock()
	def, ok := e.session.Persona()
	if !ok {
		e.mu.Unlock()
		return Reply{}, chat.ErrNoPersona
	}
	messages, err := s.assembler.Build(ctx, e.session)
	e.mu.Unlock()
	if err != nil {
		return Reply{}, err
	}

	content, err := s.completer.Complete(ctx, messages, def.Temperature, def.MaxTokens)
	if err != nil {
		return Reply{}, fmt.Errorf("generate reply as %s: %w", def.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.session.RecordAssistantTurn(content); err != nil {
		return Reply{}, err
	}

	reply := Reply{Content: content, Answered: true}
	if e.session.ShouldReset() {
		e.session.Reset()
		reply.Reset = true
		log.Ctx(ctx).Info().Str("session", e.session.ID).Msg("turn limit reached after reply, conversation reset")
	}
	reply.Session = e.session.Snapshot()
	return reply, nil
}

func (s *Service) resolvePersona(key string) (persona.Definition, error) {
	if key == "" {
		key = s.opts.DefaultPersona
	}
	if key == "" {
		names := s.personas.List()
		if len(names) == 0 {
			return persona.Definition{}, persona.ErrUnknownPersona
		}
		key = names[0]
	}
	def, ok := s.personas.Find(key)
	if !ok {
		return persona.Definition{}, fmt.Errorf("%w: %q", persona.ErrUnknownPersona, key)
	}
	return def, nil
}

func (s *Service) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// withSession runs a state change under the entry lock. It fails fast while a
// reply is being generated so changes cannot interleave with a completion.
func (s *Service) withSession(sessionID string, fn func(*chat.Session) error) error {
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrSessionBusy
	}
	return fn(e.session)
}

// acquire marks the entry busy for the duration of a completion.
func (s *Service) acquire(sessionID string) (*entry, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return nil, ErrSessionBusy
	}
	e.busy = true
	return e, nil
}

func (s *Service) release(e *entry) {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}
