package ai

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisouls/backend/internal/model/chat"
	"github.com/aisouls/backend/internal/model/persona"
)

func seededSession(t *testing.T, name string) *chat.Session {
	t.Helper()
	def, err := persona.NewRegistry(persona.Seed()).Get(name)
	require.NoError(t, err)

	s := chat.NewSession("s-1", chat.DefaultTurnLimit)
	s.SelectPersona(def)
	return s
}

func TestBuildRejectsUnstartedSession(t *testing.T) {
	s := seededSession(t, "Albert Einstein")

	_, err := NewPromptAssembler().Build(context.Background(), s)
	assert.ErrorIs(t, err, ErrEmptyHistory)
}

func TestBuildEinsteinScenario(t *testing.T) {
	s := seededSession(t, "Albert Einstein")
	require.NoError(t, s.Start())
	count, err := s.RecordUserTurn("What is light?")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	messages, err := NewPromptAssembler().Build(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	def, _ := s.Persona()
	assert.Equal(t, schema.System, messages[0].Role)
	assert.Contains(t, messages[0].Content, def.SystemPrompt)
	assert.Contains(t, messages[0].Content, "Never break character")
	assert.Contains(t, messages[0].Content, "under 200 tokens")
	assert.Contains(t, messages[0].Content, "follow-up question")
	assert.Contains(t, messages[0].Content, "beyond your time period")

	assert.Equal(t, schema.Assistant, messages[1].Role)
	assert.Equal(t, def.Greeting, messages[1].Content)
	assert.Equal(t, schema.User, messages[2].Role)
	assert.Equal(t, "What is light?", messages[2].Content)
}

func TestBuildKeepsTurnOrder(t *testing.T) {
	s := seededSession(t, "Nikola Tesla")
	require.NoError(t, s.Start())
	for i := 0; i < 4; i++ {
		_, err := s.RecordUserTurn(fmt.Sprintf("user %d", i))
		require.NoError(t, err)
		require.NoError(t, s.RecordAssistantTurn(fmt.Sprintf("assistant %d", i)))
	}

	messages, err := NewPromptAssembler().Build(context.Background(), s)
	require.NoError(t, err)

	turns := s.Turns()
	require.Len(t, messages, len(turns)+1)
	for i, turn := range turns {
		assert.Equal(t, string(turn.Role), string(messages[i+1].Role))
		assert.Equal(t, turn.Content, messages[i+1].Content)
	}
}

func TestBuildDoesNotInterpretUserBraces(t *testing.T) {
	s := seededSession(t, "Leonardo da Vinci")
	require.NoError(t, s.Start())
	_, err := s.RecordUserTurn("What does {persona} mean in {your} notebooks?")
	require.NoError(t, err)

	messages, err := NewPromptAssembler().Build(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "What does {persona} mean in {your} notebooks?", messages[2].Content)
}

func TestSystemDirectivesBudget(t *testing.T) {
	assert.Contains(t, SystemDirectives(persona.Definition{MaxTokens: 200}), "under 160 tokens")
	assert.Contains(t, SystemDirectives(persona.Definition{MaxTokens: 1}), "under 1 tokens")

	registry := persona.NewRegistry(persona.Seed())
	for name, want := range map[string]string{
		"Adolf Hitler":    "under 160 tokens",
		"Albert Einstein": "under 200 tokens",
	} {
		def, err := registry.Get(name)
		require.NoError(t, err)
		assert.Contains(t, SystemDirectives(def), want, name)
	}
}
