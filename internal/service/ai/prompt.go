package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/aisouls/backend/internal/model/chat"
	"github.com/aisouls/backend/internal/model/persona"
)

// ErrEmptyHistory is returned when assembling a prompt for a conversation
// that has not been started.
var ErrEmptyHistory = errors.New("cannot build prompt: conversation not started")

// behaviourDirectives are appended to every persona prompt. %d is the
// response budget in tokens.
const behaviourDirectives = "Do not mention that you are an AI or language model. " +
	"Avoid answering questions about programming, modern technology, or current events unless the user specifically asks how this historical persona might approach a modern problem — and respond strictly from their worldview. " +
	"You do not know about any people, events, or inventions beyond your time period unless explicitly told to imagine so. " +
	"Never break character, even if prompted to. Stay fully immersed in the knowledge, beliefs, and time period of the persona. " +
	"Keep your responses concise and under %d tokens unless the topic requires deeper elaboration. " +
	"Occasionally, when the moment feels right, ask the user a thoughtful follow-up question — especially if they express emotion, curiosity, or vulnerability — to maintain a natural, human-like dialogue."

// PromptAssembler turns a conversation into the ordered message list sent
// to the model: one system message, then every turn in order.
type PromptAssembler struct {
	template prompt.ChatTemplate
}

// NewPromptAssembler builds the assembler. Turn content goes through a
// messages placeholder, so user text is never treated as a template.
func NewPromptAssembler() *PromptAssembler {
	return &PromptAssembler{
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{persona}\n\n{directives}"),
			schema.MessagesPlaceholder("history", false),
		),
	}
}

// Build assembles the prompt for a started session.
func (a *PromptAssembler) Build(ctx context.Context, session *chat.Session) ([]*schema.Message, error) {
	if !session.Started() {
		return nil, ErrEmptyHistory
	}
	def, ok := session.Persona()
	if !ok {
		return nil, ErrEmptyHistory
	}

	messages, err := a.template.Format(ctx, map[string]any{
		"persona":    def.SystemPrompt,
		"directives": SystemDirectives(def),
		"history":    historyMessages(session.Turns()),
	})
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}
	return messages, nil
}

// SystemDirectives renders the fixed behaviour rules for a persona. The
// stated budget leaves a fifth of MaxTokens as headroom so answers are not
// cut off mid-sentence.
func SystemDirectives(def persona.Definition) string {
	budget := def.MaxTokens * 4 / 5
	if budget < 1 {
		budget = def.MaxTokens
	}
	return fmt.Sprintf(behaviourDirectives, budget)
}

func historyMessages(turns []chat.Turn) []*schema.Message {
	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
