package chat

import (
	"errors"
	"net/http"

	"github.com/aisouls/backend/internal/model/chat"
	"github.com/aisouls/backend/internal/model/persona"
	"github.com/aisouls/backend/internal/service/ai"
	chatService "github.com/aisouls/backend/internal/service/chat"
)

// statusFor maps domain and provider errors to HTTP status codes.
func statusFor(err error) int {
	var providerErr *ai.ProviderError
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, persona.ErrUnknownPersona),
		errors.Is(err, chat.ErrEmptyInput),
		errors.Is(err, chatService.ErrPersonaRequired):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrAlreadyStarted),
		errors.Is(err, chat.ErrNotStarted),
		errors.Is(err, chat.ErrTurnLimitReached),
		errors.Is(err, chat.ErrNoPersona),
		errors.Is(err, ai.ErrEmptyHistory),
		errors.Is(err, chatService.ErrSessionBusy),
		errors.Is(err, chatService.ErrNothingToRetry):
		return http.StatusConflict
	case errors.Is(err, ai.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &providerErr):
		if providerErr.Kind == ai.KindRateLimit {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the client-facing text for err. Provider details stay
// in the logs.
func messageFor(err error) string {
	var providerErr *ai.ProviderError
	switch {
	case errors.Is(err, ai.ErrTimeout):
		return "the soul took too long to answer, please retry"
	case errors.As(err, &providerErr):
		switch providerErr.Kind {
		case ai.KindAuth:
			return "completion service credentials are missing or invalid"
		case ai.KindRateLimit:
			return "completion service is rate limited, please retry shortly"
		case ai.KindNetwork:
			return "completion service is unreachable, please retry"
		default:
			return "completion service failed, please retry"
		}
	}
	if statusFor(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
