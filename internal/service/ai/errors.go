package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
)

// ErrTimeout marks a completion that did not finish before its deadline.
var ErrTimeout = errors.New("completion timed out")

// ErrorKind classifies provider failures for callers that map them to
// user-facing responses.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindNetwork   ErrorKind = "network"
	KindProvider  ErrorKind = "provider"
)

// ProviderError wraps any failure reported by the completion provider.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion provider error (%s, status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion provider error (%s): %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// classifyError converts a raw model error into ErrTimeout or *ProviderError.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	if status := statusCode(err); status != 0 {
		return &ProviderError{Kind: kindForStatus(status), StatusCode: status, Err: err}
	}

	if netErr != nil {
		return &ProviderError{Kind: KindNetwork, Err: err}
	}

	// 部分错误在链路中被转成字符串，只能按文本兜底判断。
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "authentication"), strings.Contains(msg, "api key"):
		return &ProviderError{Kind: KindAuth, Err: err}
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return &ProviderError{Kind: KindRateLimit, Err: err}
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return &ProviderError{Kind: KindNetwork, Err: err}
	}
	return &ProviderError{Kind: KindProvider, Err: err}
}

func statusCode(err error) int {
	var apiErr *arkmodel.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *arkmodel.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimit
	default:
		return KindProvider
	}
}
