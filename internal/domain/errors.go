package domain

import (
	"errors"
	"strings"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionClosed       = errors.New(ErrorReasonSessionClosed)
	ErrSDKUnavailable      = errors.New("sdk unavailable")
	ErrInvalidConfig       = errors.New("invalid session config")
	ErrEmptyMessage        = errors.New("message is required")
	ErrInvalidAddress      = errors.New("invalid flow address")
	ErrAccountNotFound     = errors.New("Account not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ConfigError lists every reason a session config was refused.
type ConfigError struct {
	Reasons []string
}

func (e *ConfigError) Error() string {
	return ErrInvalidConfig.Error() + ": " + strings.Join(e.Reasons, "; ")
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidConfig).
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// NewConfigError builds a ConfigError from one or more reasons.
func NewConfigError(reasons ...string) *ConfigError {
	return &ConfigError{Reasons: reasons}
}
