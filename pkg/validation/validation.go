// Package validation checks and sanitizes input arriving from clients.
package validation

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/opd-ai/gravity-beats/pkg/physics"
)

// Limits on client input
const (
	MaxMessageSize    = 64 * 1024
	MaxPlayerNameLen  = 32
	MaxLineNameLen    = 48
	MaxMessagesPerMin = 300
	MinLineLength     = 4.0
)

var (
	ErrMessageTooLarge   = errors.New("message too large")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrLineOutOfBounds   = errors.New("line endpoint outside the arena")
	ErrLineTooShort      = errors.New("line too short")
	ErrLineNotFinite     = errors.New("line endpoints must be finite")
	ErrUnknownLineKind   = errors.New("unknown line kind")
	ErrInvalidLineName   = errors.New("invalid line name")
	ErrInvalidPlayerName = errors.New("invalid player name")
)

// Player names allow letters, digits, spaces and a little punctuation
var validPlayerNameChars = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.()]+$`)

// MessageValidator checks raw frames and applies per-client rate limits
type MessageValidator struct {
	rateLimiter *RateLimiter
}

// NewMessageValidator creates a new message validator with rate limiting
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{
		rateLimiter: NewRateLimiter(MaxMessagesPerMin, time.Minute),
	}
}

// Close releases resources used by the message validator
func (v *MessageValidator) Close() {
	if v.rateLimiter != nil {
		v.rateLimiter.Close()
	}
}

// Forget drops the rate limit state of a disconnected client
func (v *MessageValidator) Forget(clientID string) {
	v.rateLimiter.Forget(clientID)
}

// ValidateMessage checks a frame payload's size and the sender's rate
func (v *MessageValidator) ValidateMessage(size int, clientID string) error {
	if size > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, size, MaxMessageSize)
	}
	if !v.rateLimiter.Allow(clientID) {
		return fmt.Errorf("%w: max %d messages per minute", ErrRateLimited, MaxMessagesPerMin)
	}
	return nil
}

// ValidatePlayerName validates and sanitizes a player name
func ValidatePlayerName(name string) (string, error) {
	trimmed, err := sanitizeText(name, MaxPlayerNameLen)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPlayerName, err)
	}
	if trimmed == "" {
		return "", fmt.Errorf("%w: cannot be empty", ErrInvalidPlayerName)
	}
	if !validPlayerNameChars.MatchString(trimmed) {
		return "", fmt.Errorf("%w: only letters, digits, spaces and -_.() are allowed", ErrInvalidPlayerName)
	}
	return html.EscapeString(trimmed), nil
}

// ValidateLineName sanitizes an optional label for a drawn line
func ValidateLineName(name string) (string, error) {
	trimmed, err := sanitizeText(name, MaxLineNameLen)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLineName, err)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: contains control characters", ErrInvalidLineName)
		}
	}
	return html.EscapeString(trimmed), nil
}

// sanitizeText checks length and encoding and trims surrounding space
func sanitizeText(s string, maxLen int) (string, error) {
	if len(s) > maxLen {
		return "", fmt.Errorf("too long: %d bytes (max %d)", len(s), maxLen)
	}
	if !utf8.ValidString(s) {
		return "", errors.New("contains invalid UTF-8")
	}
	return strings.TrimSpace(s), nil
}

// ValidateLine checks a line a player wants to draw: both endpoints
// inside the arena, long enough to hit, and of a known kind.
func ValidateLine(start, end physics.Vector2D, kind physics.LineKind, bounds physics.Bounds) error {
	if !start.IsFinite() || !end.IsFinite() {
		return ErrLineNotFinite
	}
	if !bounds.Contains(start) || !bounds.Contains(end) {
		return fmt.Errorf("%w: %v to %v", ErrLineOutOfBounds, start, end)
	}
	if start.Distance(end) < MinLineLength {
		return fmt.Errorf("%w: %.2f (min %.0f)", ErrLineTooShort, start.Distance(end), MinLineLength)
	}
	if kind != physics.PassThrough && kind != physics.OneWay {
		return fmt.Errorf("%w: %d", ErrUnknownLineKind, kind)
	}
	return nil
}
