package notify

import (
	"context"
	"errors"
	"strings"
)

// SendErrorClass groups delivery failures by what they mean for the recipient.
type SendErrorClass int

const (
	// SendBlocked means the recipient cannot be reached (bot blocked, chat gone).
	SendBlocked SendErrorClass = iota
	// SendRateLimited means the chat API throttled us.
	SendRateLimited
	// SendTransient covers network and server-side failures.
	SendTransient
	// SendUnknown is anything that matches no known pattern.
	SendUnknown
)

// String returns the metric label for the class.
func (c SendErrorClass) String() string {
	switch c {
	case SendBlocked:
		return "blocked"
	case SendRateLimited:
		return "rate_limited"
	case SendTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ClassifySendError maps a chat API error onto a SendErrorClass by its message.
// The order matters: throttling responses can also mention the chat.
func ClassifySendError(err error) SendErrorClass {
	if err == nil {
		return SendUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return SendTransient
	}
	lower := strings.ToLower(err.Error())

	for _, p := range []string{"too many requests", "retry after", "429", "flood"} {
		if strings.Contains(lower, p) {
			return SendRateLimited
		}
	}

	for _, p := range []string{
		"forbidden",
		"bot was blocked",
		"user is deactivated",
		"chat not found",
		"bot was kicked",
		"403",
	} {
		if strings.Contains(lower, p) {
			return SendBlocked
		}
	}

	for _, p := range []string{
		"connection reset",
		"connection refused",
		"timeout",
		"no such host",
		"eof",
		"broken pipe",
		"bad gateway",
		"internal server error",
		"500",
		"502",
		"503",
		"504",
	} {
		if strings.Contains(lower, p) {
			return SendTransient
		}
	}
	return SendUnknown
}
