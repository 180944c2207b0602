// Package logging provides the structured logger shared by the server components.
package logging

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are key-value pairs:
//
//	log.Info(ctx, "device rebound", "device_id", id)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given pairs.
	With(args ...any) Logger
}

// MaskEmail keeps the first character of the local part and the domain.
// Example: alice@example.com -> a****@example.com
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "****"
	}
	_, size := utf8.DecodeRuneInString(email)
	return email[:size] + "****" + email[at:]
}
