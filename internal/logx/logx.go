package logx

import (
	"context"

	"pkt.systems/pslog"
)

type contextKey int

const connectionKey contextKey = iota

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithConnection annotates the logger with the remote address if present.
func WithConnection(ctx context.Context, address string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if address != "" {
		if current, ok := ctx.Value(connectionKey).(string); ok && current == address {
			return log
		}
		log = log.With("remote", address)
	}
	return log
}

// WithSession annotates the logger with a shell session id when available.
func WithSession(log pslog.Logger, sessionID string) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// WithPath annotates the logger with the browsed remote path when available.
func WithPath(log pslog.Logger, path string) pslog.Logger {
	if path != "" {
		log = log.With("path", path)
	}
	return log
}

// ContextWithConnection stores the remote marker on the context for log
// de-duplication.
func ContextWithConnection(ctx context.Context, address string) context.Context {
	if ctx == nil || address == "" {
		return ctx
	}
	return context.WithValue(ctx, connectionKey, address)
}

// ContextWithConnectionLogger attaches the logger and remote marker to the
// context.
func ContextWithConnectionLogger(ctx context.Context, log pslog.Logger, address string) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithConnection(ctx, address)
}
