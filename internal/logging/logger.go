// Package logging defines the structured logger used by the server and the
// lock gate. Messages carry key/value pairs; callers never pass sequences,
// digests or hints as values.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
//	log.Info(ctx, "unlock succeeded", "app_id", id)
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given pairs.
	With(args ...any) Logger
}

// Nop discards everything. Handy in tests and for optional collaborators.
type Nop struct{}

func (Nop) Info(context.Context, string, ...any)  {}
func (Nop) Warn(context.Context, string, ...any)  {}
func (Nop) Error(context.Context, string, ...any) {}
func (n Nop) With(...any) Logger                  { return n }
