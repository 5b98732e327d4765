package api

import (
	"context"
	"errors"
)

type contextKey string

const actorKey contextKey = "actor"

// WithActor attaches the authenticated actor identity to the context.
// The auth middleware is the only writer.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// Actor retrieves the authenticated actor from the context.
func Actor(ctx context.Context) (string, error) {
	actor, ok := ctx.Value(actorKey).(string)
	if !ok || actor == "" {
		return "", errors.New("no actor in context")
	}
	return actor, nil
}
