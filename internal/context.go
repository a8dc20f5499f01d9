package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	contextActorKey  ctxKey = "actor"
	contextOriginKey ctxKey = "origin"
)

// Actor is the already-authenticated identity on whose behalf a
// request runs. OrganizationID is nil for global/system actors.
type Actor struct {
	UserID         string
	OrganizationID *string
}

// Origin is request provenance stamped onto audit records.
type Origin struct {
	Address string
	Agent   string
}

func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, contextActorKey, actor)
}

func ActorFromContext(ctx context.Context) (*Actor, bool) {
	if ctx == nil {
		return nil, false
	}
	actor, ok := ctx.Value(contextActorKey).(*Actor)
	return actor, ok && actor != nil
}

func ContextWithOrigin(ctx context.Context, origin Origin) context.Context {
	return context.WithValue(ctx, contextOriginKey, origin)
}

func OriginFromContext(ctx context.Context) Origin {
	if ctx == nil {
		return Origin{}
	}
	if origin, ok := ctx.Value(contextOriginKey).(Origin); ok {
		return origin
	}
	return Origin{}
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
