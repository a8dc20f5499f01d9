package resolver

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/authz/internal/core/events"
)

// Service computes effective permissions. With a cache it answers
// checks from per-user snapshots; without one every check is a
// targeted existence query against the store.
type Service struct {
	repo   RepositoryAPI
	cache  *SnapshotCache
	logger *slog.Logger
}

// NewService creates a resolver service. cache may be nil to disable
// snapshot caching.
func NewService(repo RepositoryAPI, cache *SnapshotCache, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// ResolveEffectivePermissions returns the deduplicated (resource,
// action) set reachable from the user's effective grants. Unknown
// users resolve to an empty set, not an error.
func (s *Service) ResolveEffectivePermissions(ctx context.Context, userID string) ([]EffectivePermission, error) {
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !snap.UserActive {
		return []EffectivePermission{}, nil
	}
	return snap.Permissions, nil
}

// HasPermission existence-checks a single (resource, action) pair
// under the given organization context.
func (s *Service) HasPermission(ctx context.Context, userID, resource, action string, organizationID *string) (bool, error) {
	if s.cache == nil {
		return s.repo.HasPermission(ctx, userID, resource, action, organizationID)
	}

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return false, err
	}
	return snap.HasPair(resource, action) && snap.organizationAllows(organizationID), nil
}

// InvalidateUser drops the user's cached snapshot. Administration
// calls this synchronously before a mutation returns.
func (s *Service) InvalidateUser(userID string) {
	s.cache.Invalidate(userID)
}

// SubscribeInvalidation wires cache invalidation to administration
// mutation events.
func (s *Service) SubscribeInvalidation(bus *events.EventBus) {
	grantHandler := func(ctx context.Context, event events.Event) error {
		if e, ok := event.(events.RoleGrantEvent); ok {
			s.InvalidateUser(e.UserID)
		}
		return nil
	}
	bus.Subscribe(events.EventTypeRoleGranted, grantHandler)
	bus.Subscribe(events.EventTypeRoleRevoked, grantHandler)

	linkHandler := func(ctx context.Context, event events.Event) error {
		if e, ok := event.(events.RolePermissionEvent); ok {
			for _, userID := range e.AffectedUserIDs {
				s.InvalidateUser(userID)
			}
		}
		return nil
	}
	bus.Subscribe(events.EventTypePermissionAttached, linkHandler)
	bus.Subscribe(events.EventTypePermissionDetached, linkHandler)
}

func (s *Service) snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	if snap, ok := s.cache.Get(userID); ok {
		return snap, nil
	}

	snap, err := s.repo.ResolveSnapshot(ctx, userID)
	if err != nil {
		s.logger.Error("failed to resolve permission snapshot", "error", err, "user_id", userID)
		return nil, err
	}

	s.cache.Add(userID, snap)
	return snap, nil
}
