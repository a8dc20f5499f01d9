package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/authz/internal"
	"github.com/frahmantamala/authz/internal/audit"
	"github.com/frahmantamala/authz/internal/obs"
	"github.com/frahmantamala/authz/internal/resolver"
)

// Service is the single access decision point. Every resource owner
// calls Decide or DecideAny before acting; every call produces exactly
// one audit record, queued durably before the decision returns. The
// service never mutates roles or permissions.
type Service struct {
	resolver PermissionResolver
	recorder audit.RecorderAPI
	logger   *slog.Logger
}

func NewService(permResolver PermissionResolver, recorder audit.RecorderAPI, logger *slog.Logger) *Service {
	return &Service{
		resolver: permResolver,
		recorder: recorder,
		logger:   logger,
	}
}

// Decide checks a single (resource, action) pair for the user under
// the given organization context. Store failures fail closed: the
// caller sees a deny, never an error.
func (s *Service) Decide(ctx context.Context, userID, resource, action string, organizationID *string) Decision {
	start := time.Now()
	pair := PermissionRef{Resource: resource, Action: action}

	decision := s.check(ctx, userID, pair, organizationID)

	obs.ObserveDecision(decision.Allow, decision.Reason, time.Since(start))
	s.recordDecision(ctx, userID, []PermissionRef{pair}, organizationID, decision)
	return decision
}

// DecideAny allows when the user satisfies at least one of the pairs.
// When denied, Missing lists every requested pair.
func (s *Service) DecideAny(ctx context.Context, userID string, pairs []PermissionRef, organizationID *string) Decision {
	start := time.Now()

	decision := Decision{Allow: false, Reason: ReasonInsufficientPermission, Missing: pairs}
	for _, pair := range pairs {
		result := s.check(ctx, userID, pair, organizationID)
		if result.Allow {
			decision = Decision{Allow: true}
			break
		}
		if result.Reason == ReasonStoreUnavailable {
			decision = Decision{Allow: false, Reason: ReasonStoreUnavailable, Missing: pairs}
			break
		}
	}

	obs.ObserveDecision(decision.Allow, decision.Reason, time.Since(start))
	s.recordDecision(ctx, userID, pairs, organizationID, decision)
	return decision
}

// ListEffectivePermissions returns the set Decide would honor at call
// time, for permission-aware UI rendering.
func (s *Service) ListEffectivePermissions(ctx context.Context, userID string) ([]resolver.EffectivePermission, error) {
	perms, err := s.resolver.ResolveEffectivePermissions(ctx, userID)
	if err != nil {
		return nil, internal.NewUnavailableError("permission store unavailable", err)
	}
	return perms, nil
}

func (s *Service) check(ctx context.Context, userID string, pair PermissionRef, organizationID *string) Decision {
	allowed, err := s.resolver.HasPermission(ctx, userID, pair.Resource, pair.Action, organizationID)
	if err != nil {
		s.logger.Error("permission check failed, denying",
			"error", err,
			"user_id", userID,
			"permission", pair.String())
		return Decision{Allow: false, Reason: ReasonStoreUnavailable, Missing: []PermissionRef{pair}}
	}
	if allowed {
		return Decision{Allow: true}
	}

	// Distinguish a cross-tenant denial from a missing permission: if
	// the pair resolves without the org context, only scoping blocked it.
	if organizationID != nil {
		unscoped, err := s.resolver.HasPermission(ctx, userID, pair.Resource, pair.Action, nil)
		if err == nil && unscoped {
			return Decision{Allow: false, Reason: ReasonOrgMismatch, Missing: []PermissionRef{pair}}
		}
	}

	return Decision{Allow: false, Reason: ReasonInsufficientPermission, Missing: []PermissionRef{pair}}
}

// recordDecision queues the audit record. A failed enqueue is logged
// and never changes the decision already computed.
func (s *Service) recordDecision(ctx context.Context, userID string, pairs []PermissionRef, organizationID *string, decision Decision) {
	requested := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		requested = append(requested, pair.String())
	}

	details := map[string]interface{}{
		"allow":     decision.Allow,
		"requested": requested,
	}
	if decision.Reason != "" {
		details["reason"] = decision.Reason
	}
	if organizationID != nil {
		details["organization_id"] = *organizationID
	}

	// An empty pair list is a representable call; it denies and audits
	// with no resource type.
	resourceType := ""
	if len(pairs) > 0 {
		resourceType = pairs[0].Resource
	}

	origin := internal.OriginFromContext(ctx)
	actor := userID
	record := audit.Record{
		ActorUserID:   &actor,
		Action:        audit.ActionAccessDecision,
		ResourceType:  resourceType,
		Details:       details,
		OriginAddress: origin.Address,
		OriginAgent:   origin.Agent,
		Timestamp:     time.Now(),
	}

	if err := s.recorder.Enqueue(ctx, record); err != nil {
		s.logger.Error("failed to enqueue decision audit record",
			"error", err,
			"user_id", userID,
			"requested", requested)
	}
}
