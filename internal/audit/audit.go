package audit

import (
	"context"
	"errors"
	"time"
)

// Audit actions recorded by the engine. Decision events come from the
// access decision point; everything else from administration.
const (
	ActionAccessDecision     = "access.decision"
	ActionRoleCreated        = "role.created"
	ActionPermissionCreated  = "permission.created"
	ActionPermissionAttached = "permission.attached"
	ActionPermissionDetached = "permission.detached"
	ActionRoleGranted        = "role.granted"
	ActionRoleRevoked        = "role.revoked"
	ActionCatalogSeeded      = "catalog.seeded"
	ActionUserRegistered     = "user.registered"
)

var ErrRecorderClosed = errors.New("audit recorder is shut down")

// Record is one immutable audit entry. ActorUserID is nil for system
// actions.
type Record struct {
	ID            string                 `json:"id"`
	ActorUserID   *string                `json:"actor_user_id"`
	Action        string                 `json:"action"`
	ResourceType  string                 `json:"resource_type"`
	ResourceID    string                 `json:"resource_id"`
	Details       map[string]interface{} `json:"details,omitempty"`
	OriginAddress string                 `json:"origin_address,omitempty"`
	OriginAgent   string                 `json:"origin_agent,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// ListFilter narrows audit queries for the admin read surface.
type ListFilter struct {
	ActorUserID  string
	ResourceType string
	Limit        int
}

// RepositoryAPI is the append-only store contract. AppendBatch must be
// atomic; List exists only for the administration read surface.
type RepositoryAPI interface {
	AppendBatch(ctx context.Context, records []Record) error
	List(ctx context.Context, filter ListFilter) ([]Record, error)
}

// RecorderAPI durably queues a record before returning. Duplicate
// delivery to the store is acceptable; loss is not.
type RecorderAPI interface {
	Enqueue(ctx context.Context, record Record) error
}
