package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRoleGranted        = "authz.role.granted"
	EventTypeRoleRevoked        = "authz.role.revoked"
	EventTypePermissionAttached = "authz.permission.attached"
	EventTypePermissionDetached = "authz.permission.detached"
)

// RoleGrantEvent fires for grant and revoke mutations; UserID drives
// per-user cache invalidation.
type RoleGrantEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

func NewRoleGrantEvent(eventType, userID, roleID string) RoleGrantEvent {
	return RoleGrantEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id": userID,
				"role_id": roleID,
			},
		},
		UserID: userID,
		RoleID: roleID,
	}
}

// RolePermissionEvent fires when a role's permission set changes.
// AffectedUserIDs lists users currently holding the role, so their
// cached permission sets can be dropped.
type RolePermissionEvent struct {
	BaseEvent
	RoleID          string   `json:"role_id"`
	PermissionID    string   `json:"permission_id"`
	AffectedUserIDs []string `json:"affected_user_ids"`
}

func NewRolePermissionEvent(eventType, roleID, permissionID string, affectedUserIDs []string) RolePermissionEvent {
	return RolePermissionEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"role_id":       roleID,
				"permission_id": permissionID,
			},
		},
		RoleID:          roleID,
		PermissionID:    permissionID,
		AffectedUserIDs: affectedUserIDs,
	}
}
