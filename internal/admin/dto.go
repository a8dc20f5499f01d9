package admin

import (
	"strings"
	"time"

	"github.com/frahmantamala/authz/internal"
)

type CreateRoleDTO struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	IsSystemRole   bool    `json:"is_system_role"`
	IsDefault      bool    `json:"is_default"`
	OrganizationID *string `json:"organization_id"`
}

func (d CreateRoleDTO) Validate() *internal.AppError {
	if strings.TrimSpace(d.Name) == "" {
		return internal.NewValidationFieldError("name", "role name is required", internal.ErrCodeValidationFailed)
	}
	if len(d.Name) > 100 {
		return internal.NewValidationFieldError("name", "role name must be at most 100 characters", internal.ErrCodeValidationFailed)
	}
	if d.IsSystemRole && d.OrganizationID != nil {
		return internal.NewValidationFieldError("organization_id", "system roles cannot be organization-scoped", internal.ErrCodeValidationFailed)
	}
	return nil
}

type CreatePermissionDTO struct {
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

func (d CreatePermissionDTO) Validate() *internal.AppError {
	if strings.TrimSpace(d.Resource) == "" {
		return internal.NewValidationFieldError("resource", "resource is required", internal.ErrCodeInvalidResource)
	}
	if strings.TrimSpace(d.Action) == "" {
		return internal.NewValidationFieldError("action", "action is required", internal.ErrCodeInvalidAction)
	}
	if strings.TrimSpace(d.Name) == "" {
		return internal.NewValidationFieldError("name", "permission name is required", internal.ErrCodeValidationFailed)
	}
	return nil
}

type GrantRoleDTO struct {
	UserID    string     `json:"user_id"`
	RoleID    string     `json:"role_id"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (d GrantRoleDTO) Validate() *internal.AppError {
	if d.UserID == "" {
		return internal.NewValidationFieldError("user_id", "user_id is required", internal.ErrCodeValidationFailed)
	}
	if d.RoleID == "" {
		return internal.NewValidationFieldError("role_id", "role_id is required", internal.ErrCodeValidationFailed)
	}
	return nil
}

type RegisterUserDTO struct {
	Email          string  `json:"email"`
	Username       string  `json:"username"`
	OrganizationID *string `json:"organization_id"`
}

func (d RegisterUserDTO) Validate() *internal.AppError {
	if strings.TrimSpace(d.Email) == "" {
		return internal.NewValidationFieldError("email", "email is required", internal.ErrCodeValidationFailed)
	}
	if !strings.Contains(d.Email, "@") {
		return internal.NewValidationFieldError("email", "email format is invalid", internal.ErrCodeValidationFailed)
	}
	if strings.TrimSpace(d.Username) == "" {
		return internal.NewValidationFieldError("username", "username is required", internal.ErrCodeValidationFailed)
	}
	return nil
}
