package decision

import "github.com/frahmantamala/authz/internal"

type DecideDTO struct {
	UserID         string  `json:"user_id"`
	Resource       string  `json:"resource"`
	Action         string  `json:"action"`
	OrganizationID *string `json:"organization_id"`
}

func (d DecideDTO) Validate() *internal.AppError {
	if d.UserID == "" {
		return internal.NewValidationFieldError("user_id", "user_id is required", internal.ErrCodeValidationFailed)
	}
	if d.Resource == "" {
		return internal.NewValidationFieldError("resource", "resource is required", internal.ErrCodeInvalidResource)
	}
	if d.Action == "" {
		return internal.NewValidationFieldError("action", "action is required", internal.ErrCodeInvalidAction)
	}
	return nil
}

type DecideAnyDTO struct {
	UserID         string          `json:"user_id"`
	Permissions    []PermissionRef `json:"permissions"`
	OrganizationID *string         `json:"organization_id"`
}

func (d DecideAnyDTO) Validate() *internal.AppError {
	if d.UserID == "" {
		return internal.NewValidationFieldError("user_id", "user_id is required", internal.ErrCodeValidationFailed)
	}
	if len(d.Permissions) == 0 {
		return internal.NewValidationFieldError("permissions", "at least one permission pair is required", internal.ErrCodeValidationFailed)
	}
	for _, pair := range d.Permissions {
		if pair.Resource == "" || pair.Action == "" {
			return internal.NewValidationFieldError("permissions", "each pair needs resource and action", internal.ErrCodeValidationFailed)
		}
	}
	return nil
}
