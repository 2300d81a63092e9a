package dto

import "github.com/hugh/schoolyard/internal/api/validation"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(r.Email) {
		errors["email"] = "Email is invalid"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r RefreshRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.RefreshToken == "" {
		errors["refresh_token"] = "Refresh token is required"
	}

	return errors
}

type SwitchSchoolRequest struct {
	SchoolID string `json:"school_id"`
	// RefreshToken, when present, re-points the session at the target
	// school so later refreshes keep the switched context.
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (r SwitchSchoolRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.SchoolID == "" {
		errors["school_id"] = "School id is required"
	} else if !validation.IsValidUUID(r.SchoolID) {
		errors["school_id"] = "School id is invalid"
	}

	return errors
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AuthResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token,omitempty"`
	User         UserDTO `json:"user"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type UserDTO struct {
	ID              string          `json:"id"`
	Email           string          `json:"email"`
	Name            string          `json:"name"`
	PlatformRole    string          `json:"platform_role"`
	Status          string          `json:"status"`
	PrimarySchoolID string          `json:"primary_school_id,omitempty"`
	ActiveSchoolID  string          `json:"active_school_id,omitempty"`
	Memberships     []MembershipDTO `json:"memberships,omitempty"`
}

type MembershipDTO struct {
	SchoolID          string            `json:"school_id"`
	SchoolName        string            `json:"school_name,omitempty"`
	Role              string            `json:"role"`
	Permissions       []string          `json:"permissions,omitempty"`
	Status            string            `json:"status"`
	PermissionVersion int64             `json:"permission_version"`
	Details           map[string]string `json:"details,omitempty"`
}
