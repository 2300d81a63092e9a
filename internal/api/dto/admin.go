package dto

import "github.com/hugh/schoolyard/internal/api/validation"

type CreateSchoolRequest struct {
	Name             string          `json:"name"`
	Subdomain        string          `json:"subdomain"`
	CustomDomain     string          `json:"custom_domain,omitempty"`
	SubscriptionTier string          `json:"subscription_tier,omitempty"`
	FeatureFlags     map[string]bool `json:"feature_flags,omitempty"`
}

func (r CreateSchoolRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	if r.Subdomain == "" {
		errors["subdomain"] = "Subdomain is required"
	} else if !validation.IsValidSubdomain(r.Subdomain) {
		errors["subdomain"] = "Subdomain is invalid"
	}
	if r.CustomDomain != "" && !validation.IsValidDomain(r.CustomDomain) {
		errors["custom_domain"] = "Custom domain is invalid"
	}

	return errors
}

type InviteMemberRequest struct {
	Email       string            `json:"email"`
	Name        string            `json:"name,omitempty"`
	Role        string            `json:"role"`
	Permissions []string          `json:"permissions,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

func (r InviteMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(r.Email) {
		errors["email"] = "Email is invalid"
	}
	if r.Role == "" {
		errors["role"] = "Role is required"
	}

	return errors
}

type UpdateMemberRequest struct {
	Role        *string   `json:"role,omitempty"`
	Permissions *[]string `json:"permissions,omitempty"`
	Status      *string   `json:"status,omitempty"`
}

func (r UpdateMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Role == nil && r.Permissions == nil && r.Status == nil {
		errors["request"] = "At least one of role, permissions, status is required"
	}

	return errors
}

type UpdateDomainsRequest struct {
	Subdomain    string  `json:"subdomain"`
	CustomDomain *string `json:"custom_domain,omitempty"`
}

func (r UpdateDomainsRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Subdomain == "" {
		errors["subdomain"] = "Subdomain is required"
	} else if !validation.IsValidSubdomain(r.Subdomain) {
		errors["subdomain"] = "Subdomain is invalid"
	}
	if r.CustomDomain != nil && *r.CustomDomain != "" && !validation.IsValidDomain(*r.CustomDomain) {
		errors["custom_domain"] = "Custom domain is invalid"
	}

	return errors
}

type UpdatePlanRequest struct {
	SubscriptionTier string          `json:"subscription_tier"`
	FeatureFlags     map[string]bool `json:"feature_flags,omitempty"`
}

func (r UpdatePlanRequest) Validate() map[string]string {
	errors := make(map[string]string)

	switch r.SubscriptionTier {
	case "free", "standard", "premium":
	default:
		errors["subscription_tier"] = "Subscription tier must be free, standard, or premium"
	}

	return errors
}

type SchoolDTO struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Subdomain        string          `json:"subdomain"`
	CustomDomain     string          `json:"custom_domain,omitempty"`
	Status           string          `json:"status"`
	SubscriptionTier string          `json:"subscription_tier"`
	FeatureFlags     map[string]bool `json:"feature_flags,omitempty"`
}
