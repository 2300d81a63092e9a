package models

import "github.com/google/uuid"

// SchoolRole is the closed per-tenant role vocabulary. Role defaults are a
// fixed table in the authz package; a membership may additionally carry
// explicit permission overrides.
type SchoolRole string

const (
	RolePrincipal       SchoolRole = "principal"
	RoleDeputyPrincipal SchoolRole = "deputy_principal"
	RoleAcademicHead    SchoolRole = "academic_head"
	RoleDepartmentHead  SchoolRole = "department_head"
	RoleTeacher         SchoolRole = "teacher"
	RoleFormTeacher     SchoolRole = "form_teacher"
	RoleRegistrar       SchoolRole = "registrar"
	RoleBursar          SchoolRole = "bursar"
	RoleLibrarian       SchoolRole = "librarian"
	RoleITSupport       SchoolRole = "it_support"
	RoleSecurity        SchoolRole = "security"
	RoleParent          SchoolRole = "parent"
	RoleStudent         SchoolRole = "student"
)

// SchoolRoles lists every valid membership role.
var SchoolRoles = []SchoolRole{
	RolePrincipal, RoleDeputyPrincipal, RoleAcademicHead, RoleDepartmentHead,
	RoleTeacher, RoleFormTeacher, RoleRegistrar, RoleBursar, RoleLibrarian,
	RoleITSupport, RoleSecurity, RoleParent, RoleStudent,
}

func (r SchoolRole) IsValid() bool {
	for _, role := range SchoolRoles {
		if r == role {
			return true
		}
	}
	return false
}

// PermissionWildcard in a membership's explicit permission set grants every
// action within that membership's school.
const PermissionWildcard = "*"

// Membership ties a user to exactly one school with a role, explicit
// permission overrides, and a lifecycle status. A user has at most one
// membership per school; offboarding archives the row rather than deleting
// it. Every mutation bumps PermissionVersion in the same transaction, which
// is the invalidation hook for issued tokens and cached contexts.
type Membership struct {
	Base
	UserID   uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_memberships_user_school;not null" json:"user_id"`
	SchoolID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_memberships_user_school;not null" json:"school_id"`

	Role        SchoolRole `gorm:"not null" json:"role"`
	Permissions StringSet  `json:"permissions"`
	Status      Status     `gorm:"default:'active'" json:"status"`

	// PermissionVersion increases monotonically on every mutation.
	PermissionVersion int64 `gorm:"default:1" json:"permission_version"`

	// DetailsEncrypted carries role-specific fields (student number,
	// employee id, linked children ids) age-encrypted at rest. Opaque to
	// the authorization core.
	DetailsEncrypted []byte `json:"-"`

	// Relationships
	User   *User   `gorm:"foreignKey:UserID" json:"-"`
	School *School `gorm:"foreignKey:SchoolID" json:"school,omitempty"`
}

func (Membership) TableName() string {
	return "memberships"
}
