package models

import "github.com/google/uuid"

// PlatformRole is a platform-wide default role, distinct from any
// school-specific role. Only super_admin may bypass per-school checks.
type PlatformRole string

const (
	PlatformSuperAdmin  PlatformRole = "super_admin"
	PlatformSchoolAdmin PlatformRole = "school_admin"
	PlatformRegistrar   PlatformRole = "registrar"
	PlatformTeacher     PlatformRole = "teacher"
	PlatformParent      PlatformRole = "parent"
	PlatformStudent     PlatformRole = "student"
	PlatformStaff       PlatformRole = "staff"
)

func (r PlatformRole) IsValid() bool {
	switch r {
	case PlatformSuperAdmin, PlatformSchoolAdmin, PlatformRegistrar,
		PlatformTeacher, PlatformParent, PlatformStudent, PlatformStaff:
		return true
	}
	return false
}

// User is the consolidated platform-wide identity. One row per person no
// matter how many schools they belong to; never hard-deleted, archived
// instead so audit history survives.
type User struct {
	Base
	Email        string       `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string       `gorm:"not null" json:"-"`
	Name         string       `json:"name"`
	PlatformRole PlatformRole `gorm:"default:'staff'" json:"platform_role"`
	Status       Status       `gorm:"default:'active'" json:"status"`

	// PrimarySchoolID is the default active tenant on login, when set.
	PrimarySchoolID *uuid.UUID `gorm:"type:uuid" json:"primary_school_id,omitempty"`

	// Profile holds contact/preference data; not security-relevant.
	Profile string `gorm:"default:'{}'" json:"profile"`

	// Relationships
	Memberships []Membership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// MembershipFor returns the loaded membership for the given school, or nil.
func (u *User) MembershipFor(schoolID uuid.UUID) *Membership {
	for i := range u.Memberships {
		if u.Memberships[i].SchoolID == schoolID {
			return &u.Memberships[i]
		}
	}
	return nil
}

// ActiveMemberships returns the loaded memberships with active status.
func (u *User) ActiveMemberships() []Membership {
	var active []Membership
	for _, m := range u.Memberships {
		if m.Status == StatusActive {
			active = append(active, m)
		}
	}
	return active
}
