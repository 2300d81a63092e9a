package models

// School is the tenant: the unit of data isolation. Each school is reachable
// on a platform subdomain and optionally on its own custom domain.
type School struct {
	Base
	Name             string  `gorm:"not null" json:"name"`
	Subdomain        string  `gorm:"uniqueIndex;not null" json:"subdomain"`
	CustomDomain     *string `gorm:"uniqueIndex" json:"custom_domain,omitempty"`
	Status           Status  `gorm:"default:'active'" json:"status"`
	SubscriptionTier string  `gorm:"default:'free'" json:"subscription_tier"` // free, standard, premium
	FeatureFlags     FlagMap `json:"feature_flags"`

	// Relationships
	Memberships []Membership `gorm:"foreignKey:SchoolID" json:"-"`
}

func (School) TableName() string {
	return "schools"
}

// Hosts returns every host that resolves to this school, used for resolver
// cache invalidation when domains change.
func (s *School) Hosts(platformRoot string) []string {
	hosts := []string{s.Subdomain + "." + platformRoot}
	if s.CustomDomain != nil && *s.CustomDomain != "" {
		hosts = append(hosts, *s.CustomDomain)
	}
	return hosts
}
