package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"valid_simple", "user@example.com", true},
		{"valid_subdomain", "user@mail.example.com", true},
		{"valid_plus", "user+tag@example.com", true},
		{"valid_dash", "user-name@example.com", true},
		{"valid_dot", "user.name@example.com", true},
		{"valid_numbers", "user123@example456.com", true},
		{"invalid_no_at", "userexample.com", false},
		{"invalid_no_domain", "user@", false},
		{"invalid_no_user", "@example.com", false},
		{"invalid_double_at", "user@@example.com", false},
		{"invalid_spaces", "user @example.com", false},
		{"invalid_no_tld", "user@example", false},
		{"too_long", "a" + string(make([]byte, 250)) + "@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidEmail(tt.email)
			assert.Equal(t, tt.valid, result, "Email: %s", tt.email)
		})
	}
}

func TestIsValidDomain(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		valid  bool
	}{
		{"valid_simple", "example.com", true},
		{"valid_subdomain", "mail.example.com", true},
		{"valid_multiple_subs", "a.b.c.example.com", true},
		{"valid_dash", "my-domain.com", true},
		{"valid_numbers", "example123.com", true},
		{"invalid_no_tld", "example", false},
		{"invalid_dash_start", "-example.com", false},
		{"invalid_dash_end", "example-.com", false},
		{"invalid_underscore", "exam_ple.com", false},
		{"invalid_spaces", "exam ple.com", false},
		{"too_long", string(make([]byte, 255)) + ".com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidDomain(tt.domain)
			assert.Equal(t, tt.valid, result, "Domain: %s", tt.domain)
		})
	}
}

func TestIsValidSubdomain(t *testing.T) {
	tests := []struct {
		name      string
		subdomain string
		valid     bool
	}{
		{"valid_simple", "stmarys", true},
		{"valid_dash", "st-marys", true},
		{"valid_numbers", "school42", true},
		{"invalid_dot", "st.marys", false},
		{"invalid_uppercase", "StMarys", false},
		{"invalid_dash_start", "-stmarys", false},
		{"invalid_dash_end", "stmarys-", false},
		{"invalid_empty", "", false},
		{"invalid_underscore", "st_marys", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidSubdomain(tt.subdomain)
			assert.Equal(t, tt.valid, result, "Subdomain: %s", tt.subdomain)
		})
	}
}

func TestIsValidUUID(t *testing.T) {
	tests := []struct {
		name  string
		uuid  string
		valid bool
	}{
		{"valid_uuid", "550e8400-e29b-41d4-a716-446655440000", true},
		{"valid_uppercase", "550E8400-E29B-41D4-A716-446655440000", true},
		{"valid_mixed", "550e8400-E29B-41d4-A716-446655440000", true},
		{"invalid_short", "550e8400-e29b-41d4-a716", false},
		{"invalid_long", "550e8400-e29b-41d4-a716-446655440000-extra", false},
		{"invalid_no_dashes", "550e8400e29b41d4a716446655440000", false},
		{"invalid_wrong_format", "550e8400-e29b-41d4a716-446655440000", false},
		{"invalid_letters", "ggge8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidUUID(tt.uuid)
			assert.Equal(t, tt.valid, result, "UUID: %s", tt.uuid)
		})
	}
}

func TestIsValidPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
		errMsg   string
	}{
		{"valid_strong", "MyP4ssword", true, ""},
		{"valid_complex", "Tr0ng!Pass#2024", true, ""},
		{"too_short", "Pass1", false, "at least 8 characters"},
		{"too_long", "MyP4ss" + string(make([]byte, 125)), false, "at most 128 characters"},
		{"no_uppercase", "myp4ssword", false, "uppercase letter"},
		{"no_lowercase", "MYP4SSWORD", false, "lowercase letter"},
		{"no_number", "MyPassword", false, "number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, msg := IsValidPassword(tt.password)
			assert.Equal(t, tt.valid, valid, "Password: %s", tt.password)
			if !tt.valid {
				assert.Contains(t, msg, tt.errMsg)
			}
		})
	}
}
