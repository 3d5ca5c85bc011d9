package jwtx

import (
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the OIDC token claims we care about across ID tokens,
// access tokens, and RPTs. Identity-server specific extras (realm
// roles, UMA permissions) ride along when present.
type Claims struct {
	jwt.RegisteredClaims

	// Typ tells access tokens ("Bearer") apart from ID tokens ("ID")
	// and refresh tokens on Keycloak-style servers.
	Typ string `json:"typ,omitempty"`

	// Azp is the authorized party, the client the token was issued to.
	Azp string `json:"azp,omitempty"`

	// SID is the identity-server session id.
	SID string `json:"sid,omitempty"`

	// Scope is the space-delimited scope string granted to the token.
	Scope string `json:"scope,omitempty"`

	/* Profile claims carried on ID tokens */

	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`

	// RealmAccess carries realm-level role grants.
	RealmAccess *RoleAccess `json:"realm_access,omitempty"`

	// Authorization is present on RPTs and lists the granted permissions.
	Authorization *Authorization `json:"authorization,omitempty"`
}

// RoleAccess is the role container used by realm_access / resource_access.
type RoleAccess struct {
	Roles []string `json:"roles,omitempty"`
}

// Authorization is the UMA permission block found in an RPT.
type Authorization struct {
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission is a single granted resource permission inside an RPT.
type Permission struct {
	ResourceID   string   `json:"rsid,omitempty"`
	ResourceName string   `json:"rsname,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// ValidateIssuer checks if the issuer matches the expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't used
// before nbf.
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}

// Scopes splits the space-delimited scope string into fields.
func (c *Claims) Scopes() []string {
	if c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// HasScope reports whether the scope string contains the given scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes(), scope)
}
