package oidcrp

import (
	"context"
	"sync"
	"time"
)

// TokenState is where a profile's token pair sits in its lifecycle.
type TokenState int

const (
	// StateFresh: the access token is still valid.
	StateFresh TokenState = iota
	// StateStaleRefreshable: access expired, refresh token usable.
	StateStaleRefreshable
	// StateExpired: both spent; terminal until a new grant exchange.
	StateExpired
)

// IdentityProfile is the persisted token state of one authenticated
// principal (human user or service account) in one realm. It is
// mutated only by grant-exchange outcomes, never by request-handling
// code directly.
type IdentityProfile struct {
	// Realm and Subject form the profile key. Subject is the
	// issuer-assigned unique id (the "sub" claim).
	Realm   string
	Subject string

	// PrincipalID references the local principal record bound to this
	// profile, empty for service accounts.
	PrincipalID string

	AccessToken     string
	AccessExpiresAt time.Time

	// RefreshToken and RefreshExpiresAt are both set or both zero; a
	// grant response without refresh data clears both.
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// State classifies the token pair at the given instant.
func (p *IdentityProfile) State(now time.Time) TokenState {
	if now.Before(p.AccessExpiresAt) {
		return StateFresh
	}
	if p.RefreshToken != "" && (p.RefreshExpiresAt.IsZero() || now.Before(p.RefreshExpiresAt)) {
		return StateStaleRefreshable
	}
	return StateExpired
}

// ApplyGrant overwrites the token fields from a successful exchange.
// Expiries are InitiateTime + duration, exactly. Absent refresh data
// clears both refresh fields, never one of the two.
func (p *IdentityProfile) ApplyGrant(grant *GrantResult) {
	p.AccessToken = grant.AccessToken
	p.AccessExpiresAt = grant.InitiateTime.Add(time.Duration(grant.ExpiresIn) * time.Second)

	if grant.RefreshToken == "" {
		p.RefreshToken = ""
		p.RefreshExpiresAt = time.Time{}
		return
	}

	p.RefreshToken = grant.RefreshToken
	if grant.RefreshExpiresIn > 0 {
		p.RefreshExpiresAt = grant.InitiateTime.Add(time.Duration(grant.RefreshExpiresIn) * time.Second)
	} else {
		p.RefreshExpiresAt = time.Time{}
	}
}

// Principal is the local identity record a profile can be bound to,
// built from ID-token claims at first login.
type Principal struct {
	ID         string
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
}

// ProfileStore persists identity profiles keyed by (realm, subject).
// Updates to a single profile must be atomic with respect to its own
// field set; the store never sees a half-written token pair.
type ProfileStore interface {
	// Get returns the profile for the key, or ErrProfileNotFound.
	Get(ctx context.Context, realm, subject string) (*IdentityProfile, error)

	// Save inserts or replaces the stored profile.
	Save(ctx context.Context, profile *IdentityProfile) error
}

// PrincipalBinder is an optional ProfileStore extension for stores
// that keep local principal records. BindPrincipal returns the id of
// the (created or existing) principal for the subject.
type PrincipalBinder interface {
	BindPrincipal(ctx context.Context, principal Principal) (string, error)
}

// MemoryStore is an in-memory ProfileStore. Good for tests, service
// accounts, and hosts without persistence requirements.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]IdentityProfile
}

// NewMemoryStore returns an empty in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]IdentityProfile)}
}

func (s *MemoryStore) key(realm, subject string) string {
	return realm + "\x00" + subject
}

// Get implements ProfileStore. The returned profile is a copy.
func (s *MemoryStore) Get(_ context.Context, realm, subject string) (*IdentityProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[s.key(realm, subject)]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

// Save implements ProfileStore.
func (s *MemoryStore) Save(_ context.Context, profile *IdentityProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[s.key(profile.Realm, profile.Subject)] = *profile
	return nil
}
