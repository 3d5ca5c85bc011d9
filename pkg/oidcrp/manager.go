package oidcrp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aussiebroadwan/realmkit/pkg/jwtx"
)

// ProfileManager owns the lifecycle of identity profiles: creating
// them from grant outcomes and keeping their access tokens usable.
//
// Token refresh is serialized per profile key. Keycloak refresh tokens
// rotate on use, so two concurrent refresh exchanges would invalidate
// each other; under the per-key lock, the loser of the race finds a
// fresh token and returns without a second exchange.
type ProfileManager struct {
	tokens *TokenClient
	store  ProfileStore

	mu    sync.Mutex
	locks map[string]*profileLock
}

// profileLock serializes work on one profile key. Entries are
// reference counted and dropped from the map once the last holder
// releases, so the map stays bounded by in-flight work rather than
// growing with every subject ever seen.
type profileLock struct {
	mu   sync.Mutex
	refs int
}

// NewProfileManager creates a manager on top of a token client and a
// profile store.
func NewProfileManager(tokens *TokenClient, store ProfileStore) *ProfileManager {
	return &ProfileManager{
		tokens: tokens,
		store:  store,
		locks:  make(map[string]*profileLock),
	}
}

// TokenClient returns the underlying token client.
func (m *ProfileManager) TokenClient() *TokenClient { return m.tokens }

// lockProfile acquires the per-profile lock and returns its release
// function.
func (m *ProfileManager) lockProfile(realm, subject string) func() {
	key := realm + "\x00" + subject

	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &profileLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// UpdateOrCreateFromCode redeems an authorization code and upserts the
// profile for the authenticated subject. New subjects get a principal
// record bound when the store keeps them.
func (m *ProfileManager) UpdateOrCreateFromCode(ctx context.Context, code, redirectURI string) (*IdentityProfile, error) {
	grant, err := m.tokens.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}

	return m.UpdateOrCreateFromGrant(ctx, grant)
}

// UpdateOrCreateFromGrant upserts the profile keyed by (realm,
// subject) from a successful grant exchange. The subject comes from
// the grant's ID claims, or from the access token when there are none
// (client-credentials grants).
func (m *ProfileManager) UpdateOrCreateFromGrant(ctx context.Context, grant *GrantResult) (*IdentityProfile, error) {
	claims := grant.IDClaims
	if claims == nil {
		var err error
		claims, err = m.tokens.DecodeWithoutAudience(ctx, grant.AccessToken)
		if err != nil {
			return nil, err
		}
	}
	if claims.Subject == "" {
		return nil, &TokenInvalidError{Reason: TokenMalformed, cause: errors.New("missing sub claim")}
	}

	realm := m.tokens.Resolver().Realm()

	unlock := m.lockProfile(realm, claims.Subject)
	defer unlock()

	profile, err := m.store.Get(ctx, realm, claims.Subject)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		profile = &IdentityProfile{Realm: realm, Subject: claims.Subject}
		if binder, ok := m.store.(PrincipalBinder); ok && grant.IDClaims != nil {
			id, err := binder.BindPrincipal(ctx, Principal{
				Subject:    claims.Subject,
				Email:      claims.Email,
				GivenName:  claims.GivenName,
				FamilyName: claims.FamilyName,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to bind principal: %w", err)
			}
			profile.PrincipalID = id
		}
	case err != nil:
		return nil, err
	}

	profile.ApplyGrant(grant)
	if err := m.store.Save(ctx, profile); err != nil {
		return nil, err
	}

	return profile, nil
}

// UpdateTokens applies a grant outcome to an existing profile without
// touching its identity fields, and persists it.
func (m *ProfileManager) UpdateTokens(ctx context.Context, profile *IdentityProfile, grant *GrantResult) error {
	unlock := m.lockProfile(profile.Realm, profile.Subject)
	defer unlock()

	profile.ApplyGrant(grant)
	return m.store.Save(ctx, profile)
}

// ActiveAccessToken returns a currently valid access token for the
// profile. A fresh token is returned without any I/O. An expired one
// is refreshed through the refresh token, updating the profile in
// place and in the store. When neither token is usable it fails with
// ErrTokensExpired; a failed refresh never clears the stored fields.
func (m *ProfileManager) ActiveAccessToken(ctx context.Context, profile *IdentityProfile) (string, error) {
	if profile.State(time.Now().UTC()) == StateFresh {
		return profile.AccessToken, nil
	}

	unlock := m.lockProfile(profile.Realm, profile.Subject)
	defer unlock()

	// Another handler may have refreshed while we waited on the lock;
	// pick up the stored state before deciding.
	if stored, err := m.store.Get(ctx, profile.Realm, profile.Subject); err == nil {
		*profile = *stored
	}

	switch profile.State(time.Now().UTC()) {
	case StateFresh:
		return profile.AccessToken, nil

	case StateStaleRefreshable:
		grant, err := m.tokens.ExchangeRefresh(ctx, profile.RefreshToken)
		if err != nil {
			// Leave the (already expired) fields as they are; state
			// is only overwritten by a successful exchange.
			return "", err
		}
		profile.ApplyGrant(grant)
		if err := m.store.Save(ctx, profile); err != nil {
			return "", err
		}
		return profile.AccessToken, nil

	default:
		return "", ErrTokensExpired
	}
}

// Entitlement requests an RPT for the profile and returns its decoded
// claims, including the granted UMA permissions.
func (m *ProfileManager) Entitlement(ctx context.Context, profile *IdentityProfile) (*jwtx.Claims, error) {
	token, err := m.ActiveAccessToken(ctx, profile)
	if err != nil {
		return nil, err
	}

	grant, err := m.tokens.ExchangeUMATicket(ctx, token)
	if err != nil {
		var ge *GrantExchangeError
		if errors.As(err, &ge) {
			return nil, fmt.Errorf("%w: %v", ErrEntitlementUnavailable, err)
		}
		return nil, err
	}

	// RPT audience is the realm's authorization services, not us.
	claims, err := m.tokens.DecodeWithoutAudience(ctx, grant.AccessToken)
	if err != nil {
		return nil, err
	}

	return claims, nil
}
