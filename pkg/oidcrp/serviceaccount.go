package oidcrp

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ServiceAccountScope is requested on every client-credentials
// exchange. realm-management covers the admin operations a backend
// typically performs with its service account; openid keeps the token
// a standard OIDC access token.
const ServiceAccountScope = "realm-management openid"

// ServiceAccountClient maintains the client's own identity: a profile
// backed by the client-credentials grant, created lazily on first use
// and renewed like any other profile.
//
// The cached profile is held by value and only copies of it ever
// leave the mutex, so concurrent callers never share a struct one of
// them is writing.
type ServiceAccountClient struct {
	manager *ProfileManager

	mu      sync.Mutex
	ready   bool
	profile IdentityProfile
}

// NewServiceAccountClient creates a service account client on top of
// an existing profile manager.
func NewServiceAccountClient(manager *ProfileManager) *ServiceAccountClient {
	return &ServiceAccountClient{manager: manager}
}

// Profile returns a snapshot of the service account's identity
// profile, performing the initial client-credentials exchange if none
// exists yet. The returned struct is the caller's own copy.
func (s *ServiceAccountClient) Profile(ctx context.Context) (*IdentityProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		profile, err := s.exchangeLocked(ctx)
		if err != nil {
			return nil, err
		}
		s.profile = *profile
		s.ready = true
	}

	snapshot := s.profile
	return &snapshot, nil
}

// AccessToken returns a currently valid access token for the service
// account. Service account grants often come without a refresh token,
// so an expired profile is recovered with a fresh client-credentials
// exchange rather than surfaced as an error.
func (s *ServiceAccountClient) AccessToken(ctx context.Context) (string, error) {
	profile, err := s.Profile(ctx)
	if err != nil {
		return "", err
	}

	token, err := s.manager.ActiveAccessToken(ctx, profile)
	if err == nil {
		s.publish(profile)
		return token, nil
	}
	if !errors.Is(err, ErrTokensExpired) {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have already recovered while this one was
	// reaching the expired conclusion.
	if s.ready && s.profile.State(time.Now().UTC()) == StateFresh {
		return s.profile.AccessToken, nil
	}

	fresh, exchErr := s.exchangeLocked(ctx)
	if exchErr != nil {
		return "", exchErr
	}
	s.profile = *fresh
	s.ready = true
	return fresh.AccessToken, nil
}

// publish replaces the cached profile with a copy the manager may
// have refreshed.
func (s *ServiceAccountClient) publish(profile *IdentityProfile) {
	s.mu.Lock()
	s.profile = *profile
	s.mu.Unlock()
}

func (s *ServiceAccountClient) exchangeLocked(ctx context.Context) (*IdentityProfile, error) {
	grant, err := s.manager.TokenClient().ExchangeClientCredentials(ctx, ServiceAccountScope)
	if err != nil {
		return nil, err
	}

	profile, err := s.manager.UpdateOrCreateFromGrant(ctx, grant)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Stale is true when the cached profile would need a network exchange
// to produce a usable token.
func (s *ServiceAccountClient) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ready || s.profile.State(time.Now().UTC()) != StateFresh
}
