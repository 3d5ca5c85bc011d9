package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/realmkit/pkg/idx"
	"github.com/aussiebroadwan/realmkit/pkg/oidcrp"
)

// ProfileAdapter exposes a Store as the oidcrp.ProfileStore and
// oidcrp.PrincipalBinder the profile manager consumes.
type ProfileAdapter struct {
	store Store
}

// NewProfileAdapter wraps a store for the profile manager.
func NewProfileAdapter(st Store) *ProfileAdapter {
	return &ProfileAdapter{store: st}
}

// Get implements oidcrp.ProfileStore.
func (a *ProfileAdapter) Get(ctx context.Context, realm, subject string) (*oidcrp.IdentityProfile, error) {
	profile, err := a.store.Profiles().Get(ctx, realm, subject)
	if errors.Is(err, ErrNotFound) {
		return nil, oidcrp.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Save implements oidcrp.ProfileStore.
func (a *ProfileAdapter) Save(ctx context.Context, profile *oidcrp.IdentityProfile) error {
	return a.store.Profiles().Upsert(ctx, *profile)
}

// BindPrincipal implements oidcrp.PrincipalBinder: returning the
// existing principal for the subject, or creating one with a fresh
// ULID at first login.
func (a *ProfileAdapter) BindPrincipal(ctx context.Context, principal oidcrp.Principal) (string, error) {
	existing, err := a.store.Principals().GetBySubject(ctx, principal.Subject)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	principal.ID = idx.New().String()
	if err := a.store.Principals().Create(ctx, principal); err != nil {
		return "", err
	}
	return principal.ID, nil
}
