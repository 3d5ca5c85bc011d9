package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/realmkit/pkg/oidcrp"
)

var (
	ErrNotFound = errors.New("store: not found")
)

// Store is the root data access interface. Concrete drivers (sqlite)
// implement this. It exposes sub-repositories to keep concerns tidy
// and testable.
type Store interface {
	Profiles() Profiles
	Principals() Principals

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Profiles persists per-identity token state keyed by (realm, subject).
type Profiles interface {
	// Get returns the profile for the key, or ErrNotFound.
	Get(ctx context.Context, realm, subject string) (oidcrp.IdentityProfile, error)

	// Upsert inserts or replaces the stored profile.
	Upsert(ctx context.Context, profile oidcrp.IdentityProfile) error

	// Delete removes a profile; deleting a missing profile is not an
	// error.
	Delete(ctx context.Context, realm, subject string) error
}

// Principals keeps the local identity records bound to profiles at
// first login.
type Principals interface {
	// GetBySubject returns the principal for an issuer subject, or
	// ErrNotFound.
	GetBySubject(ctx context.Context, subject string) (oidcrp.Principal, error)

	// Create inserts a new principal record.
	Create(ctx context.Context, principal oidcrp.Principal) error
}
