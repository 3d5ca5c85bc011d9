// Package oidcrp is an OpenID-Connect relying-party client for
// Keycloak-style identity servers.
//
// It performs the grant exchanges a relying party needs
// (authorization_code, refresh_token, client_credentials), validates
// bearer tokens against the realm's cached signing keys, and keeps
// per-identity token state with safe concurrent renewal.
//
// # Basic usage
//
//	server, err := realmx.NewServer("https://id.example.com", "")
//	if err != nil { ... }
//
//	resolver := realmx.NewResolver(server, "my-realm")
//	tokens := oidcrp.NewTokenClient(resolver, "my-client", secret)
//	profiles := oidcrp.NewProfileManager(tokens, oidcrp.NewMemoryStore())
//
//	// Login callback: turn an authorization code into a profile.
//	profile, err := profiles.UpdateOrCreateFromCode(ctx, code, redirectURI)
//
//	// Later: always get a non-expired access token. Refreshes
//	// transparently, one refresh in flight per profile.
//	accessToken, err := profiles.ActiveAccessToken(ctx, profile)
//
// # Inbound requests
//
//	claims, err := tokens.AuthenticateBearer(ctx, r.Header.Get("Authorization"))
//
// A failed authentication is always an *AuthError whose Reason maps
// onto the WWW-Authenticate response the host should produce; see
// pkg/httpx for ready-made middleware.
//
// # Service accounts
//
// A confidential client's own machine identity is handled by
// ServiceAccountClient, which re-authenticates on its own when the
// token pair runs out:
//
//	sa := oidcrp.NewServiceAccountClient(profiles)
//	token, err := sa.AccessToken(ctx)
//
// That token is what UMAResourceClient expects when registering
// protected resources with the realm.
package oidcrp
