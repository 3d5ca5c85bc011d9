package oidcrp

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExchangeCode(t *testing.T) {
	t.Parallel()

	f := newFakeRealm(t)
	client := newTestClient(t, f)

	var seen url.Values
	f.grantHook = func(form url.Values, _ http.ResponseWriter) bool {
		seen = form
		return false
	}

	grant, err := client.ExchangeCode(context.Background(), "auth-code", "https://app.example.com/callback")
	require.NoError(t, err)

	require.Equal(t, "authorization_code", seen.Get("grant_type"))
	require.Equal(t, "auth-code", seen.Get("code"))
	require.Equal(t, "https://app.example.com/callback", seen.Get("redirect_uri"))
	require.Equal(t, testClientID, seen.Get("client_id"))
	require.Equal(t, "s3cret", seen.Get("client_secret"))

	require.NotEmpty(t, grant.AccessToken)
	require.Equal(t, "refresh-opaque", grant.RefreshToken)
	require.Equal(t, 600, grant.ExpiresIn)
	require.Equal(t, 3600, grant.RefreshExpiresIn)
	require.False(t, grant.InitiateTime.IsZero())

	require.NotNil(t, grant.IDClaims)
	require.Equal(t, "user-1", grant.IDClaims.Subject)
	require.Equal(t, "user-1@example.com", grant.IDClaims.Email)
}

func TestExchangeClientCredentials(t *testing.T) {
	t.Parallel()

	f := newFakeRealm(t)
	client := newTestClient(t, f)

	grant, err := client.ExchangeClientCredentials(context.Background(), ServiceAccountScope)
	require.NoError(t, err)

	require.NotEmpty(t, grant.AccessToken)
	require.Empty(t, grant.RefreshToken)
	require.Nil(t, grant.IDClaims)
	require.Equal(t, ServiceAccountScope, grant.Scope)

	claims, err := client.DecodeWithoutAudience(context.Background(), grant.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "service-account-"+testClientID, claims.Subject)
}

func TestExchangeFailureSurfacesBody(t *testing.T) {
	t.Parallel()

	f := newFakeRealm(t)
	client := newTestClient(t, f)

	f.grantHook = func(_ url.Values, w http.ResponseWriter) bool {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return true
	}

	_, err := client.ExchangeRefresh(context.Background(), "spent-token")
	require.Error(t, err)

	var ge *GrantExchangeError
	require.ErrorAs(t, err, &ge)
	require.Equal(t, http.StatusBadRequest, ge.Status)
	require.Contains(t, ge.Body, "invalid_grant")
}

func TestDecodeAndValidate(t *testing.T) {
	t.Parallel()

	f := newFakeRealm(t)
	client := newTestClient(t, f)
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		claims, err := client.DecodeAndValidate(ctx, f.userToken("user-7"))
		require.NoError(t, err)
		require.Equal(t, "user-7", claims.Subject)
	})

	t.Run("wrong audience", func(t *testing.T) {
		_, err := client.DecodeAndValidate(ctx, f.sign(f.claims("user-7", "other-client", 5*time.Minute)))

		var tie *TokenInvalidError
		require.ErrorAs(t, err, &tie)
		require.Equal(t, TokenAudienceMismatch, tie.Reason)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := client.DecodeAndValidate(ctx, "not-a-jwt")

		var tie *TokenInvalidError
		require.ErrorAs(t, err, &tie)
		require.Equal(t, TokenMalformed, tie.Reason)
	})
}

func TestDecodeRetriesOnceAfterKeyRotation(t *testing.T) {
	t.Parallel()

	f := newFakeRealm(t)
	client := newTestClient(t, f)
	ctx := context.Background()

	// Warm the key cache on the original key.
	_, err := client.DecodeAndValidate(ctx, f.userToken("user-1"))
	require.NoError(t, err)
	require.Equal(t, int32(1), f.jwksHits.Load())

	// The realm rotates its keys behind our back; a token signed by
	// the new key triggers one invalidate-and-refetch, then verifies.
	f.rotate()
	claims, err := client.DecodeAndValidate(ctx, f.userToken("user-2"))
	require.NoError(t, err)
	require.Equal(t, "user-2", claims.Subject)
	require.Equal(t, int32(2), f.jwksHits.Load())

	// A token whose kid the realm never served fails after exactly one
	// extra fetch, not a fetch per attempt.
	stale := f.kid
	f.kid = "key-404"
	badToken := f.userToken("user-3")
	f.kid = stale

	_, err = client.DecodeAndValidate(ctx, badToken)
	var tie *TokenInvalidError
	require.ErrorAs(t, err, &tie)
	require.Equal(t, TokenBadSignature, tie.Reason)
	require.Equal(t, int32(3), f.jwksHits.Load())
}
