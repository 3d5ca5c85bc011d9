package oidcrp

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/realmkit/pkg/jwtx"
	"github.com/aussiebroadwan/realmkit/pkg/realmx"
)

const (
	testRealm    = "test"
	testClientID = "resourced"
)

// fakeRealm is an httptest stand-in for a Keycloak-style realm: it
// serves discovery, JWKS, and a token endpoint that signs real tokens
// with an in-memory RSA key.
type fakeRealm struct {
	t    *testing.T
	priv *rsa.PrivateKey
	kid  string
	srv  *httptest.Server
	mux  *http.ServeMux

	tokenHits atomic.Int32
	jwksHits  atomic.Int32
	serial    atomic.Int64

	// grantHook intercepts token-endpoint calls; returning true means
	// the hook wrote the response.
	grantHook func(form url.Values, w http.ResponseWriter) bool
}

func newFakeRealm(t *testing.T) *fakeRealm {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeRealm{t: t, priv: priv, kid: "key-1"}

	f.mux = http.NewServeMux()
	f.mux.HandleFunc("/realms/test/.well-known/openid-configuration", f.handleDiscovery)
	f.mux.HandleFunc("/realms/test/protocol/openid-connect/certs", f.handleJWKS)
	f.mux.HandleFunc("/realms/test/protocol/openid-connect/token", f.handleToken)

	f.srv = httptest.NewServer(f.mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRealm) issuer() string { return f.srv.URL + "/realms/" + testRealm }

// rotate swaps the signing key, as a realm admin rotating realm keys
// would. The old kid disappears from the served JWKS.
func (f *fakeRealm) rotate() {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(f.t, err)
	f.priv = priv
	f.kid = "key-2"
}

func (f *fakeRealm) claims(sub, aud string, ttl time.Duration) jwtx.Claims {
	now := time.Now().UTC()
	return jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			// A serial jti keeps every minted token distinct even
			// within the same second.
			ID:        fmt.Sprintf("tok-%d", f.serial.Add(1)),
			Issuer:    f.issuer(),
			Subject:   sub,
			Audience:  jwt.ClaimStrings{aud},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Typ:        "Bearer",
		Email:      sub + "@example.com",
		GivenName:  "Test",
		FamilyName: "User",
	}
}

func (f *fakeRealm) sign(claims jwtx.Claims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &claims)
	token.Header["kid"] = f.kid
	signed, err := token.SignedString(f.priv)
	require.NoError(f.t, err)
	return signed
}

// userToken mints a token addressed to the client under test, as the
// realm would for an authenticated user.
func (f *fakeRealm) userToken(sub string) string {
	return f.sign(f.claims(sub, testClientID, 5*time.Minute))
}

func (f *fakeRealm) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]string{
		"issuer":         f.issuer(),
		"token_endpoint": f.issuer() + "/protocol/openid-connect/token",
		"jwks_uri":       f.issuer() + "/protocol/openid-connect/certs",
	})
}

func (f *fakeRealm) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	f.jwksHits.Add(1)
	_ = json.NewEncoder(w).Encode(jwtx.JWKS{
		Keys: []jwtx.JWK{jwtx.NewRSAJWK(f.kid, "sig", "RS256", &f.priv.PublicKey)},
	})
}

func (f *fakeRealm) handleToken(w http.ResponseWriter, r *http.Request) {
	f.tokenHits.Add(1)
	require.NoError(f.t, r.ParseForm())

	if f.grantHook != nil && f.grantHook(r.PostForm, w) {
		return
	}

	grantType := r.PostForm.Get("grant_type")

	resp := map[string]any{
		"token_type": "Bearer",
		"expires_in": 600,
	}

	switch grantType {
	case "client_credentials":
		sub := "service-account-" + r.PostForm.Get("client_id")
		resp["access_token"] = f.sign(f.claims(sub, "account", 10*time.Minute))
		resp["scope"] = r.PostForm.Get("scope")

	case "authorization_code", "refresh_token":
		resp["access_token"] = f.sign(f.claims("user-1", "account", 10*time.Minute))
		resp["id_token"] = f.userToken("user-1")
		resp["refresh_token"] = "refresh-opaque"
		resp["refresh_expires_in"] = 3600

	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unsupported_grant_type"}`))
		return
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// newTestClient wires a TokenClient against the fake realm.
func newTestClient(t *testing.T, f *fakeRealm) *TokenClient {
	t.Helper()

	server, err := realmx.NewServer(f.srv.URL, "")
	require.NoError(t, err)

	resolver := realmx.NewResolver(server, testRealm)
	return NewTokenClient(resolver, testClientID, "s3cret")
}
