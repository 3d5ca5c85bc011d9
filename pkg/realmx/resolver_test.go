package realmx

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/realmkit/pkg/jwtx"
)

func TestNewServer(t *testing.T) {
	t.Parallel()

	t.Run("strips trailing slash", func(t *testing.T) {
		s, err := NewServer("https://id.example.com/", "")
		require.NoError(t, err)
		require.Equal(t, "https://id.example.com", s.URL)
		require.False(t, s.Split())
	})

	t.Run("rejects non-http scheme", func(t *testing.T) {
		_, err := NewServer("ldap://id.example.com", "")
		require.Error(t, err)
	})

	t.Run("rejects bad internal url", func(t *testing.T) {
		_, err := NewServer("https://id.example.com", "file:///etc")
		require.Error(t, err)
	})

	t.Run("internal url wins as effective base", func(t *testing.T) {
		s, err := NewServer("https://public.example.com", "https://internal.example.com")
		require.NoError(t, err)
		require.Equal(t, "https://internal.example.com", s.EffectiveBase())
		require.True(t, s.Split())
	})
}

func TestEffectiveHeaders(t *testing.T) {
	t.Parallel()

	t.Run("split https server", func(t *testing.T) {
		s, err := NewServer("https://public.example.com", "https://internal.example.com")
		require.NoError(t, err)
		r := NewResolver(s, "demo")

		headers := r.EffectiveHeaders()
		require.Equal(t, map[string]string{
			"Host":              "public.example.com",
			"X-Forwarded-Proto": "https",
		}, headers)
		require.Contains(t, r.Endpoint("realms/demo"), "internal.example.com")
	})

	t.Run("split plain http public", func(t *testing.T) {
		s, err := NewServer("http://public.example.com", "http://internal.example.com")
		require.NoError(t, err)
		r := NewResolver(s, "demo")

		headers := r.EffectiveHeaders()
		require.Equal(t, map[string]string{"Host": "public.example.com"}, headers)
	})

	t.Run("no internal url means no headers", func(t *testing.T) {
		s, err := NewServer("https://public.example.com", "")
		require.NoError(t, err)
		r := NewResolver(s, "demo")

		require.Empty(t, r.EffectiveHeaders())
	})
}

func TestEndpointJoining(t *testing.T) {
	t.Parallel()

	s, err := NewServer("https://id.example.com", "")
	require.NoError(t, err)
	r := NewResolver(s, "test-realm")

	require.Equal(t,
		"https://id.example.com/realms/test-realm/protocol/openid-connect/token",
		r.TokenEndpoint(),
	)
	require.Equal(t,
		"https://id.example.com/realms/test-realm/.well-known/openid-configuration",
		r.RealmEndpoint("/.well-known/openid-configuration"),
	)
}

// fakeRealm serves a minimal discovery document and JWKS, counting hits.
type fakeRealm struct {
	srv           *httptest.Server
	discoveryHits atomic.Int32
	jwksHits      atomic.Int32
	jwks          jwtx.JWKS
	issuer        string
}

func newFakeRealm(t *testing.T, realm string) *fakeRealm {
	t.Helper()

	f := &fakeRealm{}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	f.jwks = jwtx.JWKS{Keys: []jwtx.JWK{jwtx.NewRSAJWK("kid-1", "sig", "RS256", &priv.PublicKey)}}

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/"+realm+"/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		f.discoveryHits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":         f.issuer,
			"token_endpoint": f.issuer + "/protocol/openid-connect/token",
			"jwks_uri":       f.issuer + "/protocol/openid-connect/certs",
		})
	})
	mux.HandleFunc("/realms/"+realm+"/protocol/openid-connect/certs", func(w http.ResponseWriter, _ *http.Request) {
		f.jwksHits.Add(1)
		_ = json.NewEncoder(w).Encode(f.jwks)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	f.issuer = f.srv.URL + "/realms/" + realm

	return f
}

func TestDiscoveryCaching(t *testing.T) {
	t.Parallel()

	fake := newFakeRealm(t, "demo")
	s, err := NewServer(fake.srv.URL, "")
	require.NoError(t, err)
	r := NewResolver(s, "demo")

	ctx := context.Background()

	doc, err := r.Discovery(ctx)
	require.NoError(t, err)
	require.Equal(t, fake.issuer, doc.Issuer)
	require.NotEmpty(t, doc.Raw)

	// Second call answers from cache, exactly one network fetch.
	_, err = r.Discovery(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(1), fake.discoveryHits.Load())

	// Invalidation forces a refetch.
	r.Invalidate(CacheDiscovery)
	_, err = r.Discovery(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(2), fake.discoveryHits.Load())
}

func TestKeysCaching(t *testing.T) {
	t.Parallel()

	fake := newFakeRealm(t, "demo")
	s, err := NewServer(fake.srv.URL, "")
	require.NoError(t, err)
	r := NewResolver(s, "demo")

	ctx := context.Background()

	keys, err := r.Keys(ctx)
	require.NoError(t, err)
	_, err = keys.Get("kid-1")
	require.NoError(t, err)

	_, err = r.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(1), fake.jwksHits.Load())

	r.Invalidate(CacheCerts)
	_, err = r.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(2), fake.jwksHits.Load())
}

func TestDiscoveryFailureLeavesCacheIntact(t *testing.T) {
	t.Parallel()

	fake := newFakeRealm(t, "demo")
	s, err := NewServer(fake.srv.URL, "")
	require.NoError(t, err)
	r := NewResolver(s, "demo")

	ctx := context.Background()

	doc, err := r.Discovery(ctx)
	require.NoError(t, err)

	// Realm goes away; the cached copy keeps serving.
	fake.srv.Close()

	again, err := r.Discovery(ctx)
	require.NoError(t, err)
	require.Equal(t, doc.Issuer, again.Issuer)

	// Only after explicit invalidation does the failure surface, and it
	// is typed.
	r.Invalidate(CacheBoth)
	_, err = r.Discovery(ctx)
	require.ErrorIs(t, err, ErrDiscoveryUnavailable)
	_, err = r.Keys(ctx)
	require.ErrorIs(t, err, ErrKeySetUnavailable)
}

func TestIssuerRewriting(t *testing.T) {
	t.Parallel()

	t.Run("no internal url returns issuer verbatim", func(t *testing.T) {
		fake := newFakeRealm(t, "demo")
		s, err := NewServer(fake.srv.URL, "")
		require.NoError(t, err)
		r := NewResolver(s, "demo")

		issuer, err := r.Issuer(context.Background())
		require.NoError(t, err)
		require.Equal(t, fake.issuer, issuer)
	})

	t.Run("internal prefix replaced with public base once", func(t *testing.T) {
		fake := newFakeRealm(t, "demo")
		// The fake realm advertises its own (internal) URL as issuer.
		s, err := NewServer("https://public.example.com", fake.srv.URL)
		require.NoError(t, err)
		r := NewResolver(s, "demo")

		issuer, err := r.Issuer(context.Background())
		require.NoError(t, err)
		require.Equal(t, "https://public.example.com/realms/demo", issuer)
	})
}

func TestSeededCaches(t *testing.T) {
	t.Parallel()

	s, err := NewServer("https://unreachable.example.com", "")
	require.NoError(t, err)

	doc := &DiscoveryDocument{Issuer: "https://unreachable.example.com/realms/demo"}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwks := jwtx.JWKS{Keys: []jwtx.JWK{jwtx.NewRSAJWK("seeded", "sig", "RS256", &priv.PublicKey)}}

	r := NewResolver(s, "demo", WithCachedDiscovery(doc), WithCachedCerts(jwks))

	// No network reachable, both answers come from the seeds.
	got, err := r.Discovery(context.Background())
	require.NoError(t, err)
	require.Equal(t, doc.Issuer, got.Issuer)

	keys, err := r.Keys(context.Background())
	require.NoError(t, err)
	_, err = keys.Get("seeded")
	require.NoError(t, err)
}
