package realmx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/realmkit/pkg/jwtx"
)

// CacheScope names which cached realm document(s) to invalidate.
type CacheScope int

const (
	CacheCerts CacheScope = iota
	CacheDiscovery
	CacheBoth
)

// DiscoveryDocument is the realm's OIDC discovery document. Raw keeps
// the fetched bytes verbatim so the surrounding application can persist
// the document and seed a resolver with it later.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri"`

	Raw json.RawMessage `json:"-"`
}

// Resolver resolves endpoints for one realm and owns its cached
// discovery document and key set. It is safe for concurrent use; the
// caches are read-mostly and a lost refresh race only costs an extra
// fetch of the same authoritative document.
type Resolver struct {
	server Server
	realm  string
	client *http.Client

	mu        sync.RWMutex
	wellKnown *DiscoveryDocument
	keys      *jwtx.KeySet
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient overrides the HTTP client used for discovery and JWKS
// fetches. The client must carry a bounded timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithCachedDiscovery seeds the resolver with a previously persisted
// discovery document, skipping the first network fetch.
func WithCachedDiscovery(doc *DiscoveryDocument) Option {
	return func(r *Resolver) { r.wellKnown = doc }
}

// WithCachedCerts seeds the resolver with a previously persisted JWKS.
func WithCachedCerts(jwks jwtx.JWKS) Option {
	return func(r *Resolver) {
		keys := jwtx.NewKeySet()
		if err := keys.ResetFromJWKS(jwks); err == nil {
			r.keys = keys
		}
	}
}

// NewResolver creates a resolver for the named realm on the server.
func NewResolver(server Server, realm string, opts ...Option) *Resolver {
	r := &Resolver{
		server: server,
		realm:  realm,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Realm returns the realm name.
func (r *Resolver) Realm() string { return r.realm }

// Server returns the configured server.
func (r *Resolver) Server() Server { return r.server }

// HTTPClient returns the HTTP client used for realm requests, so token
// and UMA clients share its timeout policy.
func (r *Resolver) HTTPClient() *http.Client { return r.client }

// Endpoint joins the realm's effective base URL with the given path.
func (r *Resolver) Endpoint(path string) string {
	return r.server.EffectiveBase() + "/" + strings.TrimPrefix(path, "/")
}

// RealmEndpoint joins the effective base with a path under
// /realms/{name}/.
func (r *Resolver) RealmEndpoint(suffix string) string {
	return r.Endpoint("realms/" + r.realm + "/" + strings.TrimPrefix(suffix, "/"))
}

// TokenEndpoint returns the realm's token endpoint on the effective base.
func (r *Resolver) TokenEndpoint() string {
	return r.RealmEndpoint("protocol/openid-connect/token")
}

// EffectiveHeaders returns the headers a request to the effective base
// must carry to preserve the public identity. Empty when the realm has
// no internal URL.
func (r *Resolver) EffectiveHeaders() map[string]string {
	if !r.server.Split() {
		return map[string]string{}
	}

	headers := map[string]string{}
	if pub, err := url.Parse(r.server.URL); err == nil {
		headers["Host"] = pub.Host
		if pub.Scheme == "https" {
			headers["X-Forwarded-Proto"] = "https"
		}
	}
	return headers
}

// ApplyHeaders sets the effective headers on an outbound request.
// The Host header needs special treatment in net/http, it lives on
// Request.Host rather than the header map.
func (r *Resolver) ApplyHeaders(req *http.Request) {
	for k, v := range r.EffectiveHeaders() {
		if http.CanonicalHeaderKey(k) == "Host" {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}
}

// Discovery returns the cached discovery document, fetching it from
// {base}/realms/{name}/.well-known/openid-configuration on first use.
// A failed fetch never evicts a previously cached document.
func (r *Resolver) Discovery(ctx context.Context) (*DiscoveryDocument, error) {
	r.mu.RLock()
	cached := r.wellKnown
	r.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	doc, err := r.fetchDiscovery(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.wellKnown = doc
	r.mu.Unlock()

	return doc, nil
}

// Keys returns the realm's cached key set, fetching the JWKS on first
// use. The JWKS location comes from the discovery document's jwks_uri;
// if discovery is unavailable the conventional certs endpoint is used.
func (r *Resolver) Keys(ctx context.Context) (*jwtx.KeySet, error) {
	r.mu.RLock()
	cached := r.keys
	r.mu.RUnlock()
	if cached != nil && cached.IsReady() {
		return cached, nil
	}

	jwksURL := r.RealmEndpoint("protocol/openid-connect/certs")
	if doc, err := r.Discovery(ctx); err == nil && doc.JWKSURI != "" {
		jwksURL = r.RewriteToEffective(doc.JWKSURI)
	}

	raw, err := r.get(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}

	jwks, err := jwtx.ParseJWKS(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}

	keys := jwtx.NewKeySet()
	if err := keys.ResetFromJWKS(jwks); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}

	r.mu.Lock()
	r.keys = keys
	r.mu.Unlock()

	return keys, nil
}

// Issuer returns the issuer claim token consumers must validate
// against. When the realm is reached through an internal URL, any
// internal-base prefix in the discovered issuer is replaced with the
// public base exactly once, since consumers resolve the public URL.
func (r *Resolver) Issuer(ctx context.Context) (string, error) {
	doc, err := r.Discovery(ctx)
	if err != nil {
		return "", err
	}

	issuer := doc.Issuer
	if r.server.Split() {
		issuer = strings.Replace(issuer, r.server.InternalURL, r.server.URL, 1)
	}
	return issuer, nil
}

// Invalidate clears the named cache(s); the next access re-fetches.
func (r *Resolver) Invalidate(scope CacheScope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch scope {
	case CacheCerts:
		r.keys = nil
	case CacheDiscovery:
		r.wellKnown = nil
	case CacheBoth:
		r.keys = nil
		r.wellKnown = nil
	}
}

func (r *Resolver) fetchDiscovery(ctx context.Context) (*DiscoveryDocument, error) {
	raw, err := r.get(ctx, r.RealmEndpoint(".well-known/openid-configuration"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryUnavailable, err)
	}

	var doc DiscoveryDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryUnavailable, err)
	}
	if doc.Issuer == "" {
		return nil, fmt.Errorf("%w: document missing issuer", ErrDiscoveryUnavailable)
	}
	doc.Raw = raw

	return &doc, nil
}

// RewriteToEffective maps a URL the realm advertised on its public base
// back onto the reachable base.
func (r *Resolver) RewriteToEffective(u string) string {
	if !r.server.Split() {
		return u
	}
	return strings.Replace(u, r.server.URL, r.server.InternalURL, 1)
}

func (r *Resolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	r.ApplyHeaders(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	// 1MB is plenty for a discovery document or key set.
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
