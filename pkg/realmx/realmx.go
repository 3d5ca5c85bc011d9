// Package realmx resolves how a relying party reaches an OIDC realm and
// caches the realm's discovery document and signing keys.
//
// A realm can sit behind a split network path: a public base URL that
// token consumers see, and an internal base URL that is actually
// reachable from this process. Requests are sent to the internal URL
// while the Host header and issuer validation keep the public identity,
// so TLS virtual-hosting and issuer claims keep working.
package realmx

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrDiscoveryUnavailable wraps network or non-2xx failures while
	// fetching the realm's OIDC discovery document.
	ErrDiscoveryUnavailable = errors.New("realmx: discovery document unavailable")

	// ErrKeySetUnavailable wraps network or non-2xx failures while
	// fetching the realm's JWKS.
	ErrKeySetUnavailable = errors.New("realmx: key set unavailable")
)

// Server is an identity server reachable by this process. URL is the
// public base every token consumer resolves; InternalURL, when set, is
// an alternate base used for the actual requests.
type Server struct {
	URL         string
	InternalURL string
}

// NewServer validates and normalizes the server URLs. Both must be
// http or https; trailing slashes are stripped so endpoint joining is
// deterministic.
func NewServer(publicURL, internalURL string) (Server, error) {
	pub, err := parseBase(publicURL)
	if err != nil {
		return Server{}, fmt.Errorf("realmx: invalid server url: %w", err)
	}

	s := Server{URL: pub}

	if internalURL != "" {
		in, err := parseBase(internalURL)
		if err != nil {
			return Server{}, fmt.Errorf("realmx: invalid internal url: %w", err)
		}
		s.InternalURL = in
	}

	return s, nil
}

// EffectiveBase returns the base URL requests should actually target.
func (s Server) EffectiveBase() string {
	if s.InternalURL != "" {
		return s.InternalURL
	}
	return s.URL
}

// Split reports whether the server uses a separate internal URL.
func (s Server) Split() bool {
	return s.InternalURL != "" && s.InternalURL != s.URL
}

func parseBase(raw string) (string, error) {
	raw = strings.TrimSuffix(raw, "/")
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	return raw, nil
}
