package oidcrp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/realmkit/pkg/jwtx"
	"github.com/aussiebroadwan/realmkit/pkg/realmx"
)

const grantTypeUMATicket = "urn:ietf:params:oauth:grant-type:uma-ticket"

// TokenClient performs grant exchanges for a confidential client and
// decodes tokens against the realm's cached signing keys.
type TokenClient struct {
	resolver *realmx.Resolver
	clientID string
	secret   string
	http     *http.Client
}

// NewTokenClient creates a token client for the given confidential
// client. Outbound calls share the resolver's HTTP client and its
// timeout policy.
func NewTokenClient(resolver *realmx.Resolver, clientID, secret string) *TokenClient {
	return &TokenClient{
		resolver: resolver,
		clientID: clientID,
		secret:   secret,
		http:     resolver.HTTPClient(),
	}
}

// ClientID returns the configured OAuth2 client id.
func (c *TokenClient) ClientID() string { return c.clientID }

// Resolver returns the realm resolver this client is bound to.
func (c *TokenClient) Resolver() *realmx.Resolver { return c.resolver }

// GrantResult is the outcome of a successful grant exchange.
// InitiateTime is captured immediately before the network call, so
// expiry arithmetic conservatively shortens the token lifetime rather
// than extending it by the request latency.
type GrantResult struct {
	AccessToken      string
	RefreshToken     string
	IDToken          string
	TokenType        string
	Scope            string
	ExpiresIn        int
	RefreshExpiresIn int

	// IDClaims are the validated ID-token claims; set on code
	// exchanges, nil for client-credentials grants.
	IDClaims *jwtx.Claims

	InitiateTime time.Time
}

// tokenResponse is the wire shape of the token endpoint response.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	IDToken          string `json:"id_token,omitempty"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope,omitempty"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
}

// ExchangeCode redeems an authorization code. The ID token in the
// response is decoded and validated against the realm's keys, issuer,
// and this client's audience before the result is returned.
func (c *TokenClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*GrantResult, error) {
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}

	grant, err := c.requestGrant(ctx, data)
	if err != nil {
		return nil, err
	}

	idToken := grant.IDToken
	if idToken == "" {
		// Realms without the openid scope issue no ID token; the
		// access token carries the identity claims instead.
		idToken = grant.AccessToken
	}

	claims, err := c.DecodeAndValidate(ctx, idToken)
	if err != nil {
		return nil, err
	}
	grant.IDClaims = claims

	return grant, nil
}

// ExchangeClientCredentials authenticates the client as itself. No
// user context, so there is no ID-token decode step.
func (c *TokenClient) ExchangeClientCredentials(ctx context.Context, scope string) (*GrantResult, error) {
	data := url.Values{
		"grant_type": {"client_credentials"},
	}
	if scope != "" {
		data.Set("scope", scope)
	}

	return c.requestGrant(ctx, data)
}

// ExchangeRefresh trades a refresh token for a new token pair.
func (c *TokenClient) ExchangeRefresh(ctx context.Context, refreshToken string) (*GrantResult, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	return c.requestGrant(ctx, data)
}

// ExchangeUMATicket requests an RPT for this client using an existing
// access token as authorization.
func (c *TokenClient) ExchangeUMATicket(ctx context.Context, accessToken string) (*GrantResult, error) {
	data := url.Values{
		"grant_type": {grantTypeUMATicket},
		"audience":   {c.clientID},
	}

	return c.requestGrant(ctx, data, withBearer(accessToken))
}

// DecodeAndValidate verifies a token's signature against the realm's
// cached JWKS and checks issuer and audience. A signature failure from
// an unknown key id triggers exactly one certs-cache invalidation and
// retry, which covers silent key rotation on the realm.
func (c *TokenClient) DecodeAndValidate(ctx context.Context, token string) (*jwtx.Claims, error) {
	return c.decode(ctx, token, []string{c.clientID})
}

// DecodeWithoutAudience is DecodeAndValidate minus the audience check.
// RPTs and service-account tokens name the realm's own services as
// audience, not this client.
func (c *TokenClient) DecodeWithoutAudience(ctx context.Context, token string) (*jwtx.Claims, error) {
	return c.decode(ctx, token, nil)
}

func (c *TokenClient) decode(ctx context.Context, token string, aud []string) (*jwtx.Claims, error) {
	issuer, err := c.resolver.Issuer(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := c.resolver.Keys(ctx)
	if err != nil {
		return nil, err
	}

	claims, err := jwtx.NewVerifier(keys, issuer, aud).Verify(token)
	if errors.Is(err, jwtx.ErrUnknownKID) {
		// The realm may have rotated its keys since we cached them.
		c.resolver.Invalidate(realmx.CacheCerts)
		keys, err = c.resolver.Keys(ctx)
		if err != nil {
			return nil, err
		}
		claims, err = jwtx.NewVerifier(keys, issuer, aud).Verify(token)
	}
	if err != nil {
		return nil, mapVerifyError(err)
	}

	return claims, nil
}

// mapVerifyError folds jwtx sentinels into the TokenInvalidError
// taxonomy surfaced to callers.
func mapVerifyError(err error) error {
	reason := TokenMalformed
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		reason = TokenExpired
	case errors.Is(err, jwtx.ErrIssuer):
		reason = TokenIssuerMismatch
	case errors.Is(err, jwtx.ErrAudience):
		reason = TokenAudienceMismatch
	case errors.Is(err, jwtx.ErrInvalidSig), errors.Is(err, jwtx.ErrUnknownKID):
		reason = TokenBadSignature
	case errors.Is(err, jwtx.ErrNotYetValid):
		reason = TokenExpired
	}
	return &TokenInvalidError{Reason: reason, cause: err}
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *TokenClient) requestGrant(ctx context.Context, data url.Values, opts ...requestOption) (*GrantResult, error) {
	data.Set("client_id", c.clientID)
	if c.secret != "" {
		data.Set("client_secret", c.secret)
	}

	// Captured before the network call so latency only ever shortens
	// the effective token lifetime.
	initiateTime := time.Now().UTC()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.resolver.TokenEndpoint(),
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.resolver.ApplyHeaders(req)
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, &GrantExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &GrantResult{
		AccessToken:      tr.AccessToken,
		RefreshToken:     tr.RefreshToken,
		IDToken:          tr.IDToken,
		TokenType:        tr.TokenType,
		Scope:            tr.Scope,
		ExpiresIn:        tr.ExpiresIn,
		RefreshExpiresIn: tr.RefreshExpiresIn,
		InitiateTime:     initiateTime,
	}, nil
}
