package oidcrp

import (
	"context"
	"strings"

	"github.com/aussiebroadwan/realmkit/pkg/jwtx"
)

// AuthenticateBearer validates the value of an Authorization header
// and returns the claims of the carried access token. Failures carry
// an AuthError classifying what went wrong, suitable for building a
// WWW-Authenticate challenge.
func (c *TokenClient) AuthenticateBearer(ctx context.Context, header string) (*jwtx.Claims, error) {
	if header == "" {
		return nil, &AuthError{Reason: AuthMissingHeader}
	}

	scheme, rest, found := strings.Cut(header, " ")
	if !found {
		rest = ""
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return nil, &AuthError{Reason: AuthInvalidScheme}
	}

	token := strings.TrimSpace(rest)
	if token == "" {
		return nil, &AuthError{Reason: AuthMalformedToken}
	}

	claims, err := c.DecodeAndValidate(ctx, token)
	if err != nil {
		return nil, &AuthError{Reason: AuthTokenInvalid, cause: err}
	}

	return claims, nil
}
