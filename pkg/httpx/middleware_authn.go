package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/realmkit/pkg/jwtx"
	"github.com/aussiebroadwan/realmkit/pkg/oidcrp"
	"github.com/aussiebroadwan/realmkit/pkg/slogx"
)

// BearerAuthenticator validates a raw Authorization header value.
// *oidcrp.TokenClient satisfies this.
type BearerAuthenticator interface {
	AuthenticateBearer(ctx context.Context, header string) (*jwtx.Claims, error)
}

// AuthnMiddleware authenticates requests with the realm's bearer
// tokens and injects the verified identity into the request context.
// Failures answer 401 with a sanitized WWW-Authenticate challenge.
func AuthnMiddleware(auth BearerAuthenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			claims, err := auth.AuthenticateBearer(ctx, r.Header.Get("Authorization"))
			if err != nil {
				writeAuthFailure(w, r, err)
				return
			}

			ctx = contextWithAuth(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func contextWithAuth(ctx context.Context, c *jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeySubject, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyScopes, c.Scopes())
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

func writeAuthFailure(w http.ResponseWriter, r *http.Request, err error) {
	var ae *oidcrp.AuthError
	if !errors.As(err, &ae) {
		// Discovery or key-set trouble, not the caller's token.
		slogx.FromContext(r.Context()).Error("bearer authentication unavailable", "err", err)
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "authentication_unavailable",
		})
		return
	}

	switch ae.Reason {
	case oidcrp.AuthMissingHeader:
		// RFC 6750: a bare challenge, no error attribute.
		WriteBearerChallenge(w, http.StatusUnauthorized)

	case oidcrp.AuthInvalidScheme, oidcrp.AuthMalformedToken:
		WriteBearerChallenge(w, http.StatusUnauthorized,
			ChallengeParam{Key: "error", Value: "invalid_request"},
			ChallengeParam{Key: "error_description", Value: string(ae.Reason)},
		)

	default:
		slogx.FromContext(r.Context()).Warn("bearer token rejected", "err", err)
		WriteBearerChallenge(w, http.StatusUnauthorized,
			ChallengeParam{Key: "error", Value: "invalid_token"},
			ChallengeParam{Key: "error_description", Value: "token verification failed"},
		)
	}
}
