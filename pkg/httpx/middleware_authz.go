package httpx

import (
	"net/http"
	"strings"
)

// RequireAnyScope admits callers holding at least one of the scopes.
func RequireAnyScope(required ...string) Middleware {
	want := make(map[string]struct{}, len(required))
	for _, s := range required {
		want[s] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, s := range scopesFromCtx(r.Context()) {
				if _, ok := want[s]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeScopeError(w, required...)
		})
	}
}

// RequireAllScopes admits callers holding every listed scope.
func RequireAllScopes(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			have := make(map[string]struct{})
			for _, s := range scopesFromCtx(r.Context()) {
				have[s] = struct{}{}
			}

			for _, req := range required {
				if _, ok := have[req]; !ok {
					writeScopeError(w, required...)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750 insufficient_scope response.
func writeScopeError(w http.ResponseWriter, required ...string) {
	WriteBearerChallenge(w, http.StatusForbidden,
		ChallengeParam{Key: "error", Value: "insufficient_scope"},
		ChallengeParam{Key: "scope", Value: strings.Join(required, " ")},
	)
}
