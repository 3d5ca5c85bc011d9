package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/realmkit/internal/resource/store"
	"github.com/aussiebroadwan/realmkit/pkg/httpx"
	"github.com/aussiebroadwan/realmkit/pkg/idx"
	"github.com/aussiebroadwan/realmkit/pkg/oidcrp"
	"github.com/aussiebroadwan/realmkit/pkg/slogx"
)

// WhoamiHandler echoes the verified identity of the caller, including
// the local principal record when one has been bound.
type WhoamiHandler struct {
	Store store.Store
}

func (h *WhoamiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims := httpx.ClaimsFromCtx(r.Context())
	if claims == nil {
		// Authn middleware did not run; a routing mistake, not a
		// caller problem.
		slogx.FromContext(r.Context()).Error("whoami reached without claims in context")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp := WhoamiResponse{
		Subject: claims.Subject,
		Email:   claims.Email,
		Scopes:  claims.Scopes(),
	}
	if name := strings.TrimSpace(claims.GivenName + " " + claims.FamilyName); name != "" {
		resp.Name = name
	}

	principal, err := h.Store.Principals().GetBySubject(r.Context(), claims.Subject)
	switch {
	case err == nil:
		resp.PrincipalID = principal.ID
	case errors.Is(err, store.ErrNotFound):
		// First time this identity has reached us; bind a local
		// principal record from the verified claims.
		principal = oidcrp.Principal{
			ID:         idx.New().String(),
			Subject:    claims.Subject,
			Email:      claims.Email,
			GivenName:  claims.GivenName,
			FamilyName: claims.FamilyName,
		}
		if err := h.Store.Principals().Create(r.Context(), principal); err != nil {
			slogx.FromContext(r.Context()).Warn("principal create failed", "err", err)
		} else {
			resp.PrincipalID = principal.ID
		}
	default:
		slogx.FromContext(r.Context()).Warn("principal lookup failed", "err", err)
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}
