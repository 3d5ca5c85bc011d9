package oidcrp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/aussiebroadwan/realmkit/pkg/realmx"
)

// UMAResource describes a protected resource to register with the
// realm's authorization services.
type UMAResource struct {
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"`
	URI         string   `json:"uri,omitempty"`
	Scopes      []string `json:"resource_scopes,omitempty"`
	IconURI     string   `json:"icon_uri,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
}

// UMAResourceDescriptor is the realm's record of a registered
// resource, most notably its server-assigned ID.
type UMAResourceDescriptor struct {
	ID     string   `json:"_id"`
	Name   string   `json:"name"`
	Type   string   `json:"type,omitempty"`
	URI    string   `json:"uri,omitempty"`
	Scopes []string `json:"resource_scopes,omitempty"`
}

type umaConfiguration struct {
	Issuer                       string `json:"issuer"`
	ResourceRegistrationEndpoint string `json:"resource_registration_endpoint"`
	PermissionEndpoint           string `json:"permission_endpoint"`
	TokenEndpoint                string `json:"token_endpoint"`
}

// UMAResourceClient registers and looks up protected resources on the
// realm's UMA resource registration endpoint, authenticating with the
// service account.
type UMAResourceClient struct {
	account *ServiceAccountClient
	http    *http.Client

	mu     sync.Mutex
	config *umaConfiguration
}

// NewUMAResourceClient creates a UMA client authenticating as the
// given service account.
func NewUMAResourceClient(account *ServiceAccountClient) *UMAResourceClient {
	return &UMAResourceClient{
		account: account,
		http:    account.manager.TokenClient().Resolver().HTTPClient(),
	}
}

func (u *UMAResourceClient) resolver() *realmx.Resolver {
	return u.account.manager.TokenClient().Resolver()
}

// configuration fetches and caches the realm's UMA well-known
// document. Newer realms serve uma2-configuration; the older
// uma-configuration path is kept as a fallback.
func (u *UMAResourceClient) configuration(ctx context.Context) (*umaConfiguration, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.config != nil {
		return u.config, nil
	}

	cfg, err := u.fetchConfiguration(ctx, ".well-known/uma2-configuration")
	if err != nil {
		cfg, err = u.fetchConfiguration(ctx, ".well-known/uma-configuration")
	}
	if err != nil {
		return nil, err
	}

	u.config = cfg
	return cfg, nil
}

func (u *UMAResourceClient) fetchConfiguration(ctx context.Context, suffix string) (*umaConfiguration, error) {
	r := u.resolver()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.RealmEndpoint(suffix), nil)
	if err != nil {
		return nil, err
	}
	r.ApplyHeaders(req)

	resp, err := u.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch uma configuration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("uma configuration returned status %d", resp.StatusCode)
	}

	var cfg umaConfiguration
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode uma configuration: %w", err)
	}
	if cfg.ResourceRegistrationEndpoint == "" {
		return nil, fmt.Errorf("uma configuration missing resource_registration_endpoint")
	}

	return &cfg, nil
}

// RegisterResource registers a protected resource and returns the
// realm's descriptor for it, or nil when the realm acknowledges the
// registration without a body.
func (u *UMAResourceClient) RegisterResource(ctx context.Context, resource UMAResource) (*UMAResourceDescriptor, error) {
	cfg, err := u.configuration(ctx)
	if err != nil {
		return nil, err
	}

	token, err := u.account.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(resource)
	if err != nil {
		return nil, err
	}

	endpoint := u.resolver().RewriteToEffective(cfg.ResourceRegistrationEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	u.resolver().ApplyHeaders(req)

	resp, err := u.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to register resource: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ResourceRegistrationError{Status: resp.StatusCode, Body: string(raw)}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var desc UMAResourceDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("failed to decode resource descriptor: %w", err)
	}
	return &desc, nil
}
