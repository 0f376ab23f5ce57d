package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig configures the upstream identity provider.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// TenantClaim names the ID-token claim carrying the tenant id.
	// Defaults to "tenant_id".
	TenantClaim string
}

// Authenticator verifies OIDC identities from the configured provider.
type Authenticator struct {
	provider    *oidc.Provider
	verifier    *oidc.IDTokenVerifier
	oauthConfig *oauth2.Config
	tenantClaim string
}

// NewAuthenticator discovers the provider's endpoints from the issuer URL.
func NewAuthenticator(ctx context.Context, cfg OIDCConfig) (*Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	tenantClaim := cfg.TenantClaim
	if tenantClaim == "" {
		tenantClaim = "tenant_id"
	}

	return &Authenticator{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		tenantClaim: tenantClaim,
	}, nil
}

// AuthCodeURL returns the provider URL to redirect the browser to.
func (a *Authenticator) AuthCodeURL(state string) string {
	return a.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange redeems the authorization code and verifies the ID token it
// carries.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := a.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("token response is missing id_token")
	}
	return a.VerifyToken(ctx, rawIDToken)
}

// VerifyToken validates a raw ID token and extracts the caller identity.
// API requests present the token directly as a bearer credential.
func (a *Authenticator) VerifyToken(ctx context.Context, rawIDToken string) (*Identity, error) {
	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	identity := &Identity{UserID: idToken.Subject}
	if v, ok := claims["email"].(string); ok {
		identity.Email = v
	}
	if v, ok := claims["name"].(string); ok {
		identity.Name = v
	}
	if v, ok := claims[a.tenantClaim].(string); ok {
		identity.TenantID = v
	}
	if identity.TenantID == "" {
		return nil, fmt.Errorf("ID token is missing the %s claim", a.tenantClaim)
	}
	return identity, nil
}
