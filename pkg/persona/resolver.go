package persona

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"github.com/wardenhq/warden/pkg/errs"
)

// PrincipalResolver maps an authenticated external identity to a User,
// creating the user on first sight. Authentication itself happens at the
// identity provider; by the time a token reaches this resolver the principal
// already exists, just possibly not in our database.
type PrincipalResolver struct {
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
	store    *Store
}

// ResolverConfig holds the OIDC settings for the principal resolver.
type ResolverConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewPrincipalResolver discovers the OIDC provider and prepares the token
// verifier.
func NewPrincipalResolver(ctx context.Context, config ResolverConfig, store *Store) (*PrincipalResolver, error) {
	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &PrincipalResolver{
		verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		store: store,
	}, nil
}

// Resolve verifies a raw bearer token and returns the corresponding User,
// creating it if this principal has never been seen before.
func (r *PrincipalResolver) Resolve(ctx context.Context, rawToken string) (*User, error) {
	idToken, err := r.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, errs.Wrap(errs.KindForbidden, err, "token verification failed")
	}

	var claims struct {
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse token claims: %w", err)
	}

	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}

	user, err := r.store.GetOrCreateUser(ctx, idToken.Subject, name, claims.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve principal: %w", err)
	}

	// Keep the local record in sync with the identity provider.
	if (name != "" && user.Name != name) || (claims.Email != "" && user.Email != claims.Email) {
		user.Name = name
		user.Email = claims.Email
		if err := r.store.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to refresh user attributes: %w", err)
		}
	}

	return user, nil
}

// AuthCodeURL builds the provider login URL for browser-based flows. The
// REST adapter redirects here when a request carries no token.
func (r *PrincipalResolver) AuthCodeURL(state string) string {
	return r.oauth.AuthCodeURL(state)
}
