package oauthx

import "context"

// CustomClaimsProvider supplies domain specific claims for a validated
// caller, typically by looking up the subject in the API's own data.
// Implementations must be safe to invoke concurrently for different tokens
// and must let domain lookup failures propagate rather than swallow them;
// such failures surface to the caller as technical errors.
type CustomClaimsProvider interface {
	SupplyCustomClaims(ctx context.Context, token *Claims, userInfo *UserInfoClaims) (*CustomClaims, error)
}

// CustomClaimsProviderFunc adapts a plain function to the
// CustomClaimsProvider interface.
type CustomClaimsProviderFunc func(ctx context.Context, token *Claims, userInfo *UserInfoClaims) (*CustomClaims, error)

// SupplyCustomClaims calls f.
func (f CustomClaimsProviderFunc) SupplyCustomClaims(
	ctx context.Context, token *Claims, userInfo *UserInfoClaims) (*CustomClaims, error) {
	return f(ctx, token, userInfo)
}

// DefaultCustomClaimsProvider supplies an empty claim set. Deployments that
// need enrichment substitute their own implementation.
type DefaultCustomClaimsProvider struct{}

// SupplyCustomClaims returns an empty claim set.
func (DefaultCustomClaimsProvider) SupplyCustomClaims(
	context.Context, *Claims, *UserInfoClaims) (*CustomClaims, error) {
	return &CustomClaims{}, nil
}

var _ CustomClaimsProvider = DefaultCustomClaimsProvider{}
var _ CustomClaimsProvider = CustomClaimsProviderFunc(nil)
