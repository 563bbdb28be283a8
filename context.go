package oauthx

import "context"

type apiClaimsKey struct{}

// BindApiClaims stores the authorized caller's claims inside the context
// for downstream consumers.
func BindApiClaims(ctx context.Context, claims *ApiClaims) context.Context {
	return context.WithValue(ctx, apiClaimsKey{}, claims)
}

// ApiClaimsFromContext retrieves claims previously stored in the context.
func ApiClaimsFromContext(ctx context.Context) (*ApiClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(apiClaimsKey{}).(*ApiClaims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}
