package oauthx

import "time"

// Claims represents the signed claims extracted from a validated access
// token. Extra carries any private claims the issuer included beyond the
// well known ones.
type Claims struct {
	Subject   string    `json:"sub"`
	Issuer    string    `json:"iss,omitempty"`
	Audience  []string  `json:"aud,omitempty"`
	Scopes    []string  `json:"scopes,omitempty"`
	ExpiresAt time.Time `json:"exp"`
	NotBefore time.Time `json:"nbf,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	JWTID     string    `json:"jti,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// UserInfoClaims holds identity attributes returned by the issuer's
// user-info endpoint for one token. Transient, tied to a single
// validation pass.
type UserInfoClaims struct {
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Email      string `json:"email,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// CustomClaims holds domain specific attributes supplied by the API's own
// data, layered on top of issuer provided claims.
type CustomClaims struct {
	UserID      string   `json:"user_id,omitempty"`
	UserRole    string   `json:"user_role,omitempty"`
	UserRegions []string `json:"user_regions,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// ApiClaims is the full set of claims attached to an authorized request:
// token claims, user-info attributes and custom enrichment. Immutable once
// constructed.
type ApiClaims struct {
	Token    Claims         `json:"token"`
	UserInfo UserInfoClaims `json:"user_info"`
	Custom   CustomClaims   `json:"custom"`
}

// NewApiClaims assembles the aggregate claims object. A missing mandatory
// claim is a hard failure, never a default-filled value.
func NewApiClaims(token *Claims, userInfo *UserInfoClaims, custom *CustomClaims) (*ApiClaims, error) {
	if token == nil || token.Subject == "" {
		return nil, ErrMissingClaim("sub")
	}
	if token.ExpiresAt.IsZero() {
		return nil, ErrMissingClaim("exp")
	}

	claims := &ApiClaims{Token: *token}
	if userInfo != nil {
		claims.UserInfo = *userInfo
	}
	if custom != nil {
		claims.Custom = *custom
	}
	return claims, nil
}
