package oauthx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/oauth2"
)

// Authenticator validates access tokens against the configured issuer and
// performs user-info lookups. Keys are resolved through a shared JWKS cache
// that refreshes in the background; a refresh is additionally forced at
// most once per validation when a token references an unknown key id, to
// tolerate signing key rotation.
type Authenticator struct {
	cfg      Config
	metadata *IssuerMetadata
	keys     *jwk.Cache
	client   *http.Client
}

// NewAuthenticator builds an authenticator from the configuration and the
// issuer metadata loaded at startup.
func NewAuthenticator(cfg Config, metadata *IssuerMetadata) (*Authenticator, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if metadata == nil {
		return nil, errors.New("issuer metadata is required")
	}

	client, err := cfg.httpClient()
	if err != nil {
		return nil, err
	}

	keys := jwk.NewCache(context.Background())
	if err := keys.Register(
		metadata.JWKSURI(),
		jwk.WithMinRefreshInterval(cfg.MinRefresh),
		jwk.WithHTTPClient(client),
	); err != nil {
		return nil, fmt.Errorf("register jwks endpoint: %w", err)
	}

	return &Authenticator{
		cfg:      cfg,
		metadata: metadata,
		keys:     keys,
		client:   client,
	}, nil
}

// Warmup fetches the issuer's key set ahead of the first request.
func (a *Authenticator) Warmup(ctx context.Context) error {
	refreshCtx, cancel := a.boundContext(ctx)
	defer cancel()
	if _, err := a.keys.Refresh(refreshCtx, a.metadata.JWKSURI()); err != nil {
		return newError(ErrCodeMetadataLoad, err)
	}
	return nil
}

// ValidateToken cryptographically validates the token and extracts its
// claims. Parse, signature, expiry, issuer and audience failures all yield
// the same invalid-token category; the true cause is retained only for
// logging.
func (a *Authenticator) ValidateToken(ctx context.Context, rawToken string) (*Claims, error) {
	if rawToken == "" {
		return nil, newError(ErrCodeInvalidToken, errors.New("token is empty"))
	}

	callCtx, cancel := a.boundContext(ctx)
	defer cancel()

	// Structural parse before any key work, so garbage never triggers a
	// JWKS refresh.
	message, err := jws.ParseString(rawToken)
	if err != nil {
		return nil, newError(ErrCodeInvalidToken, err)
	}

	keySet, err := a.resolveKeys(callCtx, message)
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.Parse([]byte(rawToken), jwt.WithKeySet(keySet))
	if err != nil {
		return nil, newError(ErrCodeInvalidToken, err)
	}

	validateOpts := []jwt.ValidateOption{
		jwt.WithAcceptableSkew(a.cfg.ClockSkew),
		jwt.WithIssuer(a.metadata.Issuer()),
		jwt.WithAudience(a.cfg.Audience),
	}
	if err := jwt.Validate(parsed, validateOpts...); err != nil {
		return nil, newError(ErrCodeInvalidToken, err)
	}

	claims := extractTokenClaims(parsed)
	if claims.Subject == "" {
		return nil, ErrMissingClaim("sub")
	}
	if claims.ExpiresAt.IsZero() {
		return nil, ErrMissingClaim("exp")
	}
	return claims, nil
}

// resolveKeys returns the current key set, forcing one refresh when the
// token references a key id that is not in the cached set.
func (a *Authenticator) resolveKeys(ctx context.Context, message *jws.Message) (jwk.Set, error) {
	keySet, err := a.keys.Get(ctx, a.metadata.JWKSURI())
	if err != nil {
		return nil, newError(ErrCodeServerError, fmt.Errorf("fetch signing keys: %w", err))
	}

	kid := signingKeyID(message)
	if kid == "" {
		return keySet, nil
	}
	if _, found := keySet.LookupKeyID(kid); found {
		return keySet, nil
	}

	refreshed, err := a.keys.Refresh(ctx, a.metadata.JWKSURI())
	if err != nil {
		return nil, newError(ErrCodeServerError, fmt.Errorf("refresh signing keys: %w", err))
	}
	return refreshed, nil
}

func signingKeyID(message *jws.Message) string {
	for _, sig := range message.Signatures() {
		if headers := sig.ProtectedHeaders(); headers != nil && headers.KeyID() != "" {
			return headers.KeyID()
		}
	}
	return ""
}

// GetUserInfo retrieves the identity attributes bound to the token from
// the issuer's user-info endpoint. A non-success response is an
// invalid-token condition and is not retried.
func (a *Authenticator) GetUserInfo(ctx context.Context, rawToken string) (*UserInfoClaims, error) {
	if rawToken == "" {
		return nil, newError(ErrCodeInvalidToken, errors.New("token is empty"))
	}

	callCtx, cancel := a.boundContext(ctx)
	defer cancel()

	// The bearer token rides the standard oauth2 transport, layered over
	// the configured client so proxy settings still apply.
	clientCtx := context.WithValue(callCtx, oauth2.HTTPClient, a.client)
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: rawToken, TokenType: "Bearer"})
	client := oauth2.NewClient(clientCtx, source)

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, a.metadata.UserInfoEndpoint(), nil)
	if err != nil {
		return nil, newError(ErrCodeServerError, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, newError(ErrCodeServerError, fmt.Errorf("user info request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newError(ErrCodeInvalidToken,
			fmt.Errorf("user info endpoint returned status %d", resp.StatusCode))
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, newError(ErrCodeInvalidToken, fmt.Errorf("decode user info: %w", err))
	}
	return userInfoFromPayload(payload)
}

func (a *Authenticator) boundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.HTTPTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.HTTPTimeout)
	}
	return ctx, func() {}
}

func extractTokenClaims(token jwt.Token) *Claims {
	private := token.PrivateClaims()
	var audience []string
	if audList := token.Audience(); len(audList) > 0 {
		audience = append([]string(nil), audList...)
	}
	claims := &Claims{
		Subject:   token.Subject(),
		Issuer:    token.Issuer(),
		Audience:  audience,
		ExpiresAt: token.Expiration(),
		NotBefore: token.NotBefore(),
		IssuedAt:  token.IssuedAt(),
		JWTID:     token.JwtID(),
	}

	if v, ok := private["scope"]; ok {
		claims.Scopes = normalizeScopes(v)
	} else if v, ok := private["scopes"]; ok {
		claims.Scopes = normalizeScopes(v)
	}
	if len(private) > 0 {
		claims.Extra = make(map[string]any, len(private))
		for k, v := range private {
			claims.Extra[k] = v
		}
	}
	return claims
}

// userInfoFromPayload maps the user-info response, failing hard when an
// expected attribute is absent rather than defaulting it.
func userInfoFromPayload(payload map[string]any) (*UserInfoClaims, error) {
	info := &UserInfoClaims{}
	for _, field := range []struct {
		name string
		dest *string
	}{
		{"given_name", &info.GivenName},
		{"family_name", &info.FamilyName},
		{"email", &info.Email},
	} {
		value, _ := payload[field.name].(string)
		if value == "" {
			return nil, ErrMissingClaim(field.name)
		}
		*field.dest = value
	}
	info.Email = strings.ToLower(info.Email)

	if len(payload) > 0 {
		info.Extra = make(map[string]any, len(payload))
		for k, v := range payload {
			info.Extra[k] = v
		}
	}
	return info, nil
}

// normalizeScopes accepts the space-delimited and list forms of the scope
// claim.
func normalizeScopes(value any) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(v)
	default:
		return nil
	}
}
