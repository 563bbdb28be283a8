package oauthx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// cachePutTimeout bounds the cache write that happens after a successful
// validation pass, on a context detached from the request.
const cachePutTimeout = 5 * time.Second

// TokenAuthenticator is the validation capability the authorizer depends
// on. *Authenticator satisfies it.
type TokenAuthenticator interface {
	ValidateToken(ctx context.Context, rawToken string) (*Claims, error)
	GetUserInfo(ctx context.Context, rawToken string) (*UserInfoClaims, error)
}

// Authorizer assembles claims for inbound requests: it extracts the bearer
// token, consults the claims cache, and on a miss validates the token,
// looks up user info, runs custom enrichment and caches the result until
// the token's own expiry. It holds no per-request state and is safe for
// concurrent use.
type Authorizer struct {
	cache         ClaimsCache
	authenticator TokenAuthenticator
	provider      CustomClaimsProvider
	logger        *zap.Logger

	// group coalesces concurrent cache misses for the same fingerprint so
	// a burst of requests bearing one token runs a single validation pass.
	group singleflight.Group
}

// NewAuthorizer wires the authorizer's long-lived dependencies. A nil
// provider falls back to the empty default; a nil logger disables logging.
func NewAuthorizer(
	cache ClaimsCache,
	authenticator TokenAuthenticator,
	provider CustomClaimsProvider,
	logger *zap.Logger,
) (*Authorizer, error) {
	if cache == nil {
		return nil, errors.New("claims cache is required")
	}
	if authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	if provider == nil {
		provider = DefaultCustomClaimsProvider{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{
		cache:         cache,
		authenticator: authenticator,
		provider:      provider,
		logger:        logger,
	}, nil
}

// Authorize is the single public operation: it returns the complete claims
// for the request's bearer token or a classified error, never a partial
// result. Every failure passes through Classify exactly once.
func (a *Authorizer) Authorize(r *http.Request) (*ApiClaims, error) {
	claims, err := a.execute(r)
	if err != nil {
		return nil, Classify(err, a.logger)
	}
	return claims, nil
}

func (a *Authorizer) execute(r *http.Request) (*ApiClaims, error) {
	rawToken := readBearerToken(r)
	if rawToken == "" {
		return nil, newError(ErrCodeMissingToken, errors.New("missing or malformed bearer token"))
	}

	ctx := r.Context()
	fingerprint := TokenFingerprint(rawToken)

	cached, err := a.cache.Get(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("claims cache lookup: %w", err)
	}
	if cached != nil {
		a.logger.Debug("returning cached claims", zap.String("fingerprint", fingerprint))
		return cached, nil
	}

	result, err, _ := a.group.Do(fingerprint, func() (any, error) {
		return a.assemble(ctx, rawToken, fingerprint)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ApiClaims), nil
}

// assemble runs the miss path: validate, user info, enrichment, store.
func (a *Authorizer) assemble(ctx context.Context, rawToken, fingerprint string) (*ApiClaims, error) {
	token, err := a.authenticator.ValidateToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	userInfo, err := a.authenticator.GetUserInfo(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	custom, err := a.provider.SupplyCustomClaims(ctx, token, userInfo)
	if err != nil {
		return nil, fmt.Errorf("supply custom claims: %w", err)
	}

	claims, err := NewApiClaims(token, userInfo, custom)
	if err != nil {
		return nil, err
	}

	// The write runs on a detached context: a client disconnect aborts
	// pending network calls above, but never a Put already underway.
	putCtx, cancel := context.WithTimeout(detachContext(ctx), cachePutTimeout)
	defer cancel()
	if err := a.cache.Put(putCtx, fingerprint, claims, token.ExpiresAt); err != nil {
		return nil, fmt.Errorf("claims cache store: %w", err)
	}

	a.logger.Debug("cached claims until token expiry",
		zap.String("fingerprint", fingerprint),
		zap.Time("expiry", token.ExpiresAt),
	)
	return claims, nil
}

// readBearerToken extracts the token from the Authorization header.
// Anything other than the exact "Bearer <token>" shape reads as absent.
func readBearerToken(r *http.Request) string {
	authorization := r.Header.Get("Authorization")
	if strings.TrimSpace(authorization) == "" {
		return ""
	}
	parts := strings.Fields(authorization)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// detachContext keeps the parent's values while dropping its deadline and
// cancellation.
func detachContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	if _, ok := ctx.(*detachedContext); ok {
		return ctx
	}
	return &detachedContext{parent: ctx}
}

type detachedContext struct {
	parent context.Context
}

func (d *detachedContext) Deadline() (time.Time, bool) {
	return time.Time{}, false
}

func (d *detachedContext) Done() <-chan struct{} {
	return nil
}

func (d *detachedContext) Err() error {
	return nil
}

func (d *detachedContext) Value(key any) any {
	if d.parent == nil {
		return nil
	}
	return d.parent.Value(key)
}
