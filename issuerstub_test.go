package oauthx

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const testAudience = "https://api.example.com"

// testIssuer is an in-process identity provider serving a discovery
// document, a JWKS endpoint and a user-info endpoint.
type testIssuer struct {
	server *httptest.Server

	mu             sync.Mutex
	key            *rsa.PrivateKey
	kid            string
	jwksFetches    int
	userInfoCalls  int
	userInfoStatus int
	userInfo       map[string]any
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	issuer := &testIssuer{
		userInfoStatus: http.StatusOK,
		userInfo: map[string]any{
			"given_name":  "Guest",
			"family_name": "User",
			"email":       "guest.user@example.com",
		},
	}
	issuer.generateKey(t, "test-key-1")

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":            issuer.server.URL,
			"jwks_uri":          issuer.server.URL + "/jwks",
			"userinfo_endpoint": issuer.server.URL + "/userinfo",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, _ *http.Request) {
		issuer.mu.Lock()
		issuer.jwksFetches++
		payload := issuer.jwksPayload(t)
		issuer.mu.Unlock()
		_, _ = w.Write(payload)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, _ *http.Request) {
		issuer.mu.Lock()
		issuer.userInfoCalls++
		status := issuer.userInfoStatus
		body := issuer.userInfo
		issuer.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	})

	issuer.server = httptest.NewServer(mux)
	t.Cleanup(issuer.server.Close)
	return issuer
}

func (i *testIssuer) generateKey(t *testing.T, kid string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	i.mu.Lock()
	i.key = key
	i.kid = kid
	i.mu.Unlock()
}

func (i *testIssuer) jwksPayload(t *testing.T) []byte {
	t.Helper()
	pub, err := jwk.PublicKeyOf(i.key)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if err := pub.Set(jwk.KeyIDKey, i.kid); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	if err := pub.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatalf("set alg: %v", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatalf("add key: %v", err)
	}
	payload, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return payload
}

// rotateKey replaces the signing key, as an issuer does during key
// rotation. Tokens signed afterwards reference the new kid.
func (i *testIssuer) rotateKey(t *testing.T, kid string) {
	i.generateKey(t, kid)
}

func (i *testIssuer) setUserInfoStatus(status int) {
	i.mu.Lock()
	i.userInfoStatus = status
	i.mu.Unlock()
}

func (i *testIssuer) setUserInfo(body map[string]any) {
	i.mu.Lock()
	i.userInfo = body
	i.mu.Unlock()
}

func (i *testIssuer) counts() (jwksFetches, userInfoCalls int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.jwksFetches, i.userInfoCalls
}

func (i *testIssuer) config() Config {
	return Config{
		Issuer:      i.server.URL,
		Audience:    testAudience,
		ClockSkew:   10 * time.Second,
		MinRefresh:  time.Minute,
		HTTPTimeout: 2 * time.Second,
	}
}

// signToken builds and signs a token with the issuer's current key.
func (i *testIssuer) signToken(t *testing.T, builder *jwt.Builder) string {
	t.Helper()
	token, err := builder.Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}

	i.mu.Lock()
	key, kid := i.key, i.kid
	i.mu.Unlock()

	priv, err := jwk.FromRaw(key)
	if err != nil {
		t.Fatalf("private key jwk: %v", err)
	}
	if err := priv.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatalf("set alg: %v", err)
	}
	if err := priv.Set(jwk.KeyIDKey, kid); err != nil {
		t.Fatalf("set kid: %v", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, priv))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(signed)
}

// accessToken signs a standard valid token for the given subject.
func (i *testIssuer) accessToken(t *testing.T, subject string, expiry time.Time) string {
	t.Helper()
	now := time.Now().UTC()
	return i.signToken(t, jwt.NewBuilder().
		Issuer(i.server.URL).
		Subject(subject).
		Audience([]string{testAudience}).
		IssuedAt(now).
		NotBefore(now.Add(-time.Minute)).
		Expiration(expiry).
		JwtID("jwt-"+subject).
		Claim("scope", "openid profile email"))
}

// newAuthenticator loads metadata from the stub issuer and builds an
// authenticator against it.
func (i *testIssuer) newAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	ctx := context.Background()
	metadata, err := LoadIssuerMetadata(ctx, i.config())
	if err != nil {
		t.Fatalf("load issuer metadata: %v", err)
	}
	authenticator, err := NewAuthenticator(i.config(), metadata)
	if err != nil {
		t.Fatalf("create authenticator: %v", err)
	}
	if err := authenticator.Warmup(ctx); err != nil {
		t.Fatalf("warm up: %v", err)
	}
	return authenticator
}
