package oauthx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

// TestLiveIssuerIntegration runs the full pipeline against a real identity
// provider. It is opt-in: point OAUTH_ISSUER and OAUTH_AUDIENCE at the
// provider and optionally OAUTH_TEST_TOKEN at a freshly issued access token.
func TestLiveIssuerIntegration(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("RUN_INTEGRATION_TESTS not set to true")
	}

	issuer := strings.TrimSpace(os.Getenv("OAUTH_ISSUER"))
	audience := strings.TrimSpace(os.Getenv("OAUTH_AUDIENCE"))
	if issuer == "" || audience == "" {
		t.Fatal("OAUTH_ISSUER and OAUTH_AUDIENCE environment variables required")
	}

	cfg := Config{
		Issuer:      issuer,
		Audience:    audience,
		ClockSkew:   time.Minute,
		MinRefresh:  time.Minute,
		HTTPTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	metadata, err := LoadIssuerMetadata(ctx, cfg)
	if err != nil {
		t.Fatalf("LoadIssuerMetadata: %v", err)
	}
	if metadata.JWKSURI() == "" || metadata.UserInfoEndpoint() == "" {
		t.Fatalf("incomplete metadata: %+v", metadata)
	}

	authenticator, err := NewAuthenticator(cfg, metadata)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	if err := authenticator.Warmup(ctx); err != nil {
		t.Fatalf("Warmup: %v", err)
	}

	token := strings.TrimSpace(os.Getenv("OAUTH_TEST_TOKEN"))
	if token == "" {
		return
	}

	authorizer, err := NewAuthorizer(NewMemoryClaimsCache(), authenticator, nil, nil)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)

	claims, err := authorizer.Authorize(req)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if claims.Token.Subject == "" {
		t.Fatal("claims.Token.Subject empty")
	}
	if claims.UserInfo.Email == "" {
		t.Fatal("claims.UserInfo.Email empty")
	}
}
