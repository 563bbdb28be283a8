package oauthx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// IssuerMetadata holds the identity provider endpoints discovered at
// startup. It is immutable after load and safe for unsynchronized
// concurrent reads for the life of the process.
type IssuerMetadata struct {
	issuer           string
	jwksURI          string
	userInfoEndpoint string
}

// Issuer returns the issuer identifier from the discovery document.
func (m *IssuerMetadata) Issuer() string { return m.issuer }

// JWKSURI returns the endpoint keys are fetched from.
func (m *IssuerMetadata) JWKSURI() string { return m.jwksURI }

// UserInfoEndpoint returns the user-info endpoint.
func (m *IssuerMetadata) UserInfoEndpoint() string { return m.userInfoEndpoint }

// LoadIssuerMetadata performs one fetch of the identity provider's
// discovery document. It must complete before any request is authorized;
// failure here is surfaced to the operator, not retried per request.
func LoadIssuerMetadata(ctx context.Context, cfg Config) (*IssuerMetadata, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, newError(ErrCodeMetadataLoad, err)
	}

	wellKnownURL := strings.TrimSuffix(cfg.Issuer, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return nil, newError(ErrCodeMetadataLoad, err)
	}
	req.Header.Set("Accept", "application/json")

	client, err := cfg.httpClient()
	if err != nil {
		return nil, newError(ErrCodeMetadataLoad, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, newError(ErrCodeMetadataLoad, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newError(ErrCodeMetadataLoad,
			fmt.Errorf("discovery endpoint %s returned status %d", wellKnownURL, resp.StatusCode))
	}

	var doc struct {
		Issuer           string `json:"issuer"`
		JWKSURI          string `json:"jwks_uri"`
		UserInfoEndpoint string `json:"userinfo_endpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, newError(ErrCodeMetadataLoad, fmt.Errorf("decode discovery document: %w", err))
	}

	var missing []string
	if doc.JWKSURI == "" {
		missing = append(missing, "jwks_uri")
	}
	if doc.UserInfoEndpoint == "" {
		missing = append(missing, "userinfo_endpoint")
	}
	if len(missing) > 0 {
		return nil, newError(ErrCodeMetadataLoad,
			fmt.Errorf("discovery document incomplete: missing %s", strings.Join(missing, ", ")))
	}

	issuer := doc.Issuer
	if issuer == "" {
		issuer = cfg.Issuer
	}
	return &IssuerMetadata{
		issuer:           issuer,
		jwksURI:          doc.JWKSURI,
		userInfoEndpoint: doc.UserInfoEndpoint,
	}, nil
}
