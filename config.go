package oauthx

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/joeshaw/envdecode"
)

const (
	defaultClockSkew   = 30 * time.Second
	defaultMinRefresh  = 5 * time.Minute
	defaultHTTPTimeout = 5 * time.Second
	defaultRedisPrefix = "oauthx:claims:"
)

// Config describes the issuer this authorizer trusts and how it reaches it.
type Config struct {
	// Issuer is the identity provider's base URL; its discovery document is
	// fetched from <Issuer>/.well-known/openid-configuration at startup.
	Issuer string `env:"OAUTH_ISSUER,required"`

	// Audience is the expected aud claim value.
	Audience string `env:"OAUTH_AUDIENCE,required"`

	ClockSkew   time.Duration `env:"OAUTH_CLOCK_SKEW,default=30s"`
	MinRefresh  time.Duration `env:"OAUTH_JWKS_MIN_REFRESH,default=5m"`
	HTTPTimeout time.Duration `env:"OAUTH_HTTP_TIMEOUT,default=5s"`

	// ProxyURL routes outbound issuer traffic through an HTTP proxy for
	// debugging. Empty means the environment proxy settings apply.
	ProxyURL string `env:"OAUTH_PROXY_URL"`

	// RedisAddr selects the Redis claims cache backend. Empty means the
	// in-process cache is used.
	RedisAddr      string `env:"OAUTH_REDIS_ADDR"`
	RedisKeyPrefix string `env:"OAUTH_REDIS_KEY_PREFIX,default=oauthx:claims:"`
}

// ConfigFromEnv populates a Config from the process environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config from environment: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize sets default values for optional fields.
func (c *Config) normalize() {
	if c.ClockSkew <= 0 {
		c.ClockSkew = defaultClockSkew
	}
	if c.MinRefresh <= 0 {
		c.MinRefresh = defaultMinRefresh
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.RedisKeyPrefix == "" {
		c.RedisKeyPrefix = defaultRedisPrefix
	}
}

// validate ensures the configuration is usable.
func (c Config) validate() error {
	switch {
	case c.Issuer == "":
		return errors.New("issuer is required")
	case c.Audience == "":
		return errors.New("audience is required")
	}
	if c.ProxyURL != "" {
		if _, err := url.Parse(c.ProxyURL); err != nil {
			return fmt.Errorf("invalid proxy url: %w", err)
		}
	}
	return nil
}

// httpClient builds the outbound client used for issuer traffic, honoring
// the configured timeout and debugging proxy.
func (c Config) httpClient() (*http.Client, error) {
	proxy := http.ProxyFromEnvironment
	if c.ProxyURL != "" {
		proxyURL, err := url.Parse(c.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{
		Timeout: c.HTTPTimeout,
		Transport: &http.Transport{
			Proxy: proxy,
		},
	}, nil
}
