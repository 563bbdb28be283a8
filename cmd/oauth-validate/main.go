package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	oauthx "github.com/bionicotaku/lingo-utils-oauthx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	issuer := flag.String("issuer", os.Getenv("OAUTH_ISSUER"), "Identity provider base URL (env OAUTH_ISSUER)")
	audience := flag.String("audience", os.Getenv("OAUTH_AUDIENCE"), "Expected audience (env OAUTH_AUDIENCE)")
	token := flag.String("token", os.Getenv("OAUTH_TOKEN"), "Access token to authorize (env OAUTH_TOKEN)")
	redisAddr := flag.String("redis-addr", os.Getenv("OAUTH_REDIS_ADDR"), "Optional Redis address for the shared claims cache (env OAUTH_REDIS_ADDR)")
	timeout := flag.Duration("timeout", 5*time.Second, "HTTP timeout for issuer calls")
	repeat := flag.Int("repeat", 1, "Number of authorization passes (>1 demonstrates the cache hit path)")
	flag.Parse()

	if *token == "" {
		flag.Usage()
		log.Fatal("a token is required")
	}

	var cfg oauthx.Config
	if *issuer != "" && *audience != "" {
		cfg = oauthx.Config{
			Issuer:      *issuer,
			Audience:    *audience,
			HTTPTimeout: *timeout,
			RedisAddr:   *redisAddr,
		}
	} else {
		loaded, err := oauthx.ConfigFromEnv()
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	metadata, err := oauthx.LoadIssuerMetadata(ctx, cfg)
	if err != nil {
		log.Fatalf("load issuer metadata: %v", err)
	}
	logger.Info("issuer metadata loaded",
		zap.String("issuer", metadata.Issuer()),
		zap.String("jwks_uri", metadata.JWKSURI()),
		zap.String("userinfo_endpoint", metadata.UserInfoEndpoint()),
	)

	authenticator, err := oauthx.NewAuthenticator(cfg, metadata)
	if err != nil {
		log.Fatalf("create authenticator: %v", err)
	}
	if err := authenticator.Warmup(ctx); err != nil {
		log.Fatalf("warm up key set: %v", err)
	}

	cache, cleanup, err := buildCache(ctx, cfg)
	if err != nil {
		log.Fatalf("create claims cache: %v", err)
	}
	defer cleanup()

	authorizer, err := oauthx.NewAuthorizer(cache, authenticator, nil, logger)
	if err != nil {
		log.Fatalf("create authorizer: %v", err)
	}

	for i := 0; i < *repeat; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/", nil)
		if err != nil {
			log.Fatalf("build request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+*token)

		start := time.Now()
		claims, err := authorizer.Authorize(req)
		if err != nil {
			log.Fatalf("authorize: %v", err)
		}
		logger.Info("authorized", zap.Int("pass", i+1), zap.Duration("elapsed", time.Since(start)))

		if i == 0 {
			out, err := json.MarshalIndent(claims, "", "  ")
			if err != nil {
				log.Fatalf("encode claims: %v", err)
			}
			fmt.Println(string(out))
		}
	}
}

func buildCache(ctx context.Context, cfg oauthx.Config) (oauthx.ClaimsCache, func(), error) {
	if cfg.RedisAddr == "" {
		return oauthx.NewMemoryClaimsCache(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	cache, err := oauthx.NewRedisClaimsCache(oauthx.RedisCacheConfig{
		Client:    client,
		KeyPrefix: cfg.RedisKeyPrefix,
	})
	if err != nil {
		return nil, nil, err
	}
	return cache, func() { _ = client.Close() }, nil
}
