package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	CacheDriverNone    = "none"
	CacheDriverUpstash = "upstash"
	CacheDriverRedis   = "redis"

	defaultCacheKeyPrefix = "smartops:schema:"
	defaultCacheTTL       = time.Hour
	maxResponseSizeBytes  = 2 << 20
)

// SchemaCache stores rendered schema descriptions so the SQL agent does not
// hit information_schema on every question.
type SchemaCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
}

type UpstashConfig struct {
	URL     string        `envconfig:"URL"`
	Token   string        `envconfig:"TOKEN"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

type RedisConfig struct {
	Addr     string `envconfig:"ADDR" default:"localhost:6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
}

type CacheConfig struct {
	Driver    string        `envconfig:"DRIVER" default:"none"`
	TTL       time.Duration `envconfig:"TTL" default:"1h"`
	KeyPrefix string        `split_words:"true" default:"smartops:schema:"`
	Upstash   UpstashConfig
	Redis     RedisConfig
}

// NewCache builds the cache selected by cfg.Driver.
func NewCache(ctx context.Context, cfg CacheConfig) (SchemaCache, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", CacheDriverNone:
		return NopCache{}, nil
	case CacheDriverUpstash:
		return NewUpstashCache(cfg.Upstash, WithKeyPrefix(cfg.KeyPrefix), WithTTL(cfg.TTL))
	case CacheDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := client.Ping(ctx).Result(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisCache(client, cfg.KeyPrefix, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown schema cache driver %q", cfg.Driver)
	}
}

type NopCache struct{}

func (NopCache) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (NopCache) Set(context.Context, string, string) error         { return nil }

/* ------------------------------ go-redis ------------------------------ */

type RedisCache struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisCache(rdb *redis.Client, keyPrefix string, ttl time.Duration) *RedisCache {
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = defaultCacheKeyPrefix
	}
	return &RedisCache{rdb: rdb, keyPrefix: keyPrefix, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, c.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value string) error {
	return c.rdb.Set(ctx, c.keyPrefix+key, value, c.ttl).Err()
}

/* ---------------------------- Upstash REST ---------------------------- */

type UpstashOption func(*UpstashCache)

func WithKeyPrefix(prefix string) UpstashOption {
	return func(c *UpstashCache) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			c.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) UpstashOption {
	return func(c *UpstashCache) {
		c.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) UpstashOption {
	return func(c *UpstashCache) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// UpstashCache talks to Upstash Redis over its REST API.
type UpstashCache struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewUpstashCache(cfg UpstashConfig, opts ...UpstashOption) (*UpstashCache, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &UpstashCache{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultCacheKeyPrefix,
		ttl:        defaultCacheTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return c, nil
}

func (c *UpstashCache) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := c.exec(ctx, []any{"GET", c.keyPrefix + key})
	if err != nil {
		return "", false, err
	}
	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return "", false, nil
	}
	var value string
	if err := json.Unmarshal(result, &value); err != nil {
		return "", false, fmt.Errorf("decode cached value: %w", err)
	}
	return value, true, nil
}

func (c *UpstashCache) Set(ctx context.Context, key string, value string) error {
	cmd := []any{"SET", c.keyPrefix + key, value}
	if c.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(c.ttl))
	}
	_, err := c.exec(ctx, cmd)
	return err
}

func (c *UpstashCache) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
