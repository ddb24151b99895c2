package census

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"tradequery/internal/logging"
	"tradequery/internal/store"
)

const (
	defaultRateLimitPerSec = 2
	defaultRateLimitBurst  = 2
	defaultTimeoutSeconds  = 30
	defaultMaxRetries      = 1
	defaultRetryDelay      = time.Second
	defaultUserAgent       = "tradequery/0.1"

	keyParam = "key"
)

var ErrInvalidConfig = errors.New("census: invalid client config")

type Config struct {
	Timeout         time.Duration
	UserAgent       string
	RateLimitPerSec float64
	RateLimitBurst  int
	// MaxRetries bounds the extra attempts made after a network error, 429 or
	// 503. Negative disables retries.
	MaxRetries int
	RetryDelay time.Duration
	// CacheTTL bounds the age of cached responses; 0 accepts any age.
	CacheTTL time.Duration
}

// Client performs GET requests against the Census API with throttling, a
// bounded retry and an optional response cache.
type Client struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	cache   store.Cache
	logger  logrus.FieldLogger
}

func NewWithConfig(cfg Config, cache store.Cache, logger logrus.FieldLogger) (*Client, error) {
	if cfg.Timeout < 0 || cfg.RateLimitPerSec < 0 || cfg.RateLimitBurst < 0 || cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("%w: negative value", ErrInvalidConfig)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RateLimitPerSec == 0 {
		cfg.RateLimitPerSec = defaultRateLimitPerSec
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = defaultRateLimitBurst
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cache == nil {
		cache = &store.NopCache{}
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		cache:   cache,
		logger:  logger.WithField("component", "census"),
	}, nil
}

// Get issues one logical request. HTTP error statuses are returned with a nil
// error so the caller can classify them; err is set only when no response was
// received.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (int, []byte, error) {
	cacheKey := CacheKey(endpoint, params)
	if body, ok, err := c.cache.Lookup(ctx, cacheKey, c.config.CacheTTL); err != nil {
		c.logger.WithError(err).Warn("cache lookup failed")
	} else if ok {
		c.logger.WithField("request", cacheKey).Debug("served from cache")
		return http.StatusOK, body, nil
	}

	attempts := c.config.MaxRetries + 1
	var (
		status int
		body   []byte
		err    error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		var retryAfter time.Duration
		status, body, retryAfter, err = c.doRequest(ctx, endpoint, params)
		if !c.retryable(ctx, status, err) || attempt == attempts-1 {
			break
		}
		if retryAfter <= 0 {
			retryAfter = c.config.RetryDelay
		}
		c.logger.WithFields(logrus.Fields{
			"request": cacheKey,
			"status":  status,
			"wait":    retryAfter.String(),
		}).Warn("retrying request")
		if err := sleepWithContext(ctx, retryAfter); err != nil {
			return 0, nil, err
		}
	}
	if err != nil {
		return 0, nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"request": cacheKey,
		"status":  status,
		"bytes":   len(body),
	}).Debug("census response")

	if status == http.StatusOK {
		c.saveIfValid(ctx, cacheKey, body)
	}
	return status, body, nil
}

// saveIfValid caches body only when it decodes, so a garbled 200 is fetched
// again on the next run.
func (c *Client) saveIfValid(ctx context.Context, cacheKey string, body []byte) {
	if _, _, err := DecodeTable(body); err != nil {
		c.logger.WithError(err).WithField("request", cacheKey).Warn("response not cached")
		return
	}
	if err := c.cache.Save(ctx, cacheKey, body); err != nil {
		c.logger.WithError(err).Warn("cache save failed")
	}
}

func (c *Client) retryable(ctx context.Context, status int, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		return true
	}
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) (int, []byte, time.Duration, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, 0, err
	}

	uri, err := buildURL(endpoint, params)
	if err != nil {
		return 0, nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, err
	}
	return resp.StatusCode, body, parseRetryAfter(resp), nil
}

func buildURL(endpoint string, params url.Values) (string, error) {
	if strings.TrimSpace(endpoint) == "" {
		return "", errors.New("census: endpoint is required")
	}
	if len(params) > 0 {
		return endpoint + "?" + params.Encode(), nil
	}
	return endpoint, nil
}

// CacheKey identifies a request independently of the API key.
func CacheKey(endpoint string, params url.Values) string {
	query := RedactKey(params)
	query.Del(keyParam)
	if len(query) == 0 {
		return endpoint
	}
	return endpoint + "?" + query.Encode()
}

// RedactKey returns a copy of params with the API key masked.
func RedactKey(params url.Values) url.Values {
	out := make(url.Values, len(params))
	for key, values := range params {
		copied := make([]string, len(values))
		copy(copied, values)
		out[key] = copied
	}
	if _, ok := out[keyParam]; ok {
		out.Set(keyParam, "REDACTED")
	}
	return out
}

func parseRetryAfter(resp *http.Response) time.Duration {
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := time.Parse(http.TimeFormat, value); err == nil {
		wait := time.Until(when)
		if wait > 0 {
			return wait
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
