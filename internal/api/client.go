package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/blockchain/bitcoin-exchange-client/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrExchangeConnect tags connectivity failures, as opposed to a partner
// response with a non-2xx status. Callers distinguish the two with
// errors.Is and errors.As.
var ErrExchangeConnect = errors.New("EXCHANGE_CONNECT_ERROR")

// ResponseError is a non-2xx partner response, surfaced as the raw body
// text.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("partner responded %d: %s", e.StatusCode, e.Body)
}

// tokenSkew keeps a login from being considered valid right up to its
// expiry; a request signed with a token about to lapse would fail anyway.
const tokenSkew = 10 * time.Second

// LoginFunc obtains an access token from the partner. Only set for
// partners with token-based authentication.
type LoginFunc func(ctx context.Context, c *Client) (token string, expiresAt time.Time, err error)

// Client is the authenticated request-performing capability consumed by
// the exchange core. It wraps resty with rate limiting, retry on 429/5xx,
// and optional access-token login with refresh.
type Client struct {
	client  *resty.Client
	log     *zap.Logger
	limiter *rate.Limiter

	login LoginFunc

	mu             sync.Mutex
	accessToken    string
	loginExpiresAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogin enables access-token authentication via fn.
func WithLogin(fn LoginFunc) Option {
	return func(c *Client) { c.login = fn }
}

// NewClient creates a partner API client.
func NewClient(cfg *config.Partner, log *zap.Logger, opts ...Option) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	c := &Client{
		client:  client,
		log:     log,
		limiter: limiter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsLoggedIn reports whether the current access token is usable.
func (c *Client) IsLoggedIn() bool {
	if c.login == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken != "" && c.loginExpiresAt.After(time.Now().Add(tokenSkew))
}

// SetAccessToken installs a token obtained out of band, e.g. during signup.
func (c *Client) SetAccessToken(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
	c.loginExpiresAt = expiresAt
}

func (c *Client) ensureLogin(ctx context.Context) error {
	if c.login == nil || c.IsLoggedIn() {
		return nil
	}
	token, expiresAt, err := c.login(ctx, c)
	if err != nil {
		return fmt.Errorf("partner login: %w", err)
	}
	c.SetAccessToken(token, expiresAt)
	return nil
}

// Get performs an unauthenticated GET. Query values are URL-encoded;
// result, when non-nil, receives the decoded JSON response.
func (c *Client) Get(ctx context.Context, endpoint string, query map[string]string, result any) error {
	req := c.client.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	return c.do(ctx, http.MethodGet, endpoint, req, result)
}

// Post performs an unauthenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body, result any) error {
	return c.send(ctx, http.MethodPost, endpoint, body, result, false)
}

// Put performs an unauthenticated PUT with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body, result any) error {
	return c.send(ctx, http.MethodPut, endpoint, body, result, false)
}

// Patch performs an unauthenticated PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, endpoint string, body, result any) error {
	return c.send(ctx, http.MethodPatch, endpoint, body, result, false)
}

// AuthGet performs a GET with the access token, logging in first if needed.
func (c *Client) AuthGet(ctx context.Context, endpoint string, query map[string]string, result any) error {
	if err := c.ensureLogin(ctx); err != nil {
		return err
	}
	req := c.client.R().SetContext(ctx).SetAuthToken(c.token())
	if query != nil {
		req.SetQueryParams(query)
	}
	return c.do(ctx, http.MethodGet, endpoint, req, result)
}

// AuthPost performs a POST with the access token.
func (c *Client) AuthPost(ctx context.Context, endpoint string, body, result any) error {
	return c.send(ctx, http.MethodPost, endpoint, body, result, true)
}

// AuthPut performs a PUT with the access token.
func (c *Client) AuthPut(ctx context.Context, endpoint string, body, result any) error {
	return c.send(ctx, http.MethodPut, endpoint, body, result, true)
}

// AuthPatch performs a PATCH with the access token.
func (c *Client) AuthPatch(ctx context.Context, endpoint string, body, result any) error {
	return c.send(ctx, http.MethodPatch, endpoint, body, result, true)
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *Client) send(ctx context.Context, method, endpoint string, body, result any, authorized bool) error {
	if authorized {
		if err := c.ensureLogin(ctx); err != nil {
			return err
		}
	}
	req := c.client.R().SetContext(ctx).SetHeader("Content-Type", "application/json")
	if authorized {
		req.SetAuthToken(c.token())
	}
	if body != nil {
		req.SetBody(body)
	}
	return c.do(ctx, method, endpoint, req, result)
}

// do executes the request with rate limiting and retry on throttling and
// server errors. Client errors are returned immediately as ResponseError.
func (c *Client) do(ctx context.Context, method, endpoint string, req *resty.Request, result any) error {
	const maxRetries = 3

	if result != nil {
		req.SetResult(result)
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.log.Debug("Executing request", zap.String("method", method), zap.String("endpoint", endpoint))
		resp, err := req.Execute(method, endpoint)

		if err == nil && !resp.IsError() {
			return nil
		}

		var retryAfter time.Duration
		shouldRetry := false

		if err != nil {
			// Network or other client-side failure.
			lastErr = fmt.Errorf("%w: %v", ErrExchangeConnect, err)
			shouldRetry = true
		} else {
			statusCode := resp.StatusCode()
			lastErr = &ResponseError{StatusCode: statusCode, Body: resp.String()}
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
		}

		if !shouldRetry {
			return lastErr
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.log.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(lastErr),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}
