// Package libinsight is the usage source adapter for the LibInsight
// e-resources reporting API.
package libinsight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// tokenSlack refreshes a token this long before it actually expires
const tokenSlack = 30 * time.Second

// AuthError is returned when the API rejects the client credentials or token
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Body)
}

// IsAuthError reports whether err is, or wraps, an AuthError
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Options configures a Client
type Options struct {
	BaseURL  string // e.g. "https://acaweb.libinsight.com/v1.0"
	TokenURL string
	Key      string
	Secret   string
	Timeout  time.Duration
	Retries  int
	Logger   *zap.Logger
}

// Token is an OAuth2 client-credentials access token
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Client talks to the reporting API. It is safe for concurrent use.
type Client struct {
	http     *resty.Client
	tokenURL string
	key      string
	secret   string
	log      *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// New creates a client. No request is made until the first call.
func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	client.SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if opts.Retries > 0 {
		client.SetRetryCount(opts.Retries)
		client.AddRetryCondition(func(res *resty.Response, err error) bool {
			return err != nil || res.StatusCode() >= http.StatusInternalServerError
		})
	}

	return &Client{
		http:     client,
		tokenURL: opts.TokenURL,
		key:      opts.Key,
		secret:   opts.Secret,
		log:      log,
		now:      time.Now,
	}
}

// Authenticate requests a fresh token and caches it for later calls
func (c *Client) Authenticate(ctx context.Context) (*Token, error) {
	tok, err := c.requestToken(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.expiresAt = c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.mu.Unlock()

	c.log.Info("obtained API access token", zap.Int64("expires_in", tok.ExpiresIn))
	return tok, nil
}

func (c *Client) requestToken(ctx context.Context) (*Token, error) {
	if c.key == "" || c.secret == "" {
		return nil, &AuthError{StatusCode: 0, Body: "client key and secret are required"}
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.key, c.secret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
			"scope":      "GET",
		}).
		Post(c.tokenURL)
	if err != nil {
		return nil, fmt.Errorf("requesting token: %w", err)
	}
	if err := checkStatus(res); err != nil {
		return nil, fmt.Errorf("requesting token: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(res.Body(), &tok); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, &AuthError{StatusCode: res.StatusCode(), Body: "token response has no access_token"}
	}
	return &tok, nil
}

// accessToken returns the cached token, requesting a new one when it is
// missing or about to expire
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok, exp := c.token, c.expiresAt
	c.mu.Unlock()

	if tok != "" && c.now().Add(tokenSlack).Before(exp) {
		return tok, nil
	}

	c.log.Debug("access token missing or expiring, refreshing")
	fresh, err := c.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}

// get performs an authenticated GET and returns the raw body
func (c *Client) get(ctx context.Context, path string, pathParams, query map[string]string) ([]byte, error) {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Debug("API request", zap.String("path", path), zap.Any("path_params", pathParams), zap.Any("query", query))

	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetPathParams(pathParams).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if err := checkStatus(res); err != nil {
		return nil, fmt.Errorf("GET %s: %w", res.Request.URL, err)
	}
	return res.Body(), nil
}

func checkStatus(res *resty.Response) error {
	if !res.IsError() {
		return nil
	}
	body := strings.TrimSpace(res.String())
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	switch res.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{StatusCode: res.StatusCode(), Body: body}
	default:
		return fmt.Errorf("unexpected status %d: %s", res.StatusCode(), body)
	}
}
