// Package client is an HTTP client for the API that keeps the access token
// fresh. A request rejected with an expired or missing access token triggers one
// refresh through the refresh cookie and is replayed once with the new token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tech-arch1tect/crmauth/apperror"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when the session could not be renewed. Local
// auth state has been cleared by the time it is returned.
var ErrSessionExpired = errors.New("session expired")

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  []apperror.FieldError
	Data    json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// credentialPaths never trigger a refresh: a 401 from them is an answer, not an
// expired session.
var credentialPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/refresh",
	"/auth/forgot-password",
	"/auth/reset-password/",
}

func isCredentialPath(path string) bool {
	for _, p := range credentialPaths {
		if path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}

type Config struct {
	// BaseURL includes the API prefix, e.g. http://localhost:5000/api.
	BaseURL string
	// HTTPClient is used as given except that a cookie jar is added when it has none.
	HTTPClient *http.Client
	// OnLogout runs once each time a failed refresh ends the session.
	OnLogout func()
	Logger   *logging.Service
	// RefreshCookieName and RefreshCookiePath match the server's AUTH_REFRESH_COOKIE_*
	// settings. They default to "refreshToken" and "/".
	RefreshCookieName string
	RefreshCookiePath string
}

type Client struct {
	baseURL  string
	http     *http.Client
	onLogout func()
	logger   *logging.Service

	cookieName string
	cookiePath string

	mu    sync.Mutex
	token string
	// epoch changes whenever local auth state is reset, so a refresh started
	// before a logout cannot install its token afterwards.
	epoch uint64

	refreshes singleflight.Group
}

func New(cfg Config) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		clone := *httpClient
		clone.Jar = jar
		httpClient = &clone
	}

	cookieName := cfg.RefreshCookieName
	if cookieName == "" {
		cookieName = "refreshToken"
	}
	cookiePath := cfg.RefreshCookiePath
	if cookiePath == "" {
		cookiePath = "/"
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       httpClient,
		onLogout:   cfg.OnLogout,
		logger:     cfg.Logger,
		cookieName: cookieName,
		cookiePath: cookiePath,
	}, nil
}

func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) snapshot() (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.epoch
}

// reset clears the access token and starts a new epoch.
func (c *Client) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.epoch++
}

// Do sends a JSON request to path and decodes the data field of the success
// envelope into out. out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	sent, epoch := c.snapshot()
	status, raw, err := c.send(ctx, method, path, payload, sent)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !isCredentialPath(path) && refreshable(raw) {
		token, err := c.refresh(ctx, sent, epoch)
		if err != nil {
			return err
		}
		if status, raw, err = c.send(ctx, method, path, payload, token); err != nil {
			return err
		}
	}

	return decode(status, raw, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

type envelope struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Code    string                `json:"code"`
	Errors  []apperror.FieldError `json:"errors"`
	Data    json.RawMessage       `json:"data"`
}

// refreshable reports whether a 401 body means the access token should be
// renewed. Invalid tokens and disabled accounts are surfaced instead.
func refreshable(raw []byte) bool {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	return env.Code == apperror.CodeTokenExpired || env.Code == apperror.CodeNoToken
}

func decode(status int, raw []byte, out any) error {
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("unexpected response (status %d): %w", status, err)
		}
	}

	if status < 200 || status >= 300 {
		return &APIError{
			Status:  status,
			Code:    env.Code,
			Message: env.Message,
			Fields:  env.Errors,
			Data:    env.Data,
		}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// refresh returns a usable access token for a request that failed while
// carrying sent. Concurrent callers share a single refresh call, and no call is
// made when the token or the epoch has changed since sent was read.
func (c *Client) refresh(ctx context.Context, sent string, sentEpoch uint64) (string, error) {
	current, epoch := c.snapshot()
	if current != "" && current != sent {
		return current, nil
	}
	if epoch != sentEpoch {
		return "", ErrSessionExpired
	}

	ch := c.refreshes.DoChan("refresh", func() (any, error) {
		return c.renew(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) renew(ctx context.Context) (string, error) {
	_, epoch := c.snapshot()

	status, raw, err := c.send(ctx, http.MethodPost, "/auth/refresh", nil, "")

	var data struct {
		AccessToken string `json:"accessToken"`
	}
	if err == nil {
		err = decode(status, raw, &data)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Debug("discarding refresh result from before logout")
		return "", ErrSessionExpired
	}
	if err != nil || data.AccessToken == "" {
		c.token = ""
		c.epoch++
		c.mu.Unlock()

		c.logger.Info("session refresh failed, logging out", zap.Error(err))
		if c.onLogout != nil {
			c.onLogout()
		}
		if err == nil {
			return "", ErrSessionExpired
		}
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	c.token = data.AccessToken
	c.mu.Unlock()

	return data.AccessToken, nil
}

type User struct {
	ID              uint   `json:"id"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	Department      string `json:"department"`
	IsEmailVerified bool   `json:"isEmailVerified"`
}

type Session struct {
	User        User   `json:"user"`
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// Login signs in and keeps the returned access token. The refresh cookie lands
// in the client's cookie jar.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := c.Do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	if err != nil {
		return nil, err
	}

	c.SetToken(session.AccessToken)
	return &session, nil
}

// Logout ends the server session, renewing an expired access token first so the
// server can drop the refresh token, then clears the token and the refresh
// cookie locally whatever the server answered. A refresh still in flight
// resolves but its token is discarded.
func (c *Client) Logout(ctx context.Context) error {
	if token, _ := c.snapshot(); token == "" && !c.hasRefreshCookie() {
		c.reset()
		return nil
	}
	err := c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil)

	c.reset()
	c.forgetRefreshCookie()

	var apiErr *APIError
	switch {
	case err == nil, errors.Is(err, ErrSessionExpired):
		return nil
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized:
		return nil
	default:
		return err
	}
}

func (c *Client) hasRefreshCookie() bool {
	if c.http.Jar == nil {
		return false
	}
	u, err := url.Parse(c.baseURL + "/auth/refresh")
	if err != nil {
		return false
	}
	for _, cookie := range c.http.Jar.Cookies(u) {
		if cookie.Name == c.cookieName {
			return true
		}
	}
	return false
}

// forgetRefreshCookie expires the refresh cookie in the jar so no later request
// can renew the session from it.
func (c *Client) forgetRefreshCookie() {
	if c.http.Jar == nil {
		return
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		c.logger.Warn("cannot clear refresh cookie", zap.Error(err))
		return
	}
	c.http.Jar.SetCookies(u, []*http.Cookie{{
		Name:   c.cookieName,
		Value:  "",
		Path:   c.cookiePath,
		MaxAge: -1,
	}})
}
