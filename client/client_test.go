package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/crmauth/apperror"
)

// fakeAPI mimics the auth routes: /auth/login issues "stale", /auth/refresh
// issues "fresh" when the refresh cookie is present, and /data only accepts
// whichever token is currently valid.
type fakeAPI struct {
	*httptest.Server

	mu          sync.Mutex
	valid       string
	refreshFail bool
	alwaysDeny  bool
	// strictLogout makes /auth/logout demand the valid access token.
	strictLogout bool
	logoutFail   bool
	revoked      bool
	// refreshGate, when set, blocks refresh responses until closed.
	refreshGate chan struct{}
	refreshSeen chan struct{}

	refreshCalls atomic.Int32
	dataCalls    atomic.Int32
	logoutCalls  atomic.Int32
	bodies       []string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{refreshSeen: make(chan struct{}, 16)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "Password123" {
			writeJSON(w, http.StatusUnauthorized, apperror.ErrorResponse{Message: "Invalid email or password", Code: apperror.CodeInvalidCredentials})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "r1", Path: "/", HttpOnly: true})
		writeJSON(w, http.StatusOK, apperror.Response{Success: true, Data: Session{
			User:        User{ID: 1, Email: "ada@example.com"},
			AccessToken: "stale",
			ExpiresIn:   900,
		}})
	})
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		f.refreshSeen <- struct{}{}
		if f.refreshGate != nil {
			<-f.refreshGate
		} else {
			time.Sleep(50 * time.Millisecond)
		}

		if _, err := r.Cookie("refreshToken"); err != nil {
			writeJSON(w, http.StatusUnauthorized, apperror.ErrorResponse{Code: apperror.CodeNoRefreshToken})
			return
		}
		f.mu.Lock()
		fail := f.refreshFail || f.revoked
		if !fail {
			f.valid = "fresh"
		}
		f.mu.Unlock()
		if fail {
			writeJSON(w, http.StatusUnauthorized, apperror.ErrorResponse{Code: apperror.CodeInvalidRefreshToken})
			return
		}
		writeJSON(w, http.StatusOK, apperror.Response{Success: true, Data: map[string]any{"accessToken": "fresh", "expiresIn": 900}})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logoutCalls.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.logoutFail {
			writeJSON(w, http.StatusInternalServerError, apperror.ErrorResponse{Message: "Failed to logout", Code: apperror.CodeServerError})
			return
		}
		if f.strictLogout && (f.valid == "" || r.Header.Get("Authorization") != "Bearer "+f.valid) {
			writeJSON(w, http.StatusUnauthorized, apperror.ErrorResponse{Code: apperror.CodeTokenExpired})
			return
		}
		f.revoked = true
		writeJSON(w, http.StatusOK, apperror.Response{Success: true})
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		f.dataCalls.Add(1)
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		f.bodies = append(f.bodies, string(body))
		ok := !f.alwaysDeny && f.valid != "" && r.Header.Get("Authorization") == "Bearer "+f.valid
		f.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusUnauthorized, apperror.ErrorResponse{Code: apperror.CodeTokenExpired})
			return
		}
		writeJSON(w, http.StatusOK, apperror.Response{Success: true, Data: map[string]string{"value": "ok"}})
	})
	mux.HandleFunc("/api/invalid", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, apperror.ErrorResponse{Code: apperror.CodeInvalidToken})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func loggedIn(t *testing.T, f *fakeAPI, onLogout func()) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: f.URL + "/api/", OnLogout: onLogout})
	require.NoError(t, err)

	session, err := c.Login(context.Background(), "ada@example.com", "Password123")
	require.NoError(t, err)
	assert.Equal(t, "stale", session.AccessToken)
	assert.Equal(t, "stale", c.Token())
	return c
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	f := newFakeAPI(t)
	c := loggedIn(t, f, nil)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out struct {
				Value string `json:"value"`
			}
			errs[i] = c.Do(context.Background(), http.MethodGet, "/data", nil, &out)
			if errs[i] == nil && out.Value != "ok" {
				errs[i] = errors.New("unexpected payload " + out.Value)
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.refreshCalls.Load())
	assert.Equal(t, "fresh", c.Token())
}

func TestRetriesOnlyOnce(t *testing.T) {
	f := newFakeAPI(t)
	f.alwaysDeny = true
	c := loggedIn(t, f, nil)

	err := c.Do(context.Background(), http.MethodGet, "/data", nil, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, apperror.CodeTokenExpired, apiErr.Code)
	assert.EqualValues(t, 1, f.refreshCalls.Load())
	assert.EqualValues(t, 2, f.dataCalls.Load())
}

func TestReplaysRequestBody(t *testing.T) {
	f := newFakeAPI(t)
	c := loggedIn(t, f, nil)

	require.NoError(t, c.Do(context.Background(), http.MethodPost, "/data", map[string]string{"name": "Acme"}, nil))

	require.Len(t, f.bodies, 2)
	assert.JSONEq(t, `{"name":"Acme"}`, f.bodies[0])
	assert.Equal(t, f.bodies[0], f.bodies[1])
}

func TestRefreshFailureLogsOutOnce(t *testing.T) {
	f := newFakeAPI(t)
	f.refreshFail = true
	var logouts atomic.Int32
	c := loggedIn(t, f, func() { logouts.Add(1) })

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), http.MethodGet, "/data", nil, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSessionExpired)
	}
	assert.EqualValues(t, 1, logouts.Load())
	assert.EqualValues(t, 1, f.refreshCalls.Load())
	assert.Empty(t, c.Token())
}

func TestCredentialEndpointsAreNotRetried(t *testing.T) {
	f := newFakeAPI(t)
	c, err := New(Config{BaseURL: f.URL + "/api"})
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "ada@example.com", "wrong")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperror.CodeInvalidCredentials, apiErr.Code)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	assert.Zero(t, f.refreshCalls.Load())
	assert.Empty(t, c.Token())
}

func TestInvalidTokenIsSurfaced(t *testing.T) {
	f := newFakeAPI(t)
	c := loggedIn(t, f, nil)

	err := c.Do(context.Background(), http.MethodGet, "/invalid", nil, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperror.CodeInvalidToken, apiErr.Code)
	assert.Zero(t, f.refreshCalls.Load())
}

func TestLogoutDuringRefreshDiscardsToken(t *testing.T) {
	f := newFakeAPI(t)
	f.refreshGate = make(chan struct{})
	var logouts atomic.Int32
	c := loggedIn(t, f, func() { logouts.Add(1) })

	done := make(chan error, 1)
	go func() {
		done <- c.Do(context.Background(), http.MethodGet, "/data", nil, nil)
	}()

	select {
	case <-f.refreshSeen:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh was never requested")
	}

	require.NoError(t, c.Logout(context.Background()))
	close(f.refreshGate)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionExpired)
	case <-time.After(5 * time.Second):
		t.Fatal("request did not finish")
	}

	assert.Empty(t, c.Token())
	assert.Zero(t, logouts.Load())
}

func (c *Client) jarHasRefreshCookie(t *testing.T) bool {
	t.Helper()
	u, err := url.Parse(c.baseURL)
	require.NoError(t, err)
	for _, cookie := range c.http.Jar.Cookies(u) {
		if cookie.Name == "refreshToken" {
			return true
		}
	}
	return false
}

func TestLogoutWithExpiredTokenRenewsFirst(t *testing.T) {
	f := newFakeAPI(t)
	f.strictLogout = true
	var logouts atomic.Int32
	c := loggedIn(t, f, func() { logouts.Add(1) })
	require.True(t, c.jarHasRefreshCookie(t))

	require.NoError(t, c.Logout(context.Background()))

	assert.EqualValues(t, 2, f.logoutCalls.Load())
	assert.EqualValues(t, 1, f.refreshCalls.Load())
	f.mu.Lock()
	assert.True(t, f.revoked)
	f.mu.Unlock()
	assert.Empty(t, c.Token())
	assert.False(t, c.jarHasRefreshCookie(t))
	assert.Zero(t, logouts.Load())

	// Nothing is left to log back in with.
	err := c.Do(context.Background(), http.MethodGet, "/data", nil, nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, c.Token())
}

func TestLogoutClearsCookieWhenServerFails(t *testing.T) {
	f := newFakeAPI(t)
	f.logoutFail = true
	c := loggedIn(t, f, nil)

	err := c.Logout(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Empty(t, c.Token())
	assert.False(t, c.jarHasRefreshCookie(t))

	before := f.dataCalls.Load()
	err = c.Do(context.Background(), http.MethodGet, "/data", nil, nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, before+1, f.dataCalls.Load())
}

func TestLogoutWithoutSessionSkipsServer(t *testing.T) {
	f := newFakeAPI(t)
	c, err := New(Config{BaseURL: f.URL + "/api"})
	require.NoError(t, err)

	require.NoError(t, c.Logout(context.Background()))
	assert.Zero(t, f.logoutCalls.Load())
}

func TestMissingTokenRefreshesFromCookie(t *testing.T) {
	f := newFakeAPI(t)
	c := loggedIn(t, f, nil)
	c.SetToken("")

	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/data", nil, nil))
	assert.Equal(t, "fresh", c.Token())
}

func TestIsCredentialPath(t *testing.T) {
	assert.True(t, isCredentialPath("/auth/login"))
	assert.True(t, isCredentialPath("/auth/reset-password/abc"))
	assert.False(t, isCredentialPath("/auth/me"))
	assert.False(t, isCredentialPath("/auth/login-history"))
}
