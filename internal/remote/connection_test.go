package remote_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhollis/skiff/internal/config"
	"github.com/mhollis/skiff/internal/models"
	"github.com/mhollis/skiff/internal/remote"
)

func testConn(t *testing.T, cfg config.BackendConfig) *remote.Connection {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	conn, err := remote.NewConnection(&cfg, zerolog.Nop())
	require.NoError(t, err)
	return conn
}

func TestNewConnectionRequiresBaseURL(t *testing.T) {
	_, err := remote.NewConnection(&config.BackendConfig{Timeout: time.Second}, zerolog.Nop())
	assert.ErrorIs(t, err, models.ErrNotConfigured)
}

func TestAuthURLAttachesPasswordAsQuery(t *testing.T) {
	conn := testConn(t, config.BackendConfig{
		BaseURL:  "http://backend:3923",
		RootPath: "/share",
		Password: "s3cret",
	})

	u := conn.AuthURL("/docs/a.txt")
	assert.Equal(t, "/share/docs/a.txt", u.Path)
	assert.Equal(t, "s3cret", u.Query().Get("pw"))

	req, err := conn.NewRequest(context.Background(), http.MethodGet, "/docs/a.txt", nil)
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, "s3cret", req.URL.Query().Get("pw"))
}

func TestUpstreamPathCannotEscapeRoot(t *testing.T) {
	conn := testConn(t, config.BackendConfig{
		BaseURL:  "http://backend:3923/base",
		RootPath: "/share",
	})

	u := conn.UpstreamURL("/../../../etc/passwd")
	assert.Equal(t, "/base/share/etc/passwd", u.Path)
}

func TestMutatingRequestsSpoofOrigin(t *testing.T) {
	conn := testConn(t, config.BackendConfig{BaseURL: "http://backend:3923"})

	mv, err := conn.NewRequest(context.Background(), "MOVE", "/a", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://backend:3923", mv.Header.Get("Origin"))
	assert.Equal(t, "http://backend:3923/", mv.Header.Get("Referer"))

	get, err := conn.NewRequest(context.Background(), http.MethodGet, "/a", nil)
	require.NoError(t, err)
	assert.Empty(t, get.Header.Get("Origin"))
}

func TestPublicBaseLoopbackRewrite(t *testing.T) {
	conn := testConn(t, config.BackendConfig{BaseURL: "http://localhost:3923/base"})

	u := conn.PublicBase("https://files.example.com:8443")
	assert.Equal(t, "files.example.com:3923", u.Host)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "/base", u.Path)
}

func TestPublicBaseKeepsNonLoopbackHost(t *testing.T) {
	conn := testConn(t, config.BackendConfig{BaseURL: "http://backend.lan:3923"})
	u := conn.PublicBase("https://files.example.com")
	assert.Equal(t, "backend.lan:3923", u.Host)
}

func TestPublicBaseExplicitOverrideWins(t *testing.T) {
	conn := testConn(t, config.BackendConfig{
		BaseURL:       "http://localhost:3923",
		PublicBaseURL: "https://public.example.org/files",
	})
	u := conn.PublicBase("https://other.example.com")
	assert.Equal(t, "public.example.org", u.Host)
	assert.Equal(t, "https", u.Scheme)
}

func TestPublicBaseParseFailureFallsBack(t *testing.T) {
	conn := testConn(t, config.BackendConfig{BaseURL: "http://127.0.0.1:3923"})
	u := conn.PublicBase("http://[::1")
	assert.Equal(t, "127.0.0.1:3923", u.Host)
}

func TestPublicBaseLoopbackVariants(t *testing.T) {
	for _, base := range []string{
		"http://localhost:3923",
		"http://127.0.0.1:3923",
		"http://[::1]:3923",
		"http://dev.localhost:3923",
	} {
		conn := testConn(t, config.BackendConfig{BaseURL: base})
		u := conn.PublicBase("https://outside.example.net")
		assert.Equal(t, "outside.example.net", u.Hostname(), "base %s", base)
	}
}

func TestWithForwardedCookieOnlySameHost(t *testing.T) {
	conn := testConn(t, config.BackendConfig{
		BaseURL: "http://backend.lan:3923",
		Cookie:  "base=1",
	})

	same := conn.WithForwarded("session=abc", "http://backend.lan:8080")
	req, err := same.NewRequest(context.Background(), http.MethodGet, "/", nil)
	require.NoError(t, err)
	assert.Equal(t, "base=1; session=abc", req.Header.Get("Cookie"))

	cross := conn.WithForwarded("session=abc", "http://evil.example.com")
	req, err = cross.NewRequest(context.Background(), http.MethodGet, "/", nil)
	require.NoError(t, err)
	assert.Equal(t, "base=1", req.Header.Get("Cookie"))
}

func TestDoTimedDistinguishesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	conn := testConn(t, config.BackendConfig{
		BaseURL: server.URL,
		Timeout: 30 * time.Millisecond,
	})

	req, err := conn.NewRequest(context.Background(), http.MethodGet, "/", nil)
	require.NoError(t, err)

	_, err = conn.DoTimed(req)
	assert.ErrorIs(t, err, models.ErrTimeout)

	var netErr *models.NetworkError
	assert.False(t, errors.As(err, &netErr))
}

func TestDoTimedNetworkError(t *testing.T) {
	// Nothing listens here.
	conn := testConn(t, config.BackendConfig{BaseURL: "http://127.0.0.1:1"})

	req, err := conn.NewRequest(context.Background(), http.MethodGet, "/", nil)
	require.NoError(t, err)

	_, err = conn.DoTimed(req)

	var netErr *models.NetworkError
	assert.True(t, errors.As(err, &netErr))
	assert.NotErrorIs(t, err, models.ErrTimeout)
}

func TestDoTimedSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	conn := testConn(t, config.BackendConfig{BaseURL: server.URL})

	req, err := conn.NewRequest(context.Background(), http.MethodGet, "/", nil)
	require.NoError(t, err)

	resp, err := conn.DoTimed(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}
