package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/playerhub/gateway/internal/config"
)

func newTestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_DisabledWhenNoUsernameConfigured(t *testing.T) {
	cfg := config.Config{}
	mw := Middleware(cfg)(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/zones", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_RejectsMissingCredentials(t *testing.T) {
	cfg := config.Config{AuthUsername: "admin", AuthPassword: "secret"}
	mw := Middleware(cfg)(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/zones", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_AcceptsValidCredentials(t *testing.T) {
	cfg := config.Config{AuthUsername: "admin", AuthPassword: "secret"}
	mw := Middleware(cfg)(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/zones", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_RejectsWrongPassword(t *testing.T) {
	cfg := config.Config{AuthUsername: "admin", AuthPassword: "secret"}
	mw := Middleware(cfg)(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/zones", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_ExemptsHealthEvenWithoutCredentials(t *testing.T) {
	cfg := config.Config{AuthUsername: "admin", AuthPassword: "secret"}
	mw := Middleware(cfg)(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_ExemptsSpotifyCallback(t *testing.T) {
	cfg := config.Config{AuthUsername: "admin", AuthPassword: "secret"}
	mw := Middleware(cfg)(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/spotify/callback", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_SkipsAuthForTrustedNetwork(t *testing.T) {
	cfg := config.Config{
		AuthUsername:    "admin",
		AuthPassword:    "secret",
		TrustedNetworks: []string{"192.168.1.0/24"},
	}
	mw := Middleware(cfg)(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/zones", nil)
	req.RemoteAddr = "192.168.1.50:51515"
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_DoesNotTrustPeerOutsideConfiguredNetwork(t *testing.T) {
	cfg := config.Config{
		AuthUsername:    "admin",
		AuthPassword:    "secret",
		TrustedNetworks: []string{"192.168.1.0/24"},
	}
	mw := Middleware(cfg)(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/zones", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_HonorsXForwardedForWhenCheckingTrustedNetwork(t *testing.T) {
	cfg := config.Config{
		AuthUsername:    "admin",
		AuthPassword:    "secret",
		TrustedNetworks: []string{"192.168.1.0/24"},
	}
	mw := Middleware(cfg)(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/zones", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	req.Header.Set("X-Forwarded-For", "192.168.1.77, 203.0.113.9")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
