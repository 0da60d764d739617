// Package auth implements the gateway's optional HTTP basic authentication
// gate: when no credentials are configured auth is a no-op, and peers on a
// trusted network always skip the check regardless of configuration.
package auth

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
	"github.com/playerhub/gateway/internal/config"
)

// exemptPaths never require auth, even when credentials are configured.
var exemptPaths = map[string]struct{}{
	"/health":           {},
	"/v1/health":        {},
	"/v1/health/live":   {},
	"/v1/health/ready":  {},
	"/spotify/callback": {},
	"/metrics":          {},
}

// Middleware enforces HTTP basic auth per the household's configuration.
// Auth is disabled entirely when cfg.AuthUsername is empty. When enabled,
// requests from a source IP inside cfg.TrustedNetworks skip the check, and
// exemptPaths are always reachable unauthenticated.
func Middleware(cfg config.Config) func(http.Handler) http.Handler {
	trusted := parseNetworks(cfg.TrustedNetworks)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.AuthUsername == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if isTrustedPeer(r, trusted) {
				next.ServeHTTP(w, r)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok || !credentialsMatch(user, pass, cfg.AuthUsername, cfg.AuthPassword) {
				w.Header().Set("WWW-Authenticate", `Basic realm="gateway"`)
				api.WriteError(w, r, apperrors.NewAuthRequiredError("missing or invalid credentials"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func credentialsMatch(gotUser, gotPass, wantUser, wantPass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(gotUser), []byte(wantUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(gotPass), []byte(wantPass)) == 1
	return userOK && passOK
}

func parseNetworks(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}

func isTrustedPeer(r *http.Request, trusted []*net.IPNet) bool {
	if len(trusted) == 0 {
		return false
	}
	ip := net.ParseIP(sourceIP(r))
	if ip == nil {
		return false
	}
	for _, ipNet := range trusted {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// sourceIP extracts the caller's address, preferring X-Forwarded-For when
// present (the gateway may sit behind a reverse proxy on the LAN).
func sourceIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
