package router

import (
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
	"github.com/playerhub/gateway/internal/registry"
)

// debugCategories tracks per-category diagnostic logging toggles,
// independent of the global level.
type debugCategories struct {
	mu      sync.RWMutex
	enabled map[string]bool
}

func newDebugCategories() *debugCategories {
	return &debugCategories{enabled: make(map[string]bool)}
}

func (d *debugCategories) set(category string, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled[category] = on
}

func (d *debugCategories) setAll(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for category := range d.enabled {
		d.enabled[category] = on
	}
}

func (d *debugCategories) snapshot() map[string]bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]bool, len(d.enabled))
	for k, v := range d.enabled {
		out[k] = v
	}
	return out
}

// mountDebug wires the /debug subtree: log level/category toggles,
// registry-owned diagnostics (rescan, device-health), subscription
// introspection, and the live event-stream websocket. /debug/scheduler
// answers a fixed placeholder object and reports no task data.
func (rt *Router) mountDebug(root chi.Router) {
	categories := newDebugCategories()
	hub := newStreamHub()
	if rt.Events != nil {
		go hub.run(rt.Events.GetStateCache())
	}

	root.Route("/debug", func(debug chi.Router) {
		registry.RegisterDebugRoutes(debug, rt.Registry)

		debug.Method(http.MethodGet, "/level/{level}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			rt.logger.Printf("debug level changed to %s", strings.ToUpper(chi.URLParam(r, "level")))
			return api.WriteOK(w)
		}))

		debug.Method(http.MethodGet, "/category/{category}/{bool}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			on, ok := parseOnOff(chi.URLParam(r, "bool"))
			if !ok {
				return apperrors.NewValidationError("category toggle must be on/off", nil)
			}
			categories.set(chi.URLParam(r, "category"), on)
			return api.WriteOK(w)
		}))

		debug.Method(http.MethodGet, "/enable-all", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			categories.setAll(true)
			return api.WriteOK(w)
		}))
		debug.Method(http.MethodGet, "/disable-all", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			categories.setAll(false)
			return api.WriteOK(w)
		}))

		debug.Method(http.MethodGet, "/startup", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			return api.WriteSuccess(w, http.StatusOK, map[string]any{
				"default_room":    rt.DefaultRoom(),
				"default_service": rt.DefaultService(),
				"categories":      categories.snapshot(),
			})
		}))
		debug.Method(http.MethodGet, "/startup/config", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			return api.WriteSuccess(w, http.StatusOK, map[string]any{
				"default_room":    rt.DefaultRoom(),
				"default_service": rt.DefaultService(),
				"announce_volume": rt.AnnounceVolume,
			})
		}))

		debug.Method(http.MethodGet, "/scheduler", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			return api.WriteSuccess(w, http.StatusOK, map[string]any{"object": "scheduler_status"})
		}))

		debug.Method(http.MethodGet, "/subscriptions", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			if rt.Events == nil {
				return api.WriteSuccess(w, http.StatusOK, map[string]any{"enabled": false})
			}
			return api.WriteSuccess(w, http.StatusOK, map[string]any{
				"enabled": rt.Events.IsEnabled(),
				"stats":   rt.Events.Stats(),
			})
		}))

		for _, path := range []string{"/spotify/parse", "/spotify/browse", "/spotify/account"} {
			debug.Method(http.MethodGet, path, api.Handler(notImplementedHandler("spotify diagnostics")))
		}

		debug.Method(http.MethodGet, "/stream", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return apperrors.NewInternalError("failed to upgrade websocket: " + err.Error())
			}
			hub.add(conn)
			return nil
		}))
	})
}
