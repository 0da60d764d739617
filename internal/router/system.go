package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
	"github.com/playerhub/gateway/internal/registry"
)

func (rt *Router) mountSystem(root chi.Router) {
	root.Method(http.MethodGet, "/zones", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		topo, err := rt.Registry.GetTopology()
		if err != nil {
			return apperrors.NewInternalError("failed to get topology: " + err.Error())
		}
		return api.WriteList(w, topo)
	}))

	root.Method(http.MethodGet, "/devices", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		devices, err := rt.Registry.GetDevices()
		if err != nil {
			return apperrors.NewInternalError("failed to get devices: " + err.Error())
		}
		targetable := registry.DedupeDevices(devices)
		formatted := make([]map[string]any, 0, len(targetable))
		for _, device := range targetable {
			formatted = append(formatted, registry.FormatDevice(device))
		}
		return api.WriteList(w, formatted)
	}))

	root.Method(http.MethodGet, "/devices/id/{id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		device, err := rt.Registry.GetDevice(id)
		if err != nil || device == nil {
			return apperrors.NewNotFoundResource("device", id)
		}
		return api.WriteResource(w, http.StatusOK, registry.FormatDevice(*device))
	}))

	root.Method(http.MethodGet, "/devices/room/{room}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		device, err := rt.resolveRoom(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, registry.FormatDevice(*device))
	}))

	root.Method(http.MethodGet, "/state", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if rt.Events == nil {
			return api.WriteList(w, []any{})
		}
		return api.WriteList(w, rt.Events.GetStateCache().List())
	}))

	root.Method(http.MethodGet, "/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteSuccess(w, http.StatusOK, map[string]any{
			"discovery_healthy": rt.Registry.IsHealthy(),
		})
	}))

	root.Method(http.MethodGet, "/services", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteList(w, rt.Services.GetServices())
	}))

	root.Method(http.MethodPost, "/services/refresh", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if err := rt.Services.Refresh(r.Context()); err != nil {
			return apperrors.NewInternalError("failed to refresh services: " + err.Error())
		}
		return api.WriteOK(w)
	}))

	root.Method(http.MethodGet, "/settings", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteSuccess(w, http.StatusOK, map[string]any{
			"default_room":    rt.DefaultRoom(),
			"default_service": rt.DefaultService(),
			"announce_volume": rt.AnnounceVolume,
		})
	}))
}
