package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
)

// mountServiceSpecifics wires the named-service routes (siriusxm, pandora,
// spotify). Pandora and SiriusXM are both station.Manager-backed; Spotify
// is URI-building only (the catalogue resolver never calls the Spotify Web
// API), so its auth/search routes answer NotImplemented.
func (rt *Router) mountServiceSpecifics(root chi.Router) {
	root.Method(http.MethodGet, "/{room}/siriusxm/{name}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.playStation(w, chi.URLParam(r, "room"), "siriusxm", chi.URLParam(r, "name"))
	}))

	root.Method(http.MethodGet, "/{room}/pandora/play/{name}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.playStation(w, chi.URLParam(r, "room"), "pandora", chi.URLParam(r, "name"))
	}))
	root.Method(http.MethodGet, "/{room}/pandora/thumbsup", api.Handler(notImplementedHandler("pandora thumbsup")))
	root.Method(http.MethodGet, "/{room}/pandora/thumbsdown", api.Handler(notImplementedHandler("pandora thumbsdown")))
	root.Method(http.MethodGet, "/{room}/pandora/clear", api.Handler(notImplementedHandler("pandora clear")))

	pandoraStations := api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		manager, ok := rt.Stations["pandora"]
		if !ok {
			return apperrors.NewServiceUnconfiguredError("pandora")
		}
		return api.WriteList(w, manager.List())
	})
	root.Method(http.MethodGet, "/{room}/pandora/stations", pandoraStations)
	root.Method(http.MethodGet, "/{room}/pandora/stations/detailed", pandoraStations)
	root.Method(http.MethodGet, "/pandora/stations", pandoraStations)

	root.Method(http.MethodGet, "/pandora/status", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		manager, ok := rt.Stations["pandora"]
		if !ok {
			return apperrors.NewServiceUnconfiguredError("pandora")
		}
		return api.WriteSuccess(w, http.StatusOK, map[string]any{
			"in_backoff":         manager.IsInBackoff(),
			"backoff_remaining": manager.GetBackoffRemaining().String(),
			"station_count":     len(manager.List()),
		})
	}))

	root.Method(http.MethodGet, "/{room}/spotify/play/{id}", api.Handler(notImplementedHandler("spotify direct play")))
	for _, path := range []string{"/spotify/auth", "/spotify/auth-url", "/spotify/callback", "/spotify/status"} {
		root.Method(http.MethodGet, path, api.Handler(notImplementedHandler("spotify OAuth")))
	}
	root.Method(http.MethodPost, "/spotify/callback-url", api.Handler(notImplementedHandler("spotify OAuth")))
}

func (rt *Router) playStation(w http.ResponseWriter, roomName, service, name string) error {
	manager, ok := rt.Stations[service]
	if !ok {
		return apperrors.NewServiceUnconfiguredError(service)
	}
	stationRecord, found := manager.FindStation(name)
	if !found {
		return apperrors.NewStationNotFoundError(name)
	}
	_, ip, err := rt.withCoordinator(roomName)
	if err != nil {
		return err
	}
	if err := rt.Player.SetAVTransportURIWithMetadata(ip, stationRecord.URI, stationRecord.Metadata); err != nil {
		return apperrors.NewInternalError("failed to play station: " + err.Error())
	}
	if err := rt.Player.Play(ip); err != nil {
		return apperrors.NewInternalError("failed to start playback: " + err.Error())
	}
	return api.WriteOK(w)
}

func notImplementedHandler(what string) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		return apperrors.NewNotImplementedError(what + " is not implemented")
	}
}

// mountGlobal wires /pauseall, /resumeAll, /loglevel/{level},
// /default[/room/{room}|/service/{service}].
func (rt *Router) mountGlobal(root chi.Router) {
	root.Method(http.MethodGet, "/pauseall", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		_ = rt.pauseOrResumeAllCoordinators(false)
		return api.WriteOK(w)
	}))
	root.Method(http.MethodGet, "/resumeAll", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		_ = rt.pauseOrResumeAllCoordinators(true)
		return api.WriteOK(w)
	}))

	root.Method(http.MethodGet, "/loglevel/{level}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		level := strings.ToUpper(chi.URLParam(r, "level"))
		rt.logger.Printf("log level changed to %s", level)
		return api.WriteOK(w)
	}))

	root.Method(http.MethodGet, "/default", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteSuccess(w, http.StatusOK, map[string]any{
			"room":    rt.DefaultRoom(),
			"service": rt.DefaultService(),
		})
	}))
	root.Method(http.MethodGet, "/default/room/{room}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		device, err := rt.resolveRoom(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		rt.SetDefaultRoom(device.RoomName)
		return api.WriteOK(w)
	}))
	root.Method(http.MethodGet, "/default/service/{service}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		rt.SetDefaultService(chi.URLParam(r, "service"))
		return api.WriteOK(w)
	}))
}
