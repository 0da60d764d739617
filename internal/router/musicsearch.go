package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
	"github.com/playerhub/gateway/internal/library"
)

// mountMusicSearch wires /{room}/musicsearch/{service}/{kind}/{term} (plus
// the default-room forms that omit {room}) and the library-only variant.
// Only the "library" service and, for station-backed services, the
// "station" kind can be resolved without a real catalogue search API; all
// other combinations answer NotImplemented.
func (rt *Router) mountMusicSearch(root chi.Router) {
	root.Method(http.MethodGet, "/{room}/musicsearch/{service}/{kind}/{term}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.musicSearch(w, r, chi.URLParam(r, "room"))
	}))
	for _, kind := range []string{"song", "album", "station", "artist"} {
		path := "/" + kind + "/{term}"
		kind := kind
		root.Method(http.MethodGet, path, api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			play := r.URL.Query().Get("play") != "false"
			return rt.dispatchMusicSearch(w, rt.DefaultRoom(), rt.DefaultService(), kind, chi.URLParam(r, "term"), play)
		}))
	}
	root.Method(http.MethodGet, "/{room}/musicsearch/library/{kind}/{term}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.librarySearch(w, r, chi.URLParam(r, "room"))
	}))
}

func (rt *Router) musicSearch(w http.ResponseWriter, r *http.Request, room string) error {
	service := chi.URLParam(r, "service")
	kind := chi.URLParam(r, "kind")
	term := chi.URLParam(r, "term")
	play := r.URL.Query().Get("play") != "false"
	if strings.EqualFold(service, "library") {
		return rt.librarySearch(w, r, room)
	}
	return rt.dispatchMusicSearch(w, room, service, kind, term, play)
}

func (rt *Router) dispatchMusicSearch(w http.ResponseWriter, room, service, kind, term string, play bool) error {
	if service == "" {
		return apperrors.NewValidationError("no service specified and no default service configured", nil)
	}
	if kind == "station" {
		manager, ok := rt.Stations[strings.ToLower(service)]
		if !ok {
			return apperrors.NewServiceUnconfiguredError(service)
		}
		stationRecord, found := manager.FindStation(term)
		if !found {
			return apperrors.NewStationNotFoundError(term)
		}
		if !play {
			return api.WriteResource(w, http.StatusOK, stationRecord)
		}
		_, ip, err := rt.withCoordinator(room)
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

	// song/album/artist free-text search against a streaming service
	// catalogue requires a real search API this gateway does not have:
	// it can only build URIs from IDs it already knows (favourites,
	// saved stations), never resolve arbitrary search terms.
	return apperrors.NewNotImplementedError("music search against " + service + " is not implemented")
}

func (rt *Router) librarySearch(w http.ResponseWriter, r *http.Request, room string) error {
	if rt.Library == nil || !rt.Library.IsReady() {
		return apperrors.NewLibraryNotReadyError()
	}
	kind := chi.URLParam(r, "kind")
	term := chi.URLParam(r, "term")
	play := r.URL.Query().Get("play") != "false"

	query := buildLibraryQuery(kind, term)
	tracks := rt.Library.Search(query.Raw, 50)
	if len(tracks) == 0 {
		return apperrors.NewNotFoundResource("track", term)
	}
	if !play {
		return api.WriteList(w, tracks)
	}

	_, ip, err := rt.withCoordinator(room)
	if err != nil {
		return err
	}
	if err := rt.Player.RemoveAllTracksFromQueue(ip); err != nil {
		return apperrors.NewInternalError("failed to clear queue: " + err.Error())
	}
	for _, track := range tracks {
		if _, err := rt.Player.AddURIToQueue(ip, track.URI, "", 0, false); err != nil {
			return apperrors.NewInternalError("failed to queue track: " + err.Error())
		}
	}
	if err := rt.Player.Play(ip); err != nil {
		return apperrors.NewInternalError("failed to start playback: " + err.Error())
	}
	return api.WriteOK(w)
}

func buildLibraryQuery(kind, term string) library.Query {
	switch kind {
	case "song":
		return library.ParseQuery(term)
	case "album":
		return library.Query{Album: term, Raw: term}
	case "artist":
		return library.Query{Artist: term, Raw: term}
	default:
		return library.ParseQuery(term)
	}
}

// mountLibraryAdmin wires /library/index|refresh|summary|detailed.
func (rt *Router) mountLibraryAdmin(root chi.Router) {
	root.Method(http.MethodGet, "/library/index", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.reindexLibrary(w, r)
	}))
	root.Method(http.MethodGet, "/library/refresh", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.reindexLibrary(w, r)
	}))
	root.Method(http.MethodGet, "/library/summary", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteResource(w, http.StatusOK, rt.Library.Summary())
	}))
	root.Method(http.MethodGet, "/library/detailed", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteResource(w, http.StatusOK, rt.Library.Summary())
	}))
}

func (rt *Router) reindexLibrary(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()
	if err := rt.Library.Reindex(ctx); err != nil {
		return apperrors.NewInternalError("failed to reindex library: " + err.Error())
	}
	return api.WriteOK(w)
}
