package router

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
	"github.com/playerhub/gateway/internal/player/soap"
)

// mountFavorites wires favourites and playlists, including the British
// spelling aliases ("favourite"/"favourites").
func (rt *Router) mountFavorites(root chi.Router) {
	list := api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		result, err := rt.Player.BrowseFavorites(0, 200)
		if err != nil {
			return apperrors.NewInternalError("failed to browse favorites: " + err.Error())
		}
		return api.WriteList(w, result.Items)
	})
	for _, path := range []string{"/{room}/favorites", "/{room}/favorites/detailed", "/{room}/favourites", "/{room}/favourites/detailed"} {
		root.Method(http.MethodGet, path, list)
	}

	play := api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.playFavoriteByName(w, chi.URLParam(r, "room"), chi.URLParam(r, "name"))
	})
	root.Method(http.MethodGet, "/{room}/favorite/{name}", play)
	root.Method(http.MethodGet, "/{room}/favourite/{name}", play)

	playlists := api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		_, ip, err := rt.withCoordinator(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		result, err := rt.Player.BrowsePlaylists(ip, 0, 200)
		if err != nil {
			return apperrors.NewInternalError("failed to browse playlists: " + err.Error())
		}
		return api.WriteList(w, result.Items)
	})
	root.Method(http.MethodGet, "/{room}/playlists", playlists)
	root.Method(http.MethodGet, "/{room}/playlists/detailed", playlists)

	playPlaylist := api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.playPlaylistByName(w, chi.URLParam(r, "room"), chi.URLParam(r, "name"))
	})
	root.Method(http.MethodGet, "/{room}/playlist/{name}", playPlaylist)
}

func (rt *Router) playFavoriteByName(w http.ResponseWriter, roomName, name string) error {
	_, ip, err := rt.withCoordinator(roomName)
	if err != nil {
		return err
	}
	result, err := rt.Player.BrowseFavorites(0, 200)
	if err != nil {
		return apperrors.NewInternalError("failed to browse favorites: " + err.Error())
	}
	favorite, ok := findItemByTitle(result.Items, name)
	if !ok {
		return apperrors.NewFavouriteNotFoundError(name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), soapTimeout())
	defer cancel()
	resolved, err := rt.Resolver.ResolveFavorite(ctx, favorite.ID, ip)
	if err != nil {
		return apperrors.NewInternalError("failed to resolve favorite: " + err.Error())
	}
	if err := rt.Player.SetAVTransportURIWithMetadata(ip, resolved.URI, resolved.Metadata); err != nil {
		return apperrors.NewInternalError("failed to play favorite: " + err.Error())
	}
	if err := rt.Player.Play(ip); err != nil {
		return apperrors.NewInternalError("failed to start playback: " + err.Error())
	}
	return api.WriteOK(w)
}

func (rt *Router) playPlaylistByName(w http.ResponseWriter, roomName, name string) error {
	_, ip, err := rt.withCoordinator(roomName)
	if err != nil {
		return err
	}
	result, err := rt.Player.BrowsePlaylists(ip, 0, 200)
	if err != nil {
		return apperrors.NewInternalError("failed to browse playlists: " + err.Error())
	}
	playlist, ok := findItemByTitle(result.Items, name)
	if !ok {
		return apperrors.NewNotFoundResource("playlist", name)
	}
	if err := rt.Player.RemoveAllTracksFromQueue(ip); err != nil {
		return apperrors.NewInternalError("failed to clear queue: " + err.Error())
	}
	if _, err := rt.Player.AddURIToQueue(ip, playlist.Resource, playlist.ResourceMetaData, 0, false); err != nil {
		return apperrors.NewInternalError("failed to queue playlist: " + err.Error())
	}
	if err := rt.Player.SetAVTransportURIWithMetadata(ip, "x-rincon-queue:"+playlist.ID+"#0", ""); err != nil {
		return apperrors.NewInternalError("failed to select queue: " + err.Error())
	}
	if err := rt.Player.Play(ip); err != nil {
		return apperrors.NewInternalError("failed to start playback: " + err.Error())
	}
	return api.WriteOK(w)
}

func findItemByTitle(items []soap.FavoriteItem, name string) (soap.FavoriteItem, bool) {
	lower := strings.ToLower(name)
	for _, item := range items {
		if strings.ToLower(item.Title) == lower {
			return item, true
		}
	}
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Title), lower) {
			return item, true
		}
	}
	return soap.FavoriteItem{}, false
}
