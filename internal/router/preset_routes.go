package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
	"github.com/playerhub/gateway/internal/events"
)

// mountPresets wires GET /presets[/detailed], and the per-preset
// save/play routes: POST /{room}/preset/{name} saves a declarative
// recipe (target room(s), optional volume, optional URI or favourite
// name); GET /preset/{name} and GET /preset/{name}/room/{room} play it
// (to its saved room, or to an explicit override).
func (rt *Router) mountPresets(root chi.Router) {
	root.Method(http.MethodGet, "/presets", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		presets, err := rt.Presets.List()
		if err != nil {
			return apperrors.NewInternalError("failed to list presets: " + err.Error())
		}
		return api.WriteList(w, presets)
	}))

	root.Method(http.MethodGet, "/presets/detailed", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		presets, err := rt.Presets.List()
		if err != nil {
			return apperrors.NewInternalError("failed to list presets: " + err.Error())
		}
		return api.WriteList(w, presets)
	}))

	root.Method(http.MethodPost, "/{room}/preset/{name}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		device, err := rt.resolveRoom(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		name := chi.URLParam(r, "name")

		var body struct {
			Players  []string `json:"players"`
			URI      string   `json:"uri"`
			Favorite string   `json:"favorite"`
			Metadata string   `json:"metadata"`
			Volume   *int     `json:"volume"`
		}
		// A body is optional: posting with none saves a single-room
		// recipe with no content, to be filled in by a later edit.
		_ = decodeJSON(r, &body)

		players := body.Players
		if len(players) == 0 {
			players = []string{device.RoomName}
		}

		preset, err := rt.Presets.Save(Preset{
			Name:     name,
			Room:     device.RoomName,
			Players:  players,
			URI:      body.URI,
			Favorite: body.Favorite,
			Metadata: body.Metadata,
			Volume:   body.Volume,
		})
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, preset)
	}))

	root.Method(http.MethodGet, "/preset/{name}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		preset, err := rt.Presets.Get(chi.URLParam(r, "name"))
		if err != nil {
			return err
		}
		return rt.playPreset(w, r, preset, "")
	}))

	root.Method(http.MethodGet, "/preset/{name}/room/{room}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		preset, err := rt.Presets.Get(chi.URLParam(r, "name"))
		if err != nil {
			return err
		}
		return rt.playPreset(w, r, preset, chi.URLParam(r, "room"))
	}))
}

// playPreset executes a preset's recipe: it groups players, sets
// volumes, sets a transport URI (direct or resolved from a favourite
// name), and starts playback, in that order — waiting on the event
// manager for intermediate state stabilisation between steps, since a
// join or a URI change issued before the previous one settles can be
// dropped by the target device.
//
// roomOverride, when non-empty, redirects the whole recipe to a single
// room instead of the preset's saved group, skipping the grouping step
// entirely (the caller asked for this preset somewhere specific, not
// for its usual room layout).
func (rt *Router) playPreset(w http.ResponseWriter, r *http.Request, preset *Preset, roomOverride string) error {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	targets := preset.Players
	if roomOverride != "" {
		targets = []string{roomOverride}
	}
	if len(targets) == 0 {
		targets = []string{preset.Room}
	}

	coordinator, coordinatorIP, err := rt.withCoordinator(targets[0])
	if err != nil {
		return err
	}

	for _, member := range targets[1:] {
		if err := rt.joinRooms(member, coordinator.RoomName); err != nil {
			return err
		}
		rt.waitForTopologyStabilization(ctx)
	}

	if preset.Volume != nil {
		for _, member := range targets {
			device, err := rt.resolveRoom(member)
			if err != nil {
				return err
			}
			if err := rt.Player.SetVolume(device.IP, *preset.Volume); err != nil {
				return apperrors.NewInternalError("failed to apply preset volume: " + err.Error())
			}
		}
	}

	uri, metadata, err := rt.resolvePresetContent(ctx, preset, coordinatorIP)
	if err != nil {
		return err
	}
	if uri != "" {
		if err := rt.Player.SetAVTransportURIWithMetadata(coordinatorIP, uri, metadata); err != nil {
			return apperrors.NewInternalError("failed to apply preset uri: " + err.Error())
		}
		rt.waitForContentStabilization(ctx, coordinator.DeviceID)
	}

	if err := rt.Player.Play(coordinatorIP); err != nil {
		return apperrors.NewInternalError("failed to start playback: " + err.Error())
	}
	rt.waitForPlaybackStabilization(ctx, coordinator.DeviceID)

	return api.WriteOK(w)
}

// resolvePresetContent returns the URI/metadata pair to apply: the
// preset's fixed URI if set, otherwise its favourite name resolved
// against the coordinator, otherwise empty (preset carries no content,
// only grouping/volume).
func (rt *Router) resolvePresetContent(ctx context.Context, preset *Preset, coordinatorIP string) (uri, metadata string, err error) {
	if preset.URI != "" {
		return preset.URI, preset.Metadata, nil
	}
	if preset.Favorite == "" {
		return "", "", nil
	}
	result, err := rt.Player.BrowseFavorites(0, 200)
	if err != nil {
		return "", "", apperrors.NewInternalError("failed to browse favorites: " + err.Error())
	}
	favorite, ok := findItemByTitle(result.Items, preset.Favorite)
	if !ok {
		return "", "", apperrors.NewFavouriteNotFoundError(preset.Favorite)
	}
	resolved, err := rt.Resolver.ResolveFavorite(ctx, favorite.ID, coordinatorIP)
	if err != nil {
		return "", "", apperrors.NewInternalError("failed to resolve preset favorite: " + err.Error())
	}
	return resolved.URI, resolved.Metadata, nil
}

// waitForTopologyStabilization gives a just-issued group join a chance
// to settle before the next step runs. Best-effort: with events
// disabled, or if nothing arrives in time, it simply returns.
func (rt *Router) waitForTopologyStabilization(ctx context.Context) {
	if rt.Events == nil || !rt.Events.IsEnabled() {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, _ = rt.Events.WaitForTopologyChange(waitCtx, 3*time.Second)
}

// waitForContentStabilization waits for the coordinator to report the
// new transport URI before the caller issues play.
func (rt *Router) waitForContentStabilization(ctx context.Context, coordinatorUUID string) {
	if rt.Events == nil || !rt.Events.IsEnabled() {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, _ = rt.Events.WaitForContentUpdate(waitCtx, coordinatorUUID, 3*time.Second)
}

// waitForPlaybackStabilization waits for the coordinator to report
// PLAYING after the final play() call.
func (rt *Router) waitForPlaybackStabilization(ctx context.Context, coordinatorUUID string) {
	if rt.Events == nil || !rt.Events.IsEnabled() {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, _ = rt.Events.WaitForState(waitCtx, coordinatorUUID, events.StateIs("PLAYING"), 5*time.Second)
}
