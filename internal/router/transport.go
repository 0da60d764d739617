package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
)

// mountTransport wires per-room transport, volume/mute, playback-mode,
// queue, and line-in routes.
func (rt *Router) mountTransport(root chi.Router) {
	root.Method(http.MethodGet, "/{room}/state", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		device, err := rt.resolveRoom(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		if rt.Events == nil {
			return api.WriteResource(w, http.StatusOK, map[string]any{"room": device.RoomName})
		}
		state := rt.Events.GetStateCache().Get(device.IP)
		if state == nil {
			return api.WriteResource(w, http.StatusOK, map[string]any{"room": device.RoomName})
		}
		return api.WriteResource(w, http.StatusOK, state)
	}))

	root.Method(http.MethodGet, "/{room}/play", rt.transportAction(rt.Player.Play))
	root.Method(http.MethodGet, "/{room}/pause", rt.transportAction(rt.Player.Pause))
	root.Method(http.MethodGet, "/{room}/stop", rt.transportAction(rt.Player.Stop))
	root.Method(http.MethodGet, "/{room}/next", rt.transportAction(rt.Player.Next))
	root.Method(http.MethodGet, "/{room}/previous", rt.transportAction(rt.Player.Previous))

	root.Method(http.MethodGet, "/{room}/playpause", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		_, ip, err := rt.withCoordinator(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		info, err := rt.Player.GetTransportInfo(ip)
		if err != nil {
			return apperrors.NewInternalError("failed to read transport state: " + err.Error())
		}
		if info.CurrentTransportState == "PLAYING" {
			err = rt.Player.Pause(ip)
		} else {
			err = rt.Player.Play(ip)
		}
		if err != nil {
			return apperrors.NewInternalError("failed to toggle playback: " + err.Error())
		}
		return api.WriteOK(w)
	}))

	rt.mountVolume(root)
	rt.mountPlaybackModes(root)
	rt.mountQueue(root)
	rt.mountLineIn(root)
}

// transportAction adapts a coordinator-IP action (Play, Pause, Stop, ...)
// into a per-room route handler.
func (rt *Router) transportAction(action func(deviceIP string) error) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		_, ip, err := rt.withCoordinator(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		if err := action(ip); err != nil {
			return apperrors.NewInternalError("transport action failed: " + err.Error())
		}
		return api.WriteOK(w)
	}
}

func (rt *Router) mountVolume(root chi.Router) {
	root.Method(http.MethodGet, "/{room}/volume/{level}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		device, err := rt.resolveRoom(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		level := chi.URLParam(r, "level")

		current, err := rt.Player.GetVolume(device.IP)
		if err != nil {
			return apperrors.NewInternalError("failed to read volume: " + err.Error())
		}

		target, err := applyVolumeDelta(current.CurrentVolume, level)
		if err != nil {
			return err
		}
		if err := rt.Player.SetVolume(device.IP, target); err != nil {
			return apperrors.NewInternalError("failed to set volume: " + err.Error())
		}
		return api.WriteSuccess(w, http.StatusOK, map[string]any{"volume": target})
	}))

	root.Method(http.MethodGet, "/{room}/groupVolume/{level}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		_, ip, err := rt.withCoordinator(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		level := chi.URLParam(r, "level")

		current, err := rt.Player.GetVolume(ip)
		if err != nil {
			return apperrors.NewInternalError("failed to read volume: " + err.Error())
		}
		target, err := applyVolumeDelta(current.CurrentVolume, level)
		if err != nil {
			return err
		}
		if err := rt.Player.SetVolume(ip, target); err != nil {
			return apperrors.NewInternalError("failed to set group volume: " + err.Error())
		}
		return api.WriteSuccess(w, http.StatusOK, map[string]any{"volume": target})
	}))

	root.Method(http.MethodGet, "/{room}/mute", rt.muteAction(true))
	root.Method(http.MethodGet, "/{room}/unmute", rt.muteAction(false))

	root.Method(http.MethodGet, "/{room}/togglemute", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		device, err := rt.resolveRoom(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		current, err := rt.Player.GetMute(device.IP)
		if err != nil {
			return apperrors.NewInternalError("failed to read mute state: " + err.Error())
		}
		if err := rt.Player.SetMute(device.IP, !current.CurrentMute); err != nil {
			return apperrors.NewInternalError("failed to toggle mute: " + err.Error())
		}
		return api.WriteOK(w)
	}))
}

func (rt *Router) muteAction(mute bool) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		device, err := rt.resolveRoom(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		if err := rt.Player.SetMute(device.IP, mute); err != nil {
			return apperrors.NewInternalError("failed to set mute: " + err.Error())
		}
		return api.WriteOK(w)
	}
}

// applyVolumeDelta parses a volume path segment: an absolute "0".."100",
// or a relative "+N"/"-N" applied against current.
func applyVolumeDelta(current int, spec string) (int, error) {
	var target int
	switch {
	case strings.HasPrefix(spec, "+"):
		delta, err := strconv.Atoi(spec[1:])
		if err != nil {
			return 0, apperrors.NewValidationError("invalid volume delta: "+spec, nil)
		}
		target = current + delta
	case strings.HasPrefix(spec, "-"):
		delta, err := strconv.Atoi(spec[1:])
		if err != nil {
			return 0, apperrors.NewValidationError("invalid volume delta: "+spec, nil)
		}
		target = current - delta
	default:
		absolute, err := strconv.Atoi(spec)
		if err != nil {
			return 0, apperrors.NewValidationError("invalid volume: "+spec, nil)
		}
		target = absolute
	}
	if target < 0 {
		target = 0
	}
	if target > 100 {
		target = 100
	}
	return target, nil
}

// mountPlaybackModes wires repeat/shuffle/crossfade/sleep. Repeat and
// shuffle are independent toggles on the player but UPnP SetPlayMode takes
// one combined enum, so both routes read-modify-write the current mode.
func (rt *Router) mountPlaybackModes(root chi.Router) {
	root.Method(http.MethodGet, "/{room}/repeat/{state}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.setPlayModeComponent(w, r, func(mode playMode, on bool) playMode {
			mode.Repeat = on
			return mode
		})
	}))

	root.Method(http.MethodGet, "/{room}/shuffle/{state}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.setPlayModeComponent(w, r, func(mode playMode, on bool) playMode {
			mode.Shuffle = on
			return mode
		})
	}))

	root.Method(http.MethodGet, "/{room}/crossfade/{state}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		device, err := rt.resolveRoom(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		on, ok := parseOnOff(chi.URLParam(r, "state"))
		if !ok {
			return apperrors.NewValidationError("crossfade state must be on/off", nil)
		}
		if err := rt.Player.SetCrossfadeMode(device.IP, on); err != nil {
			return apperrors.NewInternalError("failed to set crossfade: " + err.Error())
		}
		return api.WriteOK(w)
	}))

	root.Method(http.MethodGet, "/{room}/sleep/{seconds}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		device, err := rt.resolveRoom(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		seconds, convErr := strconv.Atoi(chi.URLParam(r, "seconds"))
		if convErr != nil || seconds < 0 {
			return apperrors.NewValidationError("sleep seconds must be a non-negative integer", nil)
		}
		duration := ""
		if seconds > 0 {
			duration = formatHMS(seconds)
		}
		if err := rt.Player.ConfigureSleepTimer(device.IP, duration); err != nil {
			return apperrors.NewInternalError("failed to configure sleep timer: " + err.Error())
		}
		return api.WriteOK(w)
	}))
}

// playMode is the decoded form of the UPnP PlayMode enum.
type playMode struct {
	Repeat  bool
	Shuffle bool
}

func decodePlayMode(upnp string) playMode {
	switch upnp {
	case "REPEAT_ALL", "REPEAT_ONE":
		return playMode{Repeat: true}
	case "SHUFFLE":
		return playMode{Repeat: true, Shuffle: true}
	case "SHUFFLE_NOREPEAT":
		return playMode{Shuffle: true}
	default:
		return playMode{}
	}
}

func (mode playMode) encode() string {
	switch {
	case mode.Repeat && mode.Shuffle:
		return "SHUFFLE"
	case mode.Shuffle:
		return "SHUFFLE_NOREPEAT"
	case mode.Repeat:
		return "REPEAT_ALL"
	default:
		return "NORMAL"
	}
}

func (rt *Router) setPlayModeComponent(w http.ResponseWriter, r *http.Request, apply func(playMode, bool) playMode) error {
	device, err := rt.resolveRoom(chi.URLParam(r, "room"))
	if err != nil {
		return err
	}
	on, ok := parseOnOff(chi.URLParam(r, "state"))
	if !ok {
		return apperrors.NewValidationError("state must be on/off", nil)
	}
	current, err := rt.Player.GetTransportSettings(device.IP)
	if err != nil {
		return apperrors.NewInternalError("failed to read play mode: " + err.Error())
	}
	updated := apply(decodePlayMode(current), on)
	if err := rt.Player.SetPlayMode(device.IP, updated.encode()); err != nil {
		return apperrors.NewInternalError("failed to set play mode: " + err.Error())
	}
	return api.WriteOK(w)
}

func formatHMS(totalSeconds int) string {
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	return padInt(hours) + ":" + padInt(minutes) + ":" + padInt(seconds)
}

func padInt(value int) string {
	s := strconv.Itoa(value)
	if len(s) < 2 {
		return "0" + s
	}
	return s
}

// mountQueue wires GET /{room}/queue[/{limit}[/{offset}]][/detailed],
// POST /{room}/queue, and /{room}/clearqueue.
func (rt *Router) mountQueue(root chi.Router) {
	root.Method(http.MethodGet, "/{room}/queue", rt.queueHandler(50, 0))
	root.Method(http.MethodGet, "/{room}/queue/{limit}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		limit, _ := strconv.Atoi(chi.URLParam(r, "limit"))
		return rt.queueHandler(limit, 0)(w, r)
	}))
	root.Method(http.MethodGet, "/{room}/queue/{limit}/{offset}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		limit, _ := strconv.Atoi(chi.URLParam(r, "limit"))
		offset, _ := strconv.Atoi(chi.URLParam(r, "offset"))
		return rt.queueHandler(limit, offset)(w, r)
	}))

	root.Method(http.MethodGet, "/{room}/clearqueue", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		_, ip, err := rt.withCoordinator(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		if err := rt.Player.RemoveAllTracksFromQueue(ip); err != nil {
			return apperrors.NewInternalError("failed to clear queue: " + err.Error())
		}
		return api.WriteOK(w)
	}))

	root.Method(http.MethodPost, "/{room}/queue", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			URI      string `json:"uri"`
			Metadata string `json:"metadata"`
		}
		if err := decodeJSON(r, &body); err != nil || body.URI == "" {
			return apperrors.NewValidationError("uri is required", nil)
		}
		_, ip, err := rt.withCoordinator(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		position, err := rt.Player.AddURIToQueue(ip, body.URI, body.Metadata, 0, false)
		if err != nil {
			return apperrors.NewInternalError("failed to enqueue: " + err.Error())
		}
		return api.WriteSuccess(w, http.StatusOK, map[string]any{"position": position})
	}))
}

func (rt *Router) queueHandler(limit, offset int) api.Handler {
	if limit <= 0 {
		limit = 50
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		_, ip, err := rt.withCoordinator(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		result, err := rt.Player.BrowseQueue(ip, offset, limit)
		if err != nil {
			return apperrors.NewInternalError("failed to browse queue: " + err.Error())
		}
		return api.WriteList(w, result.Items)
	}
}

// mountLineIn wires /{room}/linein[/{source}]: without a source it plays
// the room's own line-in input; with one, another room's.
func (rt *Router) mountLineIn(root chi.Router) {
	root.Method(http.MethodGet, "/{room}/linein", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.playLineIn(w, chi.URLParam(r, "room"), chi.URLParam(r, "room"))
	}))
	root.Method(http.MethodGet, "/{room}/linein/{source}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.playLineIn(w, chi.URLParam(r, "room"), chi.URLParam(r, "source"))
	}))
}

func (rt *Router) playLineIn(w http.ResponseWriter, roomName, sourceName string) error {
	_, targetIP, err := rt.withCoordinator(roomName)
	if err != nil {
		return err
	}
	source, err := rt.resolveRoom(sourceName)
	if err != nil {
		return err
	}
	uri := "x-rincon-stream:" + source.DeviceID
	if err := rt.Player.SetAVTransportURIWithMetadata(targetIP, uri, ""); err != nil {
		return apperrors.NewInternalError("failed to switch to line-in: " + err.Error())
	}
	if err := rt.Player.Play(targetIP); err != nil {
		return apperrors.NewInternalError("failed to start line-in playback: " + err.Error())
	}
	return api.WriteOK(w)
}
