// Package router translates the gateway's REST surface into calls against
// the registry, topology, player, catalogue, library, and station
// components. It owns no state of its own beyond the preset store; every
// other piece of state lives in the component that owns it.
package router

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
	"github.com/playerhub/gateway/internal/catalogue"
	"github.com/playerhub/gateway/internal/events"
	"github.com/playerhub/gateway/internal/library"
	"github.com/playerhub/gateway/internal/player"
	"github.com/playerhub/gateway/internal/player/soap"
	"github.com/playerhub/gateway/internal/registry"
	"github.com/playerhub/gateway/internal/station"
	"github.com/playerhub/gateway/internal/topology"
)

// Router holds every component the action router dispatches to.
type Router struct {
	Registry  *registry.Service
	Topology  *topology.Manager
	Player    *player.Service
	Play      *catalogue.PlayService
	Resolver  *catalogue.Resolver
	Services  *catalogue.ServicesManager
	Library   *library.Manager
	Events    *events.Manager
	Stations  map[string]*station.Manager // keyed by lowercase service name, e.g. "pandora"
	Presets   *PresetStore

	AnnounceVolume int

	defaultsMu     sync.RWMutex
	defaultRoomVal    string
	defaultServiceVal string

	logger *log.Logger
}

// DefaultRoom returns the room used by default-room-bearing routes.
func (rt *Router) DefaultRoom() string {
	rt.defaultsMu.RLock()
	defer rt.defaultsMu.RUnlock()
	return rt.defaultRoomVal
}

// SetDefaultRoom changes the default room, as /default/room/{room} does.
func (rt *Router) SetDefaultRoom(room string) {
	rt.defaultsMu.Lock()
	defer rt.defaultsMu.Unlock()
	rt.defaultRoomVal = room
}

// DefaultService returns the music service used by default-service-bearing
// routes.
func (rt *Router) DefaultService() string {
	rt.defaultsMu.RLock()
	defer rt.defaultsMu.RUnlock()
	return rt.defaultServiceVal
}

// SetDefaultService changes the default service, as /default/service/{service} does.
func (rt *Router) SetDefaultService(service string) {
	rt.defaultsMu.Lock()
	defer rt.defaultsMu.Unlock()
	rt.defaultServiceVal = service
}

// New builds a Router. Stations may be nil or missing entries for services
// the household has not configured; routes for an absent service answer
// ServiceUnconfigured (503) rather than panicking.
func New(
	registrySvc *registry.Service,
	topologyMgr *topology.Manager,
	playerSvc *player.Service,
	playSvc *catalogue.PlayService,
	resolver *catalogue.Resolver,
	servicesMgr *catalogue.ServicesManager,
	libraryMgr *library.Manager,
	eventsMgr *events.Manager,
	stations map[string]*station.Manager,
	presets *PresetStore,
	defaultRoom, defaultService string,
	announceVolume int,
	logger *log.Logger,
) *Router {
	if stations == nil {
		stations = map[string]*station.Manager{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[router] ", log.LstdFlags)
	}
	return &Router{
		Registry:          registrySvc,
		Topology:          topologyMgr,
		Player:            playerSvc,
		Play:              playSvc,
		Resolver:          resolver,
		Services:          servicesMgr,
		Library:           libraryMgr,
		Events:            eventsMgr,
		Stations:          stations,
		Presets:           presets,
		defaultRoomVal:    defaultRoom,
		defaultServiceVal: defaultService,
		AnnounceVolume:    announceVolume,
		logger:            logger,
	}
}

// Mount wires every route group onto root under its spec-mandated path.
func (rt *Router) Mount(root chi.Router) {
	root.Use(corsMiddleware)
	root.Method(http.MethodOptions, "/*", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}))

	rt.mountSystem(root)
	rt.mountTransport(root)
	rt.mountGroups(root)
	rt.mountFavorites(root)
	rt.mountPresets(root)
	rt.mountMusicSearch(root)
	rt.mountLibraryAdmin(root)
	rt.mountServiceSpecifics(root)
	rt.mountGlobal(root)
	rt.mountTTS(root)
	rt.mountDebug(root)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		next.ServeHTTP(w, r)
	})
}

// resolveRoom resolves a room name, falling back to the configured
// default room when name is empty (400 if unset),
// then looks the room up case-insensitively (404 if absent).
func (rt *Router) resolveRoom(name string) (*registry.LogicalDevice, error) {
	if name == "" {
		name = rt.DefaultRoom()
		if name == "" {
			return nil, apperrors.NewValidationError("no room specified and no default room configured", nil)
		}
	}
	device, err := rt.Registry.GetByRoom(name, true)
	if err != nil || device == nil {
		return nil, apperrors.NewRoomNotFoundError(name)
	}
	return device, nil
}

// coordinatorIP resolves the room's playback coordinator address, falling
// back to the room's own IP when topology has not yet learned the zone
// (e.g. immediately after discovery, before the first GetZoneGroupState).
func (rt *Router) coordinatorIP(device *registry.LogicalDevice) (string, error) {
	coordinatorUUID := rt.Topology.CoordinatorOf(device.DeviceID)
	if coordinatorUUID == "" {
		return device.IP, nil
	}
	coordinator, err := rt.Registry.GetDevice(coordinatorUUID)
	if err != nil || coordinator == nil {
		return device.IP, nil
	}
	return coordinator.IP, nil
}

// withCoordinator resolves a room by name and returns its coordinator's IP,
// the combination almost every playback-affecting route needs.
func (rt *Router) withCoordinator(name string) (*registry.LogicalDevice, string, error) {
	device, err := rt.resolveRoom(name)
	if err != nil {
		return nil, "", err
	}
	ip, err := rt.coordinatorIP(device)
	if err != nil {
		return nil, "", err
	}
	return device, ip, nil
}

// leaveGroup performs a bonded-pair-aware group leave: a room that is exactly
// a pure stereo pair cannot leave its group; everything else calls
// BecomeCoordinatorOfStandaloneGroup, retrying on the stereo primary and
// then each member in turn if the coordinator rejects with a transient
// bonded-pair fault (701/1023).
func (rt *Router) leaveGroup(device *registry.LogicalDevice) error {
	zoneUUID := device.DeviceID
	if rt.Topology.IsPureStereoPair(zoneUUID) {
		return apperrors.NewStereoPairProtectedError(device.RoomName)
	}

	err := rt.Player.BecomeCoordinatorOfStandaloneGroup(device.IP)
	if !isBondedPairFault(err) {
		return err
	}

	if primary := rt.Topology.StereoPrimary(device.RoomName); primary != "" {
		if primaryDevice, lookupErr := rt.Registry.GetDevice(primary); lookupErr == nil && primaryDevice != nil {
			if err = rt.Player.BecomeCoordinatorOfStandaloneGroup(primaryDevice.IP); !isBondedPairFault(err) {
				return err
			}
		}
	}

	for _, member := range rt.Topology.MembersOf(zoneUUID) {
		memberDevice, lookupErr := rt.Registry.GetDevice(member)
		if lookupErr != nil || memberDevice == nil {
			continue
		}
		if err = rt.Player.BecomeCoordinatorOfStandaloneGroup(memberDevice.IP); !isBondedPairFault(err) {
			return err
		}
	}
	return err
}

func isBondedPairFault(err error) bool {
	if err == nil {
		return false
	}
	var rejected *soap.SonosRejectedError
	if errors.As(err, &rejected) {
		return rejected.Code == "701" || rejected.Code == "1023"
	}
	return false
}

// parseOnOff maps the {on|off} path segment used throughout the playback
// mode and mute routes.
func parseOnOff(value string) (bool, bool) {
	switch strings.ToLower(value) {
	case "on", "true", "1":
		return true, true
	case "off", "false", "0":
		return false, true
	default:
		return false, false
	}
}

func soapTimeout() time.Duration {
	return 5 * time.Second
}
