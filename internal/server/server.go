package server

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/auth"
	"github.com/playerhub/gateway/internal/catalogue"
	"github.com/playerhub/gateway/internal/config"
	"github.com/playerhub/gateway/internal/db"
	"github.com/playerhub/gateway/internal/events"
	"github.com/playerhub/gateway/internal/library"
	"github.com/playerhub/gateway/internal/player"
	"github.com/playerhub/gateway/internal/player/soap"
	"github.com/playerhub/gateway/internal/registry"
	"github.com/playerhub/gateway/internal/router"
	"github.com/playerhub/gateway/internal/scheduler"
	"github.com/playerhub/gateway/internal/station"
	"github.com/playerhub/gateway/internal/topology"
)

// Sonos favourite-URI service ids for the station-backed streaming
// services the gateway speaks natively. These identify the service
// itself, not a household's account, and never change.
const (
	pandoraSID  = "236"
	siriusxmSID = "277"
)

var errNoDeviceAvailable = errors.New("no device available to resolve")

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker for WebSocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.RequestURI(), wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// Options controls server wiring.
type Options struct {
	DisableDiscovery bool
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	root := chi.NewRouter()
	root.Use(middleware.StripSlashes) // Handle trailing slashes consistently
	root.Use(requestLoggerMiddleware)
	root.Use(api.RequestIDMiddleware)
	root.Use(api.RecovererMiddleware)
	root.Use(auth.Middleware(cfg))

	registerHealthRoutes(root)

	soapTimeout := time.Duration(cfg.SonosTimeoutMs) * time.Millisecond
	soapClient := soap.NewClient(soapTimeout)
	deviceService := registry.NewService(cfg, nil, soapClient)
	topologyMgr := topology.NewManager()

	// Zone cache shared between the player service and the event manager.
	zoneCache := player.NewZoneGroupCache(time.Duration(cfg.ZoneCacheTTLSeconds) * time.Second)

	port, _ := strconv.Atoi(cfg.Port)
	eventConfig := events.ManagerConfig{
		Enabled:             cfg.UPnPEventsEnabled,
		SubscriptionTimeout: cfg.UPnPSubscriptionTimeoutSec,
		RenewalBuffer:       60,
		StateCacheTTL:       time.Duration(cfg.UPnPStateCacheTTLSeconds) * time.Second,
		Services: []events.ServiceType{
			events.ServiceAVTransport,
			events.ServiceRenderingControl,
			events.ServiceZoneGroupTopology,
		},
	}
	eventManager := events.NewManager(eventConfig, port, zoneCache)
	eventManager.SetDiscovery(topologyMgr)

	sched := scheduler.New(nil)

	if options.DisableDiscovery {
		deviceService.SetTestMode(true)
	} else {
		deviceService.StartPeriodicDiscovery()
	}

	// Topology has no push path into internal/topology yet: a
	// ZoneGroupTopology NOTIFY only invalidates the zone cache today.
	// Poll GetZoneGroupState against whatever device answers first and
	// install the result; ReplaceFromSOAP's atomic swap still means
	// readers never see a partial snapshot.
	sched.ScheduleInterval("topology-poll", func(ctx context.Context) {
		devices, err := deviceService.GetDevices()
		if err != nil || len(devices) == 0 {
			return
		}
		state, err := soapClient.GetZoneGroupState(ctx, devices[0].IP)
		if err != nil {
			return
		}
		topologyMgr.ReplaceFromSOAP(state)
	}, 30*time.Second, scheduler.Options{Unref: true})

	var stateProvider player.StateProvider
	if cfg.UPnPEventsEnabled {
		stateProvider = NewStateCacheAdapter(eventManager.GetStateCache())
	}

	playerService := player.NewServiceWithStateProvider(deviceService, soapClient, cfg.DefaultSonosIP, soapTimeout, time.Duration(cfg.ZoneCacheTTLSeconds)*time.Second, stateProvider)
	playerService.ZoneCache = zoneCache

	// UPnP callback handler - wired up outside chi to bypass method restrictions (NOTIFY isn't standard HTTP).
	var upnpHandler http.Handler
	if cfg.UPnPEventsEnabled && !options.DisableDiscovery {
		callbackHandler := events.NewCallbackHandler(eventManager)
		upnpMux := http.NewServeMux()
		upnpMux.Handle("/upnp/notify", callbackHandler)
		upnpMux.Handle("/upnp/notify/avtransport", callbackHandler)
		upnpMux.Handle("/upnp/notify/renderingcontrol", callbackHandler)
		upnpMux.Handle("/upnp/notify/topology", callbackHandler)
		upnpHandler = upnpMux

		if err := eventManager.Start(); err != nil {
			log.Printf("Warning: Failed to start UPnP event manager: %v", err)
		}
	}

	playService := catalogue.NewPlayService(soapClient, deviceService, soapTimeout, nil)
	resolver := catalogue.NewResolver(soapClient, deviceService, soapTimeout, nil)

	servicesMgr := catalogue.NewServicesManager(soapClient, deviceService, dataPath(cfg.DataDir, "services.json"), nil)
	if err := servicesMgr.LoadFromDisk(); err != nil {
		log.Printf("services cache: %v", err)
	}
	sched.ScheduleInterval("services-refresh", func(ctx context.Context) {
		if err := servicesMgr.Refresh(ctx); err != nil {
			log.Printf("services refresh: %v", err)
		}
	}, 6*time.Hour, scheduler.Options{Unref: true})

	reindexPeriod := cfg.ReindexIntervalStr
	if reindexPeriod == "" {
		reindexPeriod = "24h"
	}
	libraryMgr := library.NewManager(soapClient, deviceService, dataPath(cfg.DataDir, "library.json"), reindexPeriod)
	if err := libraryMgr.LoadFromDisk(); err != nil {
		log.Printf("library cache: %v", err)
	}

	resolveAnyDeviceIP := func() (string, error) {
		devices, err := deviceService.GetDevices()
		if err != nil {
			return "", err
		}
		for _, d := range devices {
			if d.IsTargetable {
				return d.IP, nil
			}
		}
		if len(devices) > 0 {
			return devices[0].IP, nil
		}
		return "", errNoDeviceAvailable
	}
	stations := map[string]*station.Manager{
		"pandora":  station.NewManager(soapClient, resolveAnyDeviceIP, pandoraSID, dataPath(cfg.DataDir, "pandora-stations.json"), nil),
		"siriusxm": station.NewManager(soapClient, resolveAnyDeviceIP, siriusxmSID, dataPath(cfg.DataDir, "siriusxm-stations.json"), nil),
	}
	for name, mgr := range stations {
		name, mgr := name, mgr
		if err := mgr.Initialize(context.Background()); err != nil {
			log.Printf("%s stations: %v", name, err)
		}
		sched.ScheduleInterval(name+"-favorites-refresh", func(ctx context.Context) {
			if err := mgr.RefreshFavorites(ctx); err != nil {
				log.Printf("%s favourites refresh: %v", name, err)
			}
		}, time.Hour, scheduler.Options{Unref: true})
	}

	presetStore := router.NewPresetStore(dbPair)

	gatewayRouter := router.New(
		deviceService, topologyMgr, playerService, playService, resolver, servicesMgr,
		libraryMgr, eventManager, stations, presetStore,
		cfg.DefaultRoom, cfg.DefaultMusicService, cfg.AnnounceVolume, nil,
	)
	gatewayRouter.Mount(root)

	shutdown := func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		if err := sched.Shutdown(ctx); err != nil {
			log.Printf("scheduler shutdown: %v", err)
		}
		deviceService.StopPeriodicDiscovery()
		if eventManager != nil && eventManager.IsEnabled() {
			eventManager.Stop(ctx)
		}
		return dbPair.Close()
	}

	var handler http.Handler = root
	if upnpHandler != nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/upnp/") {
				upnpHandler.ServeHTTP(w, r)
				return
			}
			root.ServeHTTP(w, r)
		})
	}

	return handler, shutdown, nil
}

func dataPath(dataDir, file string) string {
	if dataDir == "" {
		dataDir = "./data"
	}
	return dataDir + "/" + file
}

func registerHealthRoutes(root chi.Router) {
	root.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"service":   "gateway",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}))
	root.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	root.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
