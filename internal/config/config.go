package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileOverlay mirrors the subset of Config a household typically wants to
// commit to a checked-in config.yaml rather than set as env vars: mostly
// naming/defaults, never secrets. Zero-value fields are left untouched so
// env vars (and their defaults) still apply where the file is silent.
type fileOverlay struct {
	Host                string   `yaml:"host"`
	Port                string   `yaml:"port"`
	TrustedNetworks     []string `yaml:"trusted_networks"`
	DefaultRoom         string   `yaml:"default_room"`
	DefaultMusicService string   `yaml:"default_music_service"`
	AnnounceVolume      int      `yaml:"announce_volume"`
	ReindexInterval     string   `yaml:"reindex_interval"`
	TTSCacheMaxAgeSec   int      `yaml:"tts_cache_max_age_seconds"`
	TTSHostIP           string   `yaml:"tts_host_ip"`
}

// loadFileOverlay reads path if it exists; a missing file is not an error
// since the overlay is optional. path defaults to CONFIG_FILE or
// ./config.yaml.
func loadFileOverlay() (fileOverlay, error) {
	path := envString("CONFIG_FILE", "./config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileOverlay{}, nil
		}
		return fileOverlay{}, err
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fileOverlay{}, err
	}
	log.Printf("config: loaded overlay from %s", path)
	return overlay, nil
}

// Config holds the base server configuration.
type Config struct {
	Host                     string
	Port                     string
	SQLiteDBPath             string
	NodeEnv                  string
	AllowTestMode            bool

	// AuthUsername/AuthPassword configure optional HTTP basic auth on the
	// REST surface. Auth is disabled entirely when AuthUsername is empty.
	AuthUsername string
	AuthPassword string
	// TrustedNetworks is a list of CIDRs whose peers skip auth entirely,
	// e.g. the household LAN.
	TrustedNetworks []string
	SSDPDiscoveryTimeoutMs   int
	SSDPDiscoveryPasses      int
	SSDPPassIntervalMs       int
	SSDPRescanIntervalMs     int
	StaticDeviceIPs          []string
	SonosTimeoutMs           int
	DefaultSonosIP           string
	SonosClientID            string
	SonosClientSecret        string
	SonosRedirectURI         string
	// ZoneCacheTTLSeconds is the TTL for zone group topology cache in seconds.
	// Zone topology changes infrequently so caching reduces SOAP calls.
	ZoneCacheTTLSeconds int

	// UPnP Event Subscription settings
	UPnPEventsEnabled          bool
	UPnPSubscriptionTimeoutSec int
	UPnPStateCacheTTLSeconds   int

	// Apple Music API settings
	AppleTeamID          string // Apple Developer Team ID
	AppleKeyID           string // Apple Music Key ID
	ApplePrivateKeyPath  string // Path to .p8 private key file
	AppleTokenExpirySec  int    // Token TTL in seconds (max 15552000 = 6 months)
	AppleMusicAPIURL     string // Apple Music API base URL
	DefaultStorefront    string // Apple Music storefront (country code)

	// DefaultRoom/DefaultMusicService back the router's default-room-bearing
	// route forms (e.g. GET /play with no {room}) and the mutable
	// /default, /default/room/{room}, /default/service/{service} routes.
	DefaultRoom         string
	DefaultMusicService string
	// AnnounceVolume is the volume TTS announcements play at when the
	// caller doesn't specify one.
	AnnounceVolume int
	// DataDir holds the gateway's persisted JSON caches and the preset
	// SQLite database.
	DataDir string
	// ReindexIntervalStr is parsed by library.ParseReindexPeriod (e.g. "24h").
	ReindexIntervalStr string
	// TTSCacheMaxAgeSec bounds how long generated announcement audio is
	// kept on disk before being swept.
	TTSCacheMaxAgeSec int
	// TTSHostIP overrides the host address embedded in announcement URIs
	// handed to players, since a player must reach the TTS file server by
	// IP, never by hostname.
	TTSHostIP string
}

// Load reads configuration from environment variables with defaults,
// overlaid on top of an optional config.yaml: the file supplies new
// defaults for the fields it sets, and an explicit env var always wins.
func Load() (Config, error) {
	overlay, err := loadFileOverlay()
	if err != nil {
		return Config{}, err
	}

	host := envString("HOST", orDefault(overlay.Host, "0.0.0.0"))
	port := envString("PORT", orDefault(overlay.Port, "9000"))
	sqlitePath := envString("SQLITE_DB_PATH", "./data/gateway.db")

	nodeEnv := envString("NODE_ENV", "development")
	allowTestMode := envBool("ALLOW_TEST_MODE", false)
	authUsername := envString("AUTH_USERNAME", "")
	authPassword := envString("AUTH_PASSWORD", "")
	trustedNetworks := envCSV("TRUSTED_NETWORKS")
	if len(trustedNetworks) == 0 {
		trustedNetworks = overlay.TrustedNetworks
	}
	ssdpTimeout := envInt("SSDP_DISCOVERY_TIMEOUT_MS", 5000)
	ssdpPasses := envInt("SSDP_DISCOVERY_PASSES", 3)
	ssdpPassInterval := envInt("SSDP_PASS_INTERVAL_MS", 2000)
	ssdpRescanInterval := envInt("SSDP_RESCAN_INTERVAL_MS", 60000)
	staticIPs := envCSV("STATIC_DEVICE_IPS")
	sonosTimeout := envInt("SONOS_TIMEOUT_MS", 5000)
	defaultSonosIP := envString("DEFAULT_SONOS_IP", "192.168.1.10")
	sonosClientID := envString("SONOS_CLIENT_ID", "")
	sonosClientSecret := envString("SONOS_CLIENT_SECRET", "")
	sonosRedirectURI := envString("SONOS_REDIRECT_URI", "")
	zoneCacheTTL := envInt("ZONE_CACHE_TTL_SECONDS", 30)
	upnpEventsEnabled := envBool("UPNP_EVENTS_ENABLED", true)
	upnpSubscriptionTimeout := envInt("UPNP_SUBSCRIPTION_TIMEOUT", 3600)
	upnpStateCacheTTL := envInt("UPNP_STATE_CACHE_TTL_SECONDS", 30)

	// Apple Music settings (all optional - service disabled if team ID empty)
	appleTeamID := envString("APPLE_TEAM_ID", "")
	appleKeyID := envString("APPLE_KEY_ID", "")
	applePrivateKeyPath := envString("APPLE_PRIVATE_KEY_PATH", "")
	appleTokenExpiry := envInt("APPLE_TOKEN_EXPIRY_SECONDS", 86400) // Default 24 hours
	appleMusicAPIURL := envString("APPLE_MUSIC_API_URL", "https://api.music.apple.com")
	defaultStorefront := envString("DEFAULT_STOREFRONT", "us")

	defaultRoom := envString("DEFAULT_ROOM", overlay.DefaultRoom)
	defaultMusicService := envString("DEFAULT_MUSIC_SERVICE", overlay.DefaultMusicService)
	announceVolume := envInt("ANNOUNCE_VOLUME", orDefaultInt(overlay.AnnounceVolume, 40))
	dataDir := envString("DATA_DIR", "./data")
	reindexInterval := envString("REINDEX_INTERVAL", orDefault(overlay.ReindexInterval, "24h"))
	ttsCacheMaxAge := envInt("TTS_CACHE_MAX_AGE_SECONDS", orDefaultInt(overlay.TTSCacheMaxAgeSec, 86400))
	ttsHostIP := envString("TTS_HOST_IP", overlay.TTSHostIP)

	return Config{
		Host:                     host,
		Port:                     port,
		SQLiteDBPath:             sqlitePath,
		NodeEnv:                  nodeEnv,
		AllowTestMode:            allowTestMode,
		AuthUsername:             authUsername,
		AuthPassword:             authPassword,
		TrustedNetworks:          trustedNetworks,
		SSDPDiscoveryTimeoutMs:   ssdpTimeout,
		SSDPDiscoveryPasses:      ssdpPasses,
		SSDPPassIntervalMs:       ssdpPassInterval,
		SSDPRescanIntervalMs:     ssdpRescanInterval,
		StaticDeviceIPs:          staticIPs,
		SonosTimeoutMs:           sonosTimeout,
		DefaultSonosIP:           defaultSonosIP,
		SonosClientID:            sonosClientID,
		SonosClientSecret:        sonosClientSecret,
		SonosRedirectURI:           sonosRedirectURI,
		ZoneCacheTTLSeconds:        zoneCacheTTL,
		UPnPEventsEnabled:          upnpEventsEnabled,
		UPnPSubscriptionTimeoutSec: upnpSubscriptionTimeout,
		UPnPStateCacheTTLSeconds:   upnpStateCacheTTL,
		AppleTeamID:                appleTeamID,
		AppleKeyID:                 appleKeyID,
		ApplePrivateKeyPath:        applePrivateKeyPath,
		AppleTokenExpirySec:        appleTokenExpiry,
		AppleMusicAPIURL:           appleMusicAPIURL,
		DefaultStorefront:          defaultStorefront,
		DefaultRoom:                defaultRoom,
		DefaultMusicService:        defaultMusicService,
		AnnounceVolume:             announceVolume,
		DataDir:                    dataDir,
		ReindexIntervalStr:         reindexInterval,
		TTSCacheMaxAgeSec:          ttsCacheMaxAge,
		TTSHostIP:                  ttsHostIP,
	}, nil
}

// orDefault returns fallback when val is unset (the overlay field's
// zero value), otherwise val.
func orDefault(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

func orDefaultInt(val, fallback int) int {
	if val == 0 {
		return fallback
	}
	return val
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}

func envCSV(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
