package player

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/playerhub/gateway/internal/player/soap"
)

// Service IDs for known music services.
const (
	SIDSpotify     = "12"
	SIDAppleMusic  = "204"
	SIDAmazonMusic = "201"
)

// Service name constants.
const (
	ServiceSpotify     = "spotify"
	ServiceAppleMusic  = "apple_music"
	ServiceAmazonMusic = "amazon_music"
)

// Status values.
const (
	StatusReady          = "ready"
	StatusNeedsBootstrap = "needs_bootstrap"
	StatusNotSupported   = "not_supported"
)

var (
	sidPattern     = regexp.MustCompile(`sid=(\d+)`)
	snPattern      = regexp.MustCompile(`sn=(\d+)`)
	tokenPattern   = regexp.MustCompile(`SA_RINCON(\d+)_`)
	sessionPattern = regexp.MustCompile(`#Svc\d+-([a-f0-9]+)-Token`)
)

// ServiceCredentials holds the account identifiers recovered from one
// household favourite's resource URI and descriptor metadata.
type ServiceCredentials struct {
	Service       string    `json:"service"`
	AccountID     string    `json:"account_id"`
	SID           string    `json:"sid"`
	SN            string    `json:"sn"`
	Token         string    `json:"token"`
	SessionSuffix string    `json:"session_suffix"`
	ExtractedAt   time.Time `json:"extracted_at"`
}

type cachedCredentials struct {
	credentials *ServiceCredentials
	cachedAt    time.Time
}

// CredentialExtractor mines streaming-service account credentials out
// of Sonos favorites: the only place a household's spotify/apple-music
// account linkage is observable without calling out to the vendor.
type CredentialExtractor struct {
	soapClient *soap.Client
	timeout    time.Duration
	logger     *log.Logger
	cache      map[string]*cachedCredentials
	cacheMu    sync.RWMutex
	cacheTTL   time.Duration
}

func NewCredentialExtractor(soapClient *soap.Client, timeout time.Duration, logger *log.Logger) *CredentialExtractor {
	return &CredentialExtractor{
		soapClient: soapClient,
		timeout:    timeout,
		logger:     logger,
		cache:      make(map[string]*cachedCredentials),
		cacheTTL:   24 * time.Hour,
	}
}

// GetCredentials returns cached credentials for service, refreshing
// from favorites when the cache is empty or stale.
func (e *CredentialExtractor) GetCredentials(ctx context.Context, service, deviceIP string) (*ServiceCredentials, error) {
	e.cacheMu.RLock()
	cached, ok := e.cache[service]
	e.cacheMu.RUnlock()

	if ok && time.Since(cached.cachedAt) < e.cacheTTL {
		return cached.credentials, nil
	}

	allCreds, err := e.ExtractFromFavorites(ctx, deviceIP)
	if err != nil {
		return nil, err
	}

	creds, ok := allCreds[service]
	if !ok {
		return nil, &ServiceNeedsBootstrapError{Service: service}
	}
	return creds, nil
}

// ExtractFromFavorites browses FV:2 and extracts credentials for every
// service it can identify in a single pass.
func (e *CredentialExtractor) ExtractFromFavorites(ctx context.Context, deviceIP string) (map[string]*ServiceCredentials, error) {
	if e.soapClient == nil {
		return nil, fmt.Errorf("SOAP client not configured")
	}
	result, err := e.soapClient.Browse(ctx, deviceIP, "FV:2", "BrowseDirectChildren", "*", 0, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to browse favorites: %w", err)
	}

	credentials := make(map[string]*ServiceCredentials)
	for _, item := range result.Items {
		creds := e.extractFromItem(item)
		if creds == nil {
			continue
		}
		if _, exists := credentials[creds.Service]; exists {
			continue
		}
		credentials[creds.Service] = creds
		e.cacheCredentials(creds.Service, creds)
		if e.logger != nil {
			e.logger.Printf("extracted credentials for %s: sid=%s sn=%s", creds.Service, creds.SID, creds.SN)
		}
	}
	return credentials, nil
}

func (e *CredentialExtractor) extractFromItem(item soap.FavoriteItem) *ServiceCredentials {
	service := e.detectServiceFromItem(item)
	if service == "" {
		return nil
	}

	creds := &ServiceCredentials{
		Service:     service,
		ExtractedAt: time.Now(),
	}

	if item.Resource != "" {
		if matches := sidPattern.FindStringSubmatch(item.Resource); len(matches) > 1 {
			creds.SID = matches[1]
		}
		if matches := snPattern.FindStringSubmatch(item.Resource); len(matches) > 1 {
			creds.SN = matches[1]
		}
	}

	if item.ResourceMetaData != "" {
		if matches := tokenPattern.FindStringSubmatch(item.ResourceMetaData); len(matches) > 1 {
			creds.Token = matches[1]
		}
		if matches := sessionPattern.FindStringSubmatch(item.ResourceMetaData); len(matches) > 1 {
			creds.SessionSuffix = matches[1]
		}
		if idx := strings.Index(strings.ToUpper(item.ResourceMetaData), "SA_RINCON"); idx != -1 {
			remainder := item.ResourceMetaData[idx:]
			if endIdx := strings.IndexAny(remainder, " <>&"); endIdx > 0 {
				creds.AccountID = remainder[:endIdx]
			} else {
				creds.AccountID = remainder
			}
		}
	}

	if creds.SID == "" && creds.Token == "" {
		return nil
	}
	return creds
}

func (e *CredentialExtractor) detectServiceFromItem(item soap.FavoriteItem) string {
	resource := strings.ToLower(item.Resource)
	metadata := strings.ToLower(item.ResourceMetaData)

	if strings.Contains(resource, "spotify") || strings.Contains(metadata, "spotify") || e.hasSID(item.Resource, SIDSpotify) {
		return ServiceSpotify
	}
	if strings.Contains(resource, "apple") || strings.Contains(metadata, "sa_rincon52231") || e.hasSID(item.Resource, SIDAppleMusic) {
		return ServiceAppleMusic
	}
	if strings.Contains(resource, "amazon") || strings.Contains(resource, "amzn") || e.hasSID(item.Resource, SIDAmazonMusic) {
		return ServiceAmazonMusic
	}
	return ""
}

func (e *CredentialExtractor) hasSID(uri, expectedSID string) bool {
	matches := sidPattern.FindStringSubmatch(uri)
	return len(matches) > 1 && matches[1] == expectedSID
}

func (e *CredentialExtractor) cacheCredentials(service string, creds *ServiceCredentials) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache[service] = &cachedCredentials{credentials: creds, cachedAt: time.Now()}
}

// GetServiceStatus reports whether a service's credentials are ready,
// need bootstrapping via a new favorite, or are never supported.
func (e *CredentialExtractor) GetServiceStatus(service string) string {
	if service == ServiceAmazonMusic {
		return StatusNotSupported
	}
	e.cacheMu.RLock()
	cached, ok := e.cache[service]
	e.cacheMu.RUnlock()
	if ok && time.Since(cached.cachedAt) < e.cacheTTL {
		return StatusReady
	}
	return StatusNeedsBootstrap
}

// IsCacheValid reports whether service has a non-stale cached entry.
func (e *CredentialExtractor) IsCacheValid(service string) bool {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	cached, ok := e.cache[service]
	if !ok {
		return false
	}
	return time.Since(cached.cachedAt) < e.cacheTTL
}

// SetCacheTTL overrides the credential cache TTL (test hook).
func (e *CredentialExtractor) SetCacheTTL(ttl time.Duration) { e.cacheTTL = ttl }

// HasCredentials reports whether service currently resolves to a
// cached or freshly-extracted credential.
func (e *CredentialExtractor) HasCredentials(ctx context.Context, service, deviceIP string) bool {
	creds, _ := e.GetCredentials(ctx, service, deviceIP)
	return creds != nil
}

// ClearCache empties the credential cache.
func (e *CredentialExtractor) ClearCache() {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache = make(map[string]*cachedCredentials)
}

// ServiceNeedsBootstrapError indicates credentials have not yet been
// observed in any favorite for the named service.
type ServiceNeedsBootstrapError struct {
	Service string
}

func (e *ServiceNeedsBootstrapError) Error() string {
	return fmt.Sprintf("service '%s' needs credentials - add a %s item to Sonos favorites", e.Service, e.Service)
}
