// Package catalogue resolves a requested piece of music (a saved
// favourite or a direct service reference) into a playable URI plus
// DIDL-Lite metadata, and reports which streaming services are usable.
package catalogue

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/playerhub/gateway/internal/player"
	"github.com/playerhub/gateway/internal/player/soap"
)

// Content describes what the caller wants played.
type Content struct {
	Type        string  `json:"type"` // "sonos_favorite" or "direct"
	FavoriteID  *string `json:"favorite_id,omitempty"`
	Service     *string `json:"service,omitempty"`
	ContentType *string `json:"content_type,omitempty"`
	ContentID   *string `json:"content_id,omitempty"`
	Title       *string `json:"title,omitempty"`
}

// ResolvedContent is Content resolved to something a player can be
// handed directly via SetAVTransportURI or the queue.
type ResolvedContent struct {
	URI         string `json:"uri"`
	Metadata    string `json:"metadata"`
	Title       string `json:"title"`
	ContentType string `json:"content_type"`
	Service     string `json:"service"`
	UsesQueue   bool   `json:"uses_queue"`
}

// ValidationResult reports whether Content could be resolved, without
// actually starting playback.
type ValidationResult struct {
	Valid           bool   `json:"valid"`
	ContentType     string `json:"content_type,omitempty"`
	CanBeQueued     bool   `json:"can_be_queued"`
	Service         string `json:"service,omitempty"`
	ServiceReady    bool   `json:"service_ready"`
	DeviceAvailable bool   `json:"device_available"`
	Error           string `json:"error,omitempty"`
	Remediation     string `json:"remediation,omitempty"`
}

// ServiceStatus reports one streaming service's direct-playback
// readiness, surfaced at GET /services.
type ServiceStatus struct {
	Object                string   `json:"object"`
	Service               string   `json:"service"`
	DisplayName           string   `json:"display_name"`
	Status                string   `json:"status"`
	Ready                 bool     `json:"ready"`
	HasCredential         bool     `json:"has_credential"`
	SupportedContentTypes []string `json:"supported_content_types,omitempty"`
	LogoURL               string   `json:"logo_url,omitempty"`
	Error                 string   `json:"error,omitempty"`
	Remediation           string   `json:"remediation,omitempty"`
}

var serviceLogos = map[string]string{
	player.ServiceSpotify:     "/assets/service-logos/spotify.png",
	player.ServiceAppleMusic:  "/assets/service-logos/apple-music.png",
	player.ServiceAmazonMusic: "/assets/service-logos/amazon-music.png",
}

var serviceDisplayNames = map[string]string{
	player.ServiceSpotify:     "Spotify",
	player.ServiceAppleMusic:  "Apple Music",
	player.ServiceAmazonMusic: "Amazon Music",
}

var serviceSupportedContentTypes = map[string][]string{
	player.ServiceSpotify:     {"track", "album", "playlist", "artist"},
	player.ServiceAppleMusic:  {"track", "album", "playlist"},
	player.ServiceAmazonMusic: {},
}

// URIBuilder constructs the service-specific URI/DIDL-Lite pairs a
// player accepts for SetAVTransportURI or queue insertion. It never
// calls out to a streaming service's own API: every URI here is a
// Sonos-internal scheme the player itself resolves.
type URIBuilder struct {
	logger *log.Logger
}

func NewURIBuilder(logger *log.Logger) *URIBuilder { return &URIBuilder{logger: logger} }

func (b *URIBuilder) BuildURI(service, contentType, contentID string, creds *player.ServiceCredentials) (string, error) {
	switch service {
	case player.ServiceSpotify:
		return b.buildSpotifyURI(contentType, contentID, creds)
	case player.ServiceAppleMusic:
		return b.buildAppleMusicURI(contentType, contentID, creds)
	default:
		return "", &ServiceNotSupportedError{Service: service}
	}
}

func (b *URIBuilder) BuildMetadata(service, contentType, contentID, title string, creds *player.ServiceCredentials) (string, error) {
	switch service {
	case player.ServiceSpotify:
		return b.buildSpotifyMetadata(contentType, contentID, title, creds)
	case player.ServiceAppleMusic:
		return b.buildAppleMusicMetadata(contentType, contentID, title, creds)
	default:
		return "", &ServiceNotSupportedError{Service: service}
	}
}

func (b *URIBuilder) buildSpotifyURI(contentType, contentID string, creds *player.ServiceCredentials) (string, error) {
	switch contentType {
	case "playlist":
		return fmt.Sprintf("x-rincon-cpcontainer:1006206c%s?sid=%s&flags=8300&sn=1", contentID, creds.SID), nil
	case "album":
		return fmt.Sprintf("x-rincon-cpcontainer:1004206c%s?sid=%s&flags=8300&sn=1", contentID, creds.SID), nil
	case "track":
		return fmt.Sprintf("x-sonos-spotify:spotify:track:%s?sid=%s&flags=8224&sn=1", contentID, creds.SID), nil
	case "station", "radio":
		return fmt.Sprintf("x-sonosapi-radio:spotify:station:%s?sid=%s&flags=8300&sn=1", contentID, creds.SID), nil
	default:
		return "", fmt.Errorf("unsupported content type for Spotify: %s", contentType)
	}
}

func (b *URIBuilder) buildAppleMusicURI(contentType, contentID string, creds *player.ServiceCredentials) (string, error) {
	switch contentType {
	case "playlist":
		return fmt.Sprintf("x-rincon-cpcontainer:1006006cplaylist:%s?sid=%s", contentID, creds.SID), nil
	case "album":
		return fmt.Sprintf("x-rincon-cpcontainer:1004006calbum:%s?sid=%s", contentID, creds.SID), nil
	case "track":
		return fmt.Sprintf("x-sonos-http:song%%3a%s.mp4?sid=%s", contentID, creds.SID), nil
	case "station", "radio":
		return fmt.Sprintf("x-sonosapi-radio:station:%s?sid=%s", contentID, creds.SID), nil
	default:
		return "", fmt.Errorf("unsupported content type for Apple Music: %s", contentType)
	}
}

func (b *URIBuilder) buildSpotifyMetadata(contentType, contentID, title string, creds *player.ServiceCredentials) (string, error) {
	var upnpClass, itemID string
	switch contentType {
	case "playlist":
		upnpClass, itemID = "object.container.playlistContainer", "1006206c"+contentID
	case "album":
		upnpClass, itemID = "object.container.album.musicAlbum", "1004206c"+contentID
	case "track":
		upnpClass, itemID = "object.item.audioItem.musicTrack", "00032020"+contentID
	case "station", "radio":
		upnpClass, itemID = "object.item.audioItem.audioBroadcast", "100c206c"+contentID
	default:
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}
	return buildDidlMetadata(itemID, title, upnpClass, creds.AccountID), nil
}

func (b *URIBuilder) buildAppleMusicMetadata(contentType, contentID, title string, creds *player.ServiceCredentials) (string, error) {
	var upnpClass, itemID string
	switch contentType {
	case "playlist":
		upnpClass, itemID = "object.container.playlistContainer", "1006006cplaylist:"+contentID
	case "album":
		upnpClass, itemID = "object.container.album.musicAlbum", "1004006calbum:"+contentID
	case "track":
		upnpClass, itemID = "object.item.audioItem.musicTrack", "10032020song:"+contentID
	case "station", "radio":
		upnpClass, itemID = "object.item.audioItem.audioBroadcast", "100c006cstation:"+contentID
	default:
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}
	return buildDidlMetadata(itemID, title, upnpClass, creds.AccountID), nil
}

func buildDidlMetadata(itemID, title, upnpClass, accountID string) string {
	if title == "" {
		title = "Unknown"
	}
	return fmt.Sprintf(`<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/" xmlns:r="urn:schemas-rinconnetworks-com:metadata-1-0/" xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"><item id="%s" parentID="0" restricted="true"><dc:title>%s</dc:title><upnp:class>%s</upnp:class><desc id="cdudn" nameSpace="urn:schemas-rinconnetworks-com:metadata-1-0/">%s</desc></item></DIDL-Lite>`,
		itemID, title, upnpClass, accountID)
}

// DeviceResolver resolves a logical device id to a reachable IP.
type DeviceResolver interface {
	ResolveDeviceIP(deviceID string) (string, error)
}

// Resolver is the music-catalogue orchestrator: it turns Content into
// ResolvedContent, and reports per-service readiness.
type Resolver struct {
	soapClient          *soap.Client
	credentialExtractor *player.CredentialExtractor
	uriBuilder          *URIBuilder
	deviceService       DeviceResolver
	timeout             time.Duration
	logger              *log.Logger
}

func NewResolver(soapClient *soap.Client, deviceResolver DeviceResolver, timeout time.Duration, logger *log.Logger) *Resolver {
	return &Resolver{
		soapClient:          soapClient,
		credentialExtractor: player.NewCredentialExtractor(soapClient, timeout, logger),
		uriBuilder:          NewURIBuilder(logger),
		deviceService:       deviceResolver,
		timeout:             timeout,
		logger:              logger,
	}
}

func (r *Resolver) ResolveContent(ctx context.Context, content Content, deviceIP string) (*ResolvedContent, error) {
	switch content.Type {
	case "sonos_favorite":
		if content.FavoriteID == nil || *content.FavoriteID == "" {
			return nil, fmt.Errorf("favorite_id is required for sonos_favorite type")
		}
		return r.ResolveFavorite(ctx, *content.FavoriteID, deviceIP)
	case "direct":
		if content.Service == nil || *content.Service == "" {
			return nil, fmt.Errorf("service is required for direct type")
		}
		if content.ContentType == nil || *content.ContentType == "" {
			return nil, fmt.Errorf("content_type is required for direct type")
		}
		if content.ContentID == nil || *content.ContentID == "" {
			return nil, fmt.Errorf("content_id is required for direct type")
		}
		title := ""
		if content.Title != nil {
			title = *content.Title
		}
		return r.ResolveDirectContent(ctx, *content.Service, *content.ContentType, *content.ContentID, title, deviceIP)
	default:
		return nil, fmt.Errorf("unknown content type: %s", content.Type)
	}
}

func (r *Resolver) ResolveFavorite(ctx context.Context, favoriteID, deviceIP string) (*ResolvedContent, error) {
	browseResult, err := r.soapClient.Browse(ctx, deviceIP, "FV:2", "BrowseDirectChildren", "*", 0, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to browse favorites: %w", err)
	}

	var favorite *soap.FavoriteItem
	for i := range browseResult.Items {
		if browseResult.Items[i].ID == favoriteID {
			favorite = &browseResult.Items[i]
			break
		}
	}
	if favorite == nil {
		return nil, &FavoriteNotFoundError{FavoriteID: favoriteID}
	}

	contentType := r.determineContentType(favorite.UpnpClass)
	service := detectServiceName(favorite.Resource, favorite.ResourceMetaData)
	usesQueue := strings.HasPrefix(strings.ToLower(favorite.Resource), "x-rincon-cpcontainer")

	return &ResolvedContent{
		URI:         favorite.Resource,
		Metadata:    favorite.ResourceMetaData,
		Title:       favorite.Title,
		ContentType: contentType,
		Service:     service,
		UsesQueue:   usesQueue,
	}, nil
}

func (r *Resolver) ResolveDirectContent(ctx context.Context, service, contentType, contentID, title, deviceIP string) (*ResolvedContent, error) {
	if !r.isServiceSupported(service) {
		return nil, &ServiceNotSupportedError{Service: service}
	}

	creds, err := r.credentialExtractor.GetCredentials(ctx, service, deviceIP)
	if err != nil {
		return nil, err
	}

	uri, err := r.uriBuilder.BuildURI(service, contentType, contentID, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to build URI: %w", err)
	}
	metadata, err := r.uriBuilder.BuildMetadata(service, contentType, contentID, title, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata: %w", err)
	}

	usesQueue := contentType == "playlist" || contentType == "album"
	displayTitle := title
	if displayTitle == "" {
		displayTitle = fmt.Sprintf("%s %s", service, contentType)
	}

	return &ResolvedContent{
		URI:         uri,
		Metadata:    metadata,
		Title:       displayTitle,
		ContentType: contentType,
		Service:     service,
		UsesQueue:   usesQueue,
	}, nil
}

// UsesQueuePlayback reports whether content needs queue-based playback
// (playlists, albums) rather than a direct SetAVTransportURI (tracks,
// stations). Favorites can't be classified without resolving them
// first; callers should re-check on the resolved result.
func (r *Resolver) UsesQueuePlayback(content Content) bool {
	if content.Type == "sonos_favorite" {
		return false
	}
	if content.ContentType != nil {
		ct := *content.ContentType
		return ct == "playlist" || ct == "album"
	}
	return false
}

func (r *Resolver) ValidateContent(ctx context.Context, content Content, deviceIP string) (*ValidationResult, error) {
	result := &ValidationResult{DeviceAvailable: true}

	if _, err := r.soapClient.GetTransportInfo(ctx, deviceIP); err != nil {
		result.DeviceAvailable = false
		result.Valid = false
		result.Error = "device not reachable"
		result.Remediation = "Check that the player is powered on and connected to the network"
		return result, nil
	}

	switch content.Type {
	case "sonos_favorite":
		if content.FavoriteID == nil || *content.FavoriteID == "" {
			result.Valid = false
			result.Error = "favorite_id is required"
			return result, nil
		}
		playable, err := r.ResolveFavorite(ctx, *content.FavoriteID, deviceIP)
		if err != nil {
			if _, ok := err.(*FavoriteNotFoundError); ok {
				result.Valid = false
				result.Error = "favorite not found"
				result.Remediation = "Check the favorite ID or browse available favorites"
				return result, nil
			}
			result.Valid = false
			result.Error = err.Error()
			return result, nil
		}
		result.Valid = true
		result.ContentType = playable.ContentType
		result.CanBeQueued = playable.UsesQueue
		result.Service = playable.Service
		result.ServiceReady = true

	case "direct":
		if content.Service == nil || *content.Service == "" {
			result.Valid = false
			result.Error = "service is required"
			return result, nil
		}
		service := *content.Service
		result.Service = service

		if !r.isServiceSupported(service) {
			result.Valid = false
			result.Error = fmt.Sprintf("service '%s' is not supported for direct playback", service)
			result.Remediation = "Supported services: spotify, apple_music"
			return result, nil
		}
		if !r.credentialExtractor.HasCredentials(ctx, service, deviceIP) {
			result.Valid = false
			result.ServiceReady = false
			result.Error = fmt.Sprintf("no credentials found for %s", service)
			result.Remediation = fmt.Sprintf("Add a %s item to your favorites to bootstrap credentials", service)
			return result, nil
		}
		result.ServiceReady = true

		if content.ContentType == nil || *content.ContentType == "" {
			result.Valid = false
			result.Error = "content_type is required"
			return result, nil
		}
		if content.ContentID == nil || *content.ContentID == "" {
			result.Valid = false
			result.Error = "content_id is required"
			return result, nil
		}
		result.Valid = true
		result.ContentType = *content.ContentType
		result.CanBeQueued = r.UsesQueuePlayback(content)

	default:
		result.Valid = false
		result.Error = fmt.Sprintf("unknown content type: %s", content.Type)
		result.Remediation = "Valid types are: sonos_favorite, direct"
	}

	return result, nil
}

func (r *Resolver) GetServiceCapabilities(deviceIP string) []ServiceStatus {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	services := []string{player.ServiceSpotify, player.ServiceAppleMusic, player.ServiceAmazonMusic}
	statuses := make([]ServiceStatus, 0, len(services))

	for _, svc := range services {
		status := ServiceStatus{Object: "service_status", Service: svc}
		if r.isServiceSupported(svc) {
			creds, err := r.credentialExtractor.GetCredentials(ctx, svc, deviceIP)
			if err != nil {
				if _, ok := err.(*player.ServiceNeedsBootstrapError); ok {
					status.Ready = false
					status.HasCredential = false
					status.Error = fmt.Sprintf("Add a %s item to favorites to enable", svc)
				} else {
					status.Ready = false
					status.Error = err.Error()
				}
			} else {
				status.Ready = true
				status.HasCredential = creds != nil
			}
		} else {
			status.Ready = false
			status.Error = "Direct playback not supported for this service"
		}
		status.DisplayName = serviceDisplayNames[svc]
		status.LogoURL = serviceLogos[svc]
		status.SupportedContentTypes = serviceSupportedContentTypes[svc]
		statuses = append(statuses, status)
	}
	return statuses
}

func (r *Resolver) GetServiceHealth(service, deviceIP string) (*ServiceStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	status := &ServiceStatus{Object: "service_status", Service: service, DisplayName: serviceDisplayNames[service], LogoURL: serviceLogos[service]}

	if !r.isServiceSupported(service) {
		status.Ready = false
		status.Error = "Service not supported for direct playback"
		return status, nil
	}

	creds, err := r.credentialExtractor.GetCredentials(ctx, service, deviceIP)
	if err != nil {
		if _, ok := err.(*player.ServiceNeedsBootstrapError); ok {
			status.Ready = false
			status.HasCredential = false
			status.Error = fmt.Sprintf("Add a %s item to favorites to bootstrap credentials", service)
		} else {
			status.Ready = false
			status.Error = err.Error()
		}
		return status, nil
	}
	status.Ready = true
	status.HasCredential = creds != nil
	return status, nil
}

func (r *Resolver) isServiceSupported(service string) bool {
	switch service {
	case player.ServiceSpotify, player.ServiceAppleMusic:
		return true
	default:
		return false
	}
}

func (r *Resolver) determineContentType(upnpClass string) string {
	upnpClass = strings.ToLower(upnpClass)
	switch {
	case strings.Contains(upnpClass, "audiobroadcast") || strings.Contains(upnpClass, "radio"):
		return "station"
	case strings.Contains(upnpClass, "playlistcontainer") || strings.Contains(upnpClass, "playlist"):
		return "playlist"
	case strings.Contains(upnpClass, "album") || strings.Contains(upnpClass, "musicalbum"):
		return "album"
	case strings.Contains(upnpClass, "musictrack") || strings.Contains(upnpClass, "audioitem"):
		return "track"
	default:
		return "unknown"
	}
}

func detectServiceName(resource, metadata string) string {
	resource = strings.ToLower(resource)
	metadata = strings.ToLower(metadata)
	switch {
	case strings.Contains(resource, "spotify") || strings.Contains(metadata, "spotify"):
		return player.ServiceSpotify
	case strings.Contains(resource, "apple") || strings.Contains(metadata, "sa_rincon52231"):
		return player.ServiceAppleMusic
	case strings.Contains(resource, "amazon") || strings.Contains(resource, "amzn"):
		return player.ServiceAmazonMusic
	default:
		return ""
	}
}

// FavoriteNotFoundError indicates a favorite id wasn't present in the
// household's favourites list.
type FavoriteNotFoundError struct {
	FavoriteID string
}

func (e *FavoriteNotFoundError) Error() string { return fmt.Sprintf("favorite not found: %s", e.FavoriteID) }

// ServiceNotSupportedError indicates a service doesn't support direct
// playback through this gateway.
type ServiceNotSupportedError struct {
	Service string
}

func (e *ServiceNotSupportedError) Error() string {
	return fmt.Sprintf("service '%s' does not support direct playback", e.Service)
}

// ContentUnavailableError indicates content could not be resolved for
// a reason other than a missing favorite or unsupported service.
type ContentUnavailableError struct {
	Reason string
}

func (e *ContentUnavailableError) Error() string { return fmt.Sprintf("content unavailable: %s", e.Reason) }
