package catalogue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/playerhub/gateway/internal/player/soap"
	"github.com/playerhub/gateway/internal/registry"
)

const servicesRefreshTTL = 24 * time.Hour

// personalizedIDLow/High bound the id range Sonos reserves for accounts
// with per-user personalization (Spotify, Apple Music, ...).
const (
	personalizedIDLow  = 80000
	personalizedIDHigh = 99999
)

// ServiceEntry is one normalized entry from the household's available
// music services table.
type ServiceEntry struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	URI            string `json:"uri"`
	SecureURI      string `json:"secure_uri"`
	IsPersonalized bool   `json:"is_personalized"`
	IsTuneIn       bool   `json:"is_tune_in"`
	IsDiscovered   bool   `json:"is_discovered"`
}

type servicesSnapshot struct {
	Services    []ServiceEntry `json:"services"`
	RefreshedAt time.Time      `json:"refreshed_at"`
}

// ServicesManager maintains the household's available-services table:
// refreshed from ListAvailableServices every 24h, persisted to disk, and
// augmented on the side by the credential extractor whenever it spots
// a favorite referencing a service id the table doesn't know about yet.
type ServicesManager struct {
	soapClient    *soap.Client
	deviceService *registry.Service
	persistPath   string
	logger        *log.Logger

	mu          sync.RWMutex
	services    map[string]ServiceEntry
	refreshedAt time.Time
}

func NewServicesManager(soapClient *soap.Client, deviceService *registry.Service, persistPath string, logger *log.Logger) *ServicesManager {
	if logger == nil {
		logger = log.Default()
	}
	return &ServicesManager{
		soapClient:    soapClient,
		deviceService: deviceService,
		persistPath:   persistPath,
		logger:        logger,
		services:      make(map[string]ServiceEntry),
	}
}

// LoadFromDisk restores a previously persisted snapshot, if any.
func (m *ServicesManager) LoadFromDisk() error {
	if m.persistPath == "" {
		return nil
	}
	data, err := os.ReadFile(m.persistPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read services cache: %w", err)
	}

	var snapshot servicesSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("parse services cache: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = make(map[string]ServiceEntry, len(snapshot.Services))
	for _, svc := range snapshot.Services {
		m.services[svc.ID] = svc
	}
	m.refreshedAt = snapshot.RefreshedAt
	return nil
}

// GetServices returns a snapshot of every known service, sorted by id.
func (m *ServicesManager) GetServices() []ServiceEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServiceEntry, 0, len(m.services))
	for _, svc := range m.services {
		out = append(out, svc)
	}
	sortServiceEntries(out)
	return out
}

func sortServiceEntries(entries []ServiceEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].ID < entries[j-1].ID; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// Status summarizes the services table for introspection endpoints.
type Status struct {
	Count       int       `json:"count"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Stale       bool      `json:"stale"`
}

// GetStatus reports the services table's size and freshness.
func (m *ServicesManager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Count:       len(m.services),
		RefreshedAt: m.refreshedAt,
		Stale:       m.refreshedAt.IsZero() || time.Since(m.refreshedAt) > servicesRefreshTTL,
	}
}

// IsStale reports whether the next scheduled Refresh is overdue.
func (m *ServicesManager) IsStale() bool {
	return m.GetStatus().Stale
}

// Refresh calls ListAvailableServices on the preferred available player
// (coordinator first, then a coordinator-capable device, then any) and
// replaces the services table with the normalized result.
func (m *ServicesManager) Refresh(ctx context.Context) error {
	ip, err := m.pickPreferredIP(ctx)
	if err != nil {
		return fmt.Errorf("no player available to refresh services: %w", err)
	}

	result, err := m.soapClient.ListAvailableServices(ctx, ip)
	if err != nil {
		return fmt.Errorf("ListAvailableServices: %w", err)
	}

	m.mu.Lock()
	discovered := make(map[string]ServiceEntry)
	for id, svc := range m.services {
		if svc.IsDiscovered {
			discovered[id] = svc
		}
	}

	services := make(map[string]ServiceEntry, len(result.Services)+len(discovered))
	for _, d := range result.Services {
		services[d.ID] = normalizeServiceDescriptor(d)
	}
	for id, svc := range discovered {
		if _, exists := services[id]; !exists {
			services[id] = svc
		}
	}
	m.services = services
	m.refreshedAt = time.Now()
	m.mu.Unlock()

	return m.persist()
}

// pickPreferredIP implements the coordinator-first / non-portable /
// any preference order for choosing which player answers
// ListAvailableServices.
func (m *ServicesManager) pickPreferredIP(ctx context.Context) (string, error) {
	if m.deviceService == nil {
		return "", fmt.Errorf("device registry not available")
	}

	devices, err := m.deviceService.GetDevices()
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no known players")
	}

	if coordIP := m.findCoordinatorIP(ctx, devices); coordIP != "" {
		return coordIP, nil
	}

	for _, d := range devices {
		if d.IsCoordinatorCapable {
			return d.IP, nil
		}
	}

	return devices[0].IP, nil
}

func (m *ServicesManager) findCoordinatorIP(ctx context.Context, devices []registry.LogicalDevice) string {
	if m.soapClient == nil || len(devices) == 0 {
		return ""
	}

	state, err := m.soapClient.GetZoneGroupState(ctx, devices[0].IP)
	if err != nil {
		return ""
	}

	ipByUUID := make(map[string]string, len(devices))
	for _, group := range state.Groups {
		for _, member := range group.Members {
			if member.IsCoordinator {
				for _, d := range devices {
					if strings.EqualFold(d.DeviceID, member.UUID) {
						ipByUUID[member.UUID] = d.IP
					}
				}
			}
		}
	}
	for _, ip := range ipByUUID {
		return ip
	}
	return ""
}

func normalizeServiceDescriptor(d soap.ServiceDescriptor) ServiceEntry {
	entry := ServiceEntry{
		ID:        d.ID,
		Name:      d.Name,
		URI:       d.URI,
		SecureURI: d.SecureURI,
		Type:      inferServiceType(d),
	}
	if id, err := strconv.Atoi(d.ID); err == nil {
		entry.IsPersonalized = id >= personalizedIDLow && id <= personalizedIDHigh
	}
	entry.IsTuneIn = strings.Contains(strings.ToLower(d.Name), "tunein") ||
		strings.Contains(strings.ToLower(d.URI), "tunein")
	return entry
}

// inferServiceType maps a service's URI scheme marker to a coarse type,
// the same markers the catalogue URI builder recognizes when resolving
// playable content for the service.
func inferServiceType(d soap.ServiceDescriptor) string {
	uri := strings.ToLower(d.URI)
	switch {
	case strings.Contains(uri, "x-sonos-spotify"), strings.Contains(uri, "spotify"):
		return "spotify"
	case strings.Contains(uri, "x-sonos-http"), strings.Contains(uri, "x-sonosapi-stream"):
		return "stream"
	case strings.Contains(uri, "x-sonosapi-radio"):
		return "radio"
	case strings.Contains(uri, "applemusic"):
		return "apple_music"
	default:
		return "unknown"
	}
}

// AddDiscoveredServiceID clones the canonical entry named canonicalName
// under a new service id and marks it discovered. Used when the
// credential extractor observes a favorite referencing a service id
// absent from the table. Discovered entries survive subsequent Refresh
// calls since Refresh preserves them explicitly.
func (m *ServicesManager) AddDiscoveredServiceID(id, canonicalName string) error {
	m.mu.Lock()
	if _, exists := m.services[id]; exists {
		m.mu.Unlock()
		return nil
	}

	var canonical *ServiceEntry
	for _, svc := range m.services {
		if strings.EqualFold(svc.Name, canonicalName) {
			c := svc
			canonical = &c
			break
		}
	}
	if canonical == nil {
		m.mu.Unlock()
		return fmt.Errorf("no canonical service entry named %q to clone", canonicalName)
	}

	clone := *canonical
	clone.ID = id
	clone.IsDiscovered = true
	m.services[id] = clone
	m.mu.Unlock()

	return m.persist()
}

func (m *ServicesManager) persist() error {
	if m.persistPath == "" {
		return nil
	}

	m.mu.RLock()
	snapshot := servicesSnapshot{
		Services:    make([]ServiceEntry, 0, len(m.services)),
		RefreshedAt: m.refreshedAt,
	}
	for _, svc := range m.services {
		snapshot.Services = append(snapshot.Services, svc)
	}
	m.mu.RUnlock()
	sortServiceEntries(snapshot.Services)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal services cache: %w", err)
	}

	dir := filepath.Dir(m.persistPath)
	tmp, err := os.CreateTemp(dir, "services-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp services cache: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp services cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp services cache: %w", err)
	}
	if err := os.Rename(tmpPath, m.persistPath); err != nil {
		return fmt.Errorf("rename services cache: %w", err)
	}
	return nil
}
