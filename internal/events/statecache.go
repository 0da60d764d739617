package events

import (
	"log"
	"strconv"
	"sync"
	"time"
)

// historyEntry is one ring-buffer sample: a timestamp plus the string
// form of whatever value changed (transport state, or "true"/"false"
// for mute).
type historyEntry struct {
	At    time.Time
	Value string
}

// StateCache provides thread-safe caching of device playback states.
// States are updated from UPnP events and read by API handlers.
type StateCache struct {
	mu     sync.RWMutex
	states map[string]*DeviceState // keyed by device IP
	ttl    time.Duration

	// transportHistory and muteHistory are last-historySize ring buffers
	// per device IP, used for diagnostics only (the fast "already in
	// target state?" path reads the live entry in states, not these).
	transportHistory map[string][]historyEntry
	muteHistory      map[string][]historyEntry

	// Statistics
	hits   int64
	misses int64
}

// NewStateCache creates a new state cache with the given TTL.
func NewStateCache(ttl time.Duration) *StateCache {
	return &StateCache{
		states:           make(map[string]*DeviceState),
		transportHistory: make(map[string][]historyEntry),
		muteHistory:      make(map[string][]historyEntry),
		ttl:              ttl,
	}
}

func appendHistory(ring []historyEntry, value string) []historyEntry {
	ring = append(ring, historyEntry{At: time.Now(), Value: value})
	if len(ring) > historySize {
		ring = ring[len(ring)-historySize:]
	}
	return ring
}

// Get returns the device state for the given IP if it exists and is fresh.
// Returns nil if not found or stale.
func (c *StateCache) Get(deviceIP string) *DeviceState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.states[deviceIP]
	if !ok {
		// Debug: list what IPs ARE in the cache
		ips := make([]string, 0, len(c.states))
		for ip := range c.states {
			ips = append(ips, ip)
		}
		log.Printf("CACHE: Miss for %s, cache has: %v", deviceIP, ips)
		c.misses++
		return nil
	}

	if !state.IsFresh(c.ttl) {
		log.Printf("CACHE: Stale data for %s (age: %v, ttl: %v)", deviceIP, time.Since(state.UpdatedAt), c.ttl)
		c.misses++
		return nil
	}

	c.hits++
	// Return a copy to prevent races
	stateCopy := *state
	return &stateCopy
}

// GetByUDN returns the device state for the given UDN if it exists and is fresh.
func (c *StateCache) GetByUDN(udn string) *DeviceState {
	udn = normalizeUUID(udn)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, state := range c.states {
		if normalizeUUID(state.DeviceUDN) == udn && state.IsFresh(c.ttl) {
			c.hits++
			stateCopy := *state
			return &stateCopy
		}
	}

	c.misses++
	return nil
}

// PeekByUDN returns the device state for the given UDN regardless of
// freshness, or nil if the UDN is unknown. Used for health checks and
// baseline snapshots that must see the latest value even if stale.
func (c *StateCache) PeekByUDN(udn string) *DeviceState {
	udn = normalizeUUID(udn)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, state := range c.states {
		if normalizeUUID(state.DeviceUDN) == udn {
			stateCopy := *state
			return &stateCopy
		}
	}
	return nil
}

// RemoveByUDN removes every cached entry matching udn, along with its
// history ring buffers. Used when a player is permanently unregistered.
func (c *StateCache) RemoveByUDN(udn string) {
	udn = normalizeUUID(udn)

	c.mu.Lock()
	defer c.mu.Unlock()

	for ip, state := range c.states {
		if normalizeUUID(state.DeviceUDN) == udn {
			delete(c.states, ip)
			delete(c.transportHistory, ip)
			delete(c.muteHistory, ip)
		}
	}
}

// TransportHistory returns a copy of the transport-state ring buffer
// for deviceIP, oldest first.
func (c *StateCache) TransportHistory(deviceIP string) []historyEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ring := c.transportHistory[deviceIP]
	out := make([]historyEntry, len(ring))
	copy(out, ring)
	return out
}

// MuteHistory returns a copy of the mute-state ring buffer for
// deviceIP, oldest first.
func (c *StateCache) MuteHistory(deviceIP string) []historyEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ring := c.muteHistory[deviceIP]
	out := make([]historyEntry, len(ring))
	copy(out, ring)
	return out
}

// Set stores or updates the device state.
func (c *StateCache) Set(deviceIP string, state *DeviceState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state.UpdatedAt = time.Now()
	c.states[deviceIP] = state
}

// UpdateTransport updates transport-related fields for a device and
// returns a copy of the state immediately before the update (nil on a
// device's first event), so callers can diff field-by-field to decide
// which wait-for conditions to wake.
func (c *StateCache) UpdateTransport(deviceIP string, event *AVTransportEvent) (prev *DeviceState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[deviceIP]
	if ok {
		prevCopy := *state
		prev = &prevCopy
	} else {
		state = &DeviceState{
			DeviceIP: deviceIP,
			Source:   "upnp_event",
		}
		c.states[deviceIP] = state
	}

	now := time.Now()
	hasTransportState := false // Track if we got meaningful transport state data

	if event.TransportState != "" {
		state.TransportState = event.TransportState
		hasTransportState = true
	}
	if event.TransportStatus != "" {
		state.TransportStatus = event.TransportStatus
	}
	if event.CurrentTrackURI != "" {
		state.CurrentTrackURI = event.CurrentTrackURI
	}
	if event.CurrentTrackMetaData != "" {
		state.CurrentTrackMetaData = event.CurrentTrackMetaData
	}
	if event.TrackDuration != "" {
		state.TrackDuration = event.TrackDuration
	}
	if event.RelTime != "" {
		state.RelativeTime = event.RelTime
	}
	if event.AVTransportURI != "" {
		state.AVTransportURI = event.AVTransportURI
	}
	if event.AVTransportURIMetaData != "" {
		state.CurrentURIMetaData = event.AVTransportURIMetaData
	}

	state.TransportUpdatedAt = now
	// Only update main freshness timestamp if we got transport state.
	// This prevents position-only updates from masking stale/empty transport state.
	if hasTransportState {
		state.UpdatedAt = now
	}
	state.Source = "upnp_event"

	if hasTransportState {
		c.transportHistory[deviceIP] = appendHistory(c.transportHistory[deviceIP], state.TransportState)
	}
	return prev
}

// UpdateVolume updates volume-related fields for a device and returns a
// copy of the state immediately before the update (nil on a device's
// first event).
func (c *StateCache) UpdateVolume(deviceIP string, event *RenderingControlEvent) (prev *DeviceState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[deviceIP]
	if ok {
		prevCopy := *state
		prev = &prevCopy
	} else {
		state = &DeviceState{
			DeviceIP: deviceIP,
			Source:   "upnp_event",
		}
		c.states[deviceIP] = state
	}

	now := time.Now()
	state.Volume = event.Volume
	state.Muted = event.Muted
	state.VolumeUpdatedAt = now
	state.UpdatedAt = now
	state.Source = "upnp_event"

	c.muteHistory[deviceIP] = appendHistory(c.muteHistory[deviceIP], strconv.FormatBool(state.Muted))
	return prev
}

// SetUDN associates a UDN with a device IP.
func (c *StateCache) SetUDN(deviceIP, udn string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[deviceIP]
	if !ok {
		state = &DeviceState{
			DeviceIP: deviceIP,
			Source:   "upnp_event",
		}
		c.states[deviceIP] = state
	}
	state.DeviceUDN = udn
}

// Remove removes a device from the cache.
func (c *StateCache) Remove(deviceIP string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, deviceIP)
}

// Clear removes all entries from the cache.
func (c *StateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = make(map[string]*DeviceState)
}

// List returns all cached states (for debugging/monitoring).
func (c *StateCache) List() []*DeviceState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*DeviceState, 0, len(c.states))
	for _, state := range c.states {
		stateCopy := *state
		result = append(result, &stateCopy)
	}
	return result
}

// Stats returns cache statistics.
func (c *StateCache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.states)
}

// Prune removes stale entries from the cache.
func (c *StateCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for ip, state := range c.states {
		if !state.IsFresh(c.ttl) {
			delete(c.states, ip)
			pruned++
		}
	}
	return pruned
}

