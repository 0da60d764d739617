// Package topology owns the live zone/group snapshot and exposes read-only
// queries over it. The snapshot comes from GetZoneGroupState polls
// installed through ReplaceFromSOAP; topology NOTIFYs do not update it.
package topology

import (
	"strings"
	"sync"
	"time"

	"github.com/playerhub/gateway/internal/player/soap"
)

// Zone is a run-time grouping of one or more players sharing playback,
// with exactly one coordinator.
type Zone struct {
	ID          string
	Coordinator string
	Members     []Member
}

// Member describes one player's participation in a zone, including its
// structural bond role when it is part of a stereo/surround pair.
type Member struct {
	UUID          string
	RoomName      string
	IsCoordinator bool
	ChannelMapSet string
	SoftwareVer   string
}

// Manager holds the current zone snapshot and replaces it atomically on
// every Replace, so readers never observe a partial mix of old and new
// state.
type Manager struct {
	mu    sync.RWMutex
	zones []Zone
	stamp time.Time
}

// NewManager creates an empty topology manager; Replace must be called
// once topology is first observed.
func NewManager() *Manager {
	return &Manager{}
}

// Replace installs a new zone snapshot atomically. ReplaceFromSOAP is its
// only caller; nothing on the NOTIFY path calls it.
func (m *Manager) Replace(zones []Zone) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones = zones
	m.stamp = time.Now()
}

// ReplaceFromSOAP converts a soap.ZoneGroupState (as returned by
// GetZoneGroupState or parsed from a topology NOTIFY body) into the
// manager's Zone representation and installs it atomically.
func (m *Manager) ReplaceFromSOAP(state soap.ZoneGroupState) {
	zones := make([]Zone, 0, len(state.Groups))
	for _, g := range state.Groups {
		z := Zone{ID: g.ID, Coordinator: g.Coordinator}
		for _, mem := range g.Members {
			z.Members = append(z.Members, Member{
				UUID:          mem.UUID,
				RoomName:      mem.ZoneName,
				IsCoordinator: mem.IsCoordinator,
				ChannelMapSet: mem.ChannelMapSet,
			})
		}
		zones = append(zones, z)
	}
	m.Replace(zones)
}

// GetZones returns the current zone snapshot. The slice and its
// contents must be treated as read-only by the caller.
func (m *Manager) GetZones() []Zone {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.zones
}

// LastUpdated reports when the snapshot was last replaced.
func (m *Manager) LastUpdated() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stamp
}

// CoordinatorOf returns the coordinator UUID of the zone containing uuid,
// or "" if uuid is not currently known.
func (m *Manager) CoordinatorOf(uuid string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, z := range m.zones {
		for _, mem := range z.Members {
			if sameUUID(mem.UUID, uuid) {
				return z.Coordinator
			}
		}
	}
	return ""
}

// MembersOf returns the UUIDs of every player sharing a zone with uuid,
// uuid included. Returns nil if uuid is not currently known.
func (m *Manager) MembersOf(uuid string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, z := range m.zones {
		for _, mem := range z.Members {
			if sameUUID(mem.UUID, uuid) {
				ids := make([]string, 0, len(z.Members))
				for _, mm := range z.Members {
					ids = append(ids, mm.UUID)
				}
				return ids
			}
		}
	}
	return nil
}

// MemberDetails returns the room name and channel-map string for uuid.
func (m *Manager) MemberDetails(uuid string) (roomName, channelMapSet string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, z := range m.zones {
		for _, mem := range z.Members {
			if sameUUID(mem.UUID, uuid) {
				return mem.RoomName, mem.ChannelMapSet, true
			}
		}
	}
	return "", "", false
}

// StereoPrimary returns the UUID of the left-front member of a bonded
// pair/surround set in the named room, when more than one player shares
// that room name. The channel-map role string carries the satellite's
// role (LF, RF, LR, RR, C, SW, H, MX) separated by a colon from the
// paired device's RINCON id, mirroring the satellite-detection idiom
// used when parsing GetZoneGroupState.
func (m *Manager) StereoPrimary(roomName string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, z := range m.zones {
		var candidates []Member
		for _, mem := range z.Members {
			if strings.EqualFold(mem.RoomName, roomName) {
				candidates = append(candidates, mem)
			}
		}
		if len(candidates) < 2 {
			continue
		}
		for _, mem := range candidates {
			if strings.Contains(mem.ChannelMapSet, ":LF") || strings.HasSuffix(mem.ChannelMapSet, "LF") {
				return mem.UUID
			}
		}
		// No explicit LF tag found (e.g. the coordinator itself carries no
		// channel map) — the zone coordinator is the primary.
		for _, mem := range candidates {
			if mem.IsCoordinator {
				return mem.UUID
			}
		}
	}
	return ""
}

// IsPureStereoPair reports whether the zone containing uuid is exactly a
// two-member bond sharing one room name, with no other grouped players —
// the case in which leave()/ungroup() must be rejected.
func (m *Manager) IsPureStereoPair(uuid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, z := range m.zones {
		found := false
		for _, mem := range z.Members {
			if sameUUID(mem.UUID, uuid) {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		if len(z.Members) != 2 {
			return false
		}
		return strings.EqualFold(z.Members[0].RoomName, z.Members[1].RoomName)
	}
	return false
}

func sameUUID(a, b string) bool {
	return strings.TrimPrefix(a, "uuid:") == strings.TrimPrefix(b, "uuid:")
}
