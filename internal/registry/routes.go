package registry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
)

// rfc3339Millis formats time with milliseconds.
func rfc3339Millis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// RegisterDebugRoutes wires registry-owned diagnostic routes under the
// caller-supplied /debug subrouter.
func RegisterDebugRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodPost, "/rescan", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		count, durationMs, err := service.Rescan()
		if err != nil {
			return apperrors.NewInternalError("device rescan failed")
		}
		return api.WriteSuccess(w, http.StatusOK, map[string]any{
			"devices_found": count,
			"duration_ms":   durationMs,
		})
	}))

	router.Method(http.MethodGet, "/device-health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		topology, err := service.GetTopology()
		if err != nil {
			return api.WriteResource(w, http.StatusOK, map[string]any{
				"total": 0, "online": 0, "offline": 0, "last_discovery": nil,
			})
		}
		online, offline := 0, 0
		for _, device := range topology.Devices {
			switch device.Health {
			case DeviceHealthOK:
				online++
			case DeviceHealthOffline, DeviceHealthDegraded:
				offline++
			}
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"total":          len(topology.Devices),
			"online":         online,
			"offline":        offline,
			"last_discovery": topology.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}))
}

// FormatDevice flattens a LogicalDevice into the REST-facing shape used
// by the /devices* routes and by router.mountSystem.
func FormatDevice(device LogicalDevice) map[string]any {
	var primaryUDN any
	if len(device.PhysicalDevices) > 0 {
		primaryUDN = device.PhysicalDevices[0].UDN
	}

	var logicalGroup any
	if device.LogicalGroupID != "" {
		logicalGroup = device.LogicalGroupID
	}

	physicalCount := len(device.PhysicalDevices)
	if physicalCount == 0 {
		physicalCount = 1
	}

	return map[string]any{
		"device_id":              device.DeviceID,
		"udn":                    primaryUDN,
		"room_name":              device.RoomName,
		"ip":                     device.IP,
		"model":                  device.Model,
		"role":                   device.Role,
		"is_targetable":          device.IsTargetable,
		"is_coordinator_capable": device.IsCoordinatorCapable,
		"supports_airplay":       device.SupportsAirPlay,
		"logical_group_id":       logicalGroup,
		"last_seen_at":           rfc3339Millis(device.LastSeenAt),
		"physical_device_count":  physicalCount,
	}
}

// DedupeDevices keeps only the most-recently-seen LogicalDevice per
// DeviceID, collapsing duplicate discovery entries.
func DedupeDevices(devices []LogicalDevice) []LogicalDevice {
	byID := make(map[string]LogicalDevice)
	for _, device := range devices {
		existing, ok := byID[device.DeviceID]
		if !ok || device.LastSeenAt.After(existing.LastSeenAt) {
			byID[device.DeviceID] = device
		}
	}
	result := make([]LogicalDevice, 0, len(byID))
	for _, device := range byID {
		result = append(result, device)
	}
	return result
}
