package catalogue

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
	"github.com/playerhub/gateway/internal/player"
)

// RegisterPlayRoutes wires playback and service-status routes to the router.
func RegisterPlayRoutes(router chi.Router, playService *PlayService) {
	// POST /v1/sonos/play - Resume playback
	router.Method(http.MethodPost, "/v1/sonos/play", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var req PlayRequest
		if err := decodeJSON(r, &req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		if req.CoordinatorDeviceID == nil && req.IP == nil {
			return apperrors.NewValidationError("coordinator_device_id or ip is required", nil)
		}

		result, err := playService.Play(r.Context(), req)
		if err != nil {
			return apperrors.NewInternalError("Failed to start playback: " + err.Error())
		}

		return api.WriteAction(w, http.StatusOK, result)
	}))

	// POST /v1/sonos/play/favorite - Play a Sonos favorite
	router.Method(http.MethodPost, "/v1/sonos/play/favorite", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var req PlayFavoriteRequest
		if err := decodeJSON(r, &req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		if req.FavoriteID == "" {
			return apperrors.NewValidationError("favorite_id is required", nil)
		}

		if req.DeviceID == nil && req.IP == nil {
			return apperrors.NewValidationError("device_id or ip is required", nil)
		}

		result, err := playService.PlayFavorite(r.Context(), req)
		if err != nil {
			if _, ok := err.(*FavoriteNotFoundError); ok {
				return apperrors.NewValidationError("favorite not found: "+req.FavoriteID, nil)
			}
			return apperrors.NewInternalError("Failed to play favorite: " + err.Error())
		}

		return api.WriteAction(w, http.StatusOK, result)
	}))

	// POST /v1/sonos/play/content - Play direct content
	router.Method(http.MethodPost, "/v1/sonos/play/content", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var req PlayContentRequest
		if err := decodeJSON(r, &req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		if req.DeviceID == nil && req.IP == nil {
			return apperrors.NewValidationError("device_id or ip is required", nil)
		}

		if req.Content.Type == "" {
			return apperrors.NewValidationError("content.type is required", nil)
		}

		result, err := playService.PlayContent(r.Context(), req)
		if err != nil {
			if _, ok := err.(*ServiceNotSupportedError); ok {
				return apperrors.NewValidationError(err.Error(), nil)
			}
			if _, ok := err.(*player.ServiceNeedsBootstrapError); ok {
				return apperrors.NewValidationError(err.Error(), nil)
			}
			return apperrors.NewInternalError("Failed to play content: " + err.Error())
		}

		return api.WriteAction(w, http.StatusOK, result)
	}))

	// POST /v1/sonos/validate-content - Validate content without playing it
	router.Method(http.MethodPost, "/v1/sonos/validate-content", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var req ValidateContentRequest
		if err := decodeJSON(r, &req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		result, err := playService.ValidateContent(r.Context(), req)
		if err != nil {
			return apperrors.NewInternalError("Failed to validate content: " + err.Error())
		}

		return api.WriteResource(w, http.StatusOK, result)
	}))

	// GET /v1/sonos/services - Get all music service statuses
	router.Method(http.MethodGet, "/v1/sonos/services", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		deviceID := r.URL.Query().Get("device_id")
		ip := r.URL.Query().Get("ip")

		if deviceID == "" && ip == "" {
			return apperrors.NewValidationError("device_id or ip query parameter is required", nil)
		}

		deviceIP := ip
		if deviceIP == "" {
			resolvedIP, _, err := playService.ResolveDeviceIP(&deviceID, nil)
			if err != nil {
				return apperrors.NewNotFoundError("Device not found", nil)
			}
			deviceIP = resolvedIP
		}

		services, err := playService.GetServices(r.Context(), deviceIP)
		if err != nil {
			return apperrors.NewInternalError("Failed to get services: " + err.Error())
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object": "services",
			"items":  services,
			"count":  len(services),
		})
	}))

	// GET /v1/sonos/services/{service}/health - Get health status for a specific service
	router.Method(http.MethodGet, "/v1/sonos/services/{service}/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		service := chi.URLParam(r, "service")
		if service == "" {
			return apperrors.NewValidationError("service name is required", nil)
		}

		deviceID := r.URL.Query().Get("device_id")
		ip := r.URL.Query().Get("ip")

		if deviceID == "" && ip == "" {
			return apperrors.NewValidationError("device_id or ip query parameter is required", nil)
		}

		deviceIP := ip
		if deviceIP == "" {
			resolvedIP, _, err := playService.ResolveDeviceIP(&deviceID, nil)
			if err != nil {
				return apperrors.NewNotFoundError("Device not found", nil)
			}
			deviceIP = resolvedIP
		}

		status, err := playService.GetServiceHealth(r.Context(), service, deviceIP)
		if err != nil {
			return apperrors.NewInternalError("Failed to get service health: " + err.Error())
		}

		return api.WriteResource(w, http.StatusOK, status)
	}))
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}
