package apperrors

// =============================================================================
// Error Codes
// =============================================================================

type ErrorCode string

const (
	ErrorCodeInternalError          ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError        ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized           ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden              ErrorCode = "FORBIDDEN"
	ErrorCodeConflict               ErrorCode = "CONFLICT"
	ErrorCodeRateLimited            ErrorCode = "RATE_LIMITED"
	ErrorCodeSonosTimeout           ErrorCode = "SONOS_TIMEOUT"
	ErrorCodeSonosUnreachable       ErrorCode = "SONOS_UNREACHABLE"
	ErrorCodeSonosRejected          ErrorCode = "SONOS_REJECTED"
	ErrorCodeSonosTopology          ErrorCode = "SONOS_TOPOLOGY_CHANGED"
	ErrorCodeSonosVerifyFailed      ErrorCode = "SONOS_VERIFICATION_FAILED"
	ErrorCodeDeviceNotFound         ErrorCode = "DEVICE_NOT_FOUND"
	ErrorCodeDeviceOffline          ErrorCode = "DEVICE_OFFLINE"
	ErrorCodeDeviceNotTarget        ErrorCode = "DEVICE_NOT_TARGETABLE"
	ErrorCodeServiceNotBootstrapped ErrorCode = "SERVICE_NOT_BOOTSTRAPPED"
	ErrorCodeServiceAuthFailed      ErrorCode = "SERVICE_AUTH_FAILED"
	ErrorCodeContentTypeUnsupported ErrorCode = "CONTENT_TYPE_UNSUPPORTED"
	ErrorCodeContentUnavailable     ErrorCode = "CONTENT_UNAVAILABLE"

	// Error kinds named explicitly by the error-handling design: each maps
	// deterministically to one HTTP status via AppError.StatusCode.
	ErrorCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrorCodeRoomNotFound       ErrorCode = "ROOM_NOT_FOUND"
	ErrorCodePresetNotFound     ErrorCode = "PRESET_NOT_FOUND"
	ErrorCodeFavouriteNotFound  ErrorCode = "FAVOURITE_NOT_FOUND"
	ErrorCodeStationNotFound    ErrorCode = "STATION_NOT_FOUND"
	ErrorCodeAuthRequired       ErrorCode = "AUTH_REQUIRED"
	ErrorCodeServiceUnconfigured ErrorCode = "SERVICE_UNCONFIGURED"
	ErrorCodeNotImplemented     ErrorCode = "NOT_IMPLEMENTED"
	ErrorCodeUPnPTransient      ErrorCode = "UPNP_TRANSIENT"
	ErrorCodeUPnPPermanent      ErrorCode = "UPNP_PERMANENT"
	ErrorCodeStereoPairProtected ErrorCode = "STEREO_PAIR_PROTECTED"
	ErrorCodeLibraryNotReady    ErrorCode = "LIBRARY_NOT_READY"
	ErrorCodeSubscriptionFailed ErrorCode = "SUBSCRIPTION_FAILED"
)

// Remediation provides guidance on how to fix an error.
type Remediation struct {
	Action     string `json:"action"`
	Endpoint   string `json:"endpoint,omitempty"`
	UserAction string `json:"user_action,omitempty"`
}

// ErrorBody is the serialized error payload.
// Deprecated: Use StripeErrorBody for Stripe API-style errors.
type ErrorBody struct {
	Code        ErrorCode      `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Remediation *Remediation   `json:"remediation,omitempty"`
}

// =============================================================================
// Stripe API Error Types
// =============================================================================

// ErrorType categorizes errors following Stripe API conventions.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates invalid parameters, missing required fields, etc.
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAPIError indicates an internal API error.
	ErrorTypeAPIError ErrorType = "api_error"
	// ErrorTypeAuthError indicates authentication or authorization failure.
	ErrorTypeAuthError ErrorType = "authentication_error"
)

// StripeErrorBody is the Stripe-style error payload.
// Format: {"type": "invalid_request_error", "code": "NOT_FOUND", "message": "..."}
type StripeErrorBody struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// AppError is the base error type for HTTP responses.
type AppError struct {
	Code        ErrorCode
	Message     string
	StatusCode  int
	Details     map[string]any
	Remediation *Remediation
}

func (err *AppError) Error() string {
	return err.Message
}

func (err *AppError) ErrorBody() ErrorBody {
	body := ErrorBody{
		Code:    err.Code,
		Message: err.Message,
	}
	if err.Details != nil {
		body.Details = err.Details
	}
	if err.Remediation != nil {
		body.Remediation = err.Remediation
	}
	return body
}

// StripeErrorBody returns the error in Stripe API format.
func (err *AppError) StripeErrorBody() StripeErrorBody {
	// Map status code to error type
	errType := ErrorTypeAPIError
	switch {
	case err.StatusCode >= 400 && err.StatusCode < 500:
		errType = ErrorTypeInvalidRequest
	case err.StatusCode == 401 || err.StatusCode == 403:
		errType = ErrorTypeAuthError
	}

	return StripeErrorBody{
		Type:    errType,
		Code:    string(err.Code),
		Message: err.Message,
	}
}

func NewAppError(code ErrorCode, message string, statusCode int, details map[string]any, remediation *Remediation) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		Details:     details,
		Remediation: remediation,
	}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, message, 400, details, nil)
}

func NewUnauthorizedError(message string, code ...ErrorCode) *AppError {
	errCode := ErrorCodeUnauthorized
	if len(code) > 0 {
		errCode = code[0]
	}
	return NewAppError(errCode, message, 401, nil, nil)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrorCodeForbidden, message, 403, nil, nil)
}

func NewNotFoundError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeNotFound, message, 404, details, nil)
}

func NewNotFoundResource(resource, id string) *AppError {
	message := resource + " not found"
	details := map[string]any{
		"resource": resource,
	}
	if id != "" {
		message = resource + " not found: " + id
		details["id"] = id
	}
	return NewAppError(ErrorCodeNotFound, message, 404, details, nil)
}

func NewConflictError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeConflict, message, 409, details, nil)
}

func NewRateLimitError(message string) *AppError {
	return NewAppError(ErrorCodeRateLimited, message, 429, nil, nil)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, 500, nil, nil)
}

func NewValidationFailedError(message string) *AppError {
	return NewAppError(ErrorCodeValidationFailed, message, 400, nil, nil)
}

func NewRoomNotFoundError(room string) *AppError {
	return NewAppError(ErrorCodeRoomNotFound, "room not found: "+room, 404, map[string]any{"room": room}, nil)
}

func NewPresetNotFoundError(name string) *AppError {
	return NewAppError(ErrorCodePresetNotFound, "preset not found: "+name, 404, map[string]any{"name": name}, nil)
}

func NewFavouriteNotFoundError(name string) *AppError {
	return NewAppError(ErrorCodeFavouriteNotFound, "favourite not found: "+name, 404, map[string]any{"name": name}, nil)
}

func NewStationNotFoundError(name string) *AppError {
	return NewAppError(ErrorCodeStationNotFound, "station not found: "+name, 404, map[string]any{"name": name}, nil)
}

func NewAuthRequiredError(message string) *AppError {
	return NewAppError(ErrorCodeAuthRequired, message, 401, nil, nil)
}

func NewServiceUnconfiguredError(service string) *AppError {
	return NewAppError(ErrorCodeServiceUnconfigured, "service not configured: "+service, 503, map[string]any{"service": service}, nil)
}

func NewNotImplementedError(message string) *AppError {
	return NewAppError(ErrorCodeNotImplemented, message, 501, nil, nil)
}

// NewUPnPError classifies a vendor UPnP fault code as transient or
// permanent and maps it to the HTTP status the router surfaces.
// Transient faults (701 transition-not-available, 1023 on
// BecomeCoordinatorOfStandaloneGroup, some 402) may still be retried
// once by the caller before this error is returned.
func NewUPnPError(vendorCode int, description string) *AppError {
	switch vendorCode {
	case 701, 1023, 402:
		return NewAppError(ErrorCodeUPnPTransient, description, 502, map[string]any{"vendor_code": vendorCode}, nil)
	case 401, 600, 606, 714, 800:
		status := 500
		if vendorCode == 800 {
			status = 409
		}
		return NewAppError(ErrorCodeUPnPPermanent, description, status, map[string]any{"vendor_code": vendorCode}, nil)
	default:
		return NewAppError(ErrorCodeUPnPPermanent, description, 500, map[string]any{"vendor_code": vendorCode}, nil)
	}
}

func NewStereoPairProtectedError(room string) *AppError {
	return NewAppError(ErrorCodeStereoPairProtected, "cannot break stereo pair in "+room, 400,
		map[string]any{"room": room}, &Remediation{UserAction: "unbond the pair from the device's own app first"})
}

func NewLibraryNotReadyError() *AppError {
	return NewAppError(ErrorCodeLibraryNotReady, "local library index is not ready yet", 503, nil, nil)
}

// EnsureAppError converts an arbitrary error into an AppError.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewInternalError("Internal server error")
}
