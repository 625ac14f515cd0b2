package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Backend error kinds, carried by [BackendError]
	ErrNetwork        = fmt.Errorf("network error")
	ErrAuthentication = fmt.Errorf("authentication failed")
	ErrUnauthorized   = fmt.Errorf("unauthorized")
	ErrValidation     = fmt.Errorf("validation failed")
	ErrOTP            = fmt.Errorf("otp verification failed")

	// Session errors
	ErrNotAuthenticated  = fmt.Errorf("not authenticated")
	ErrRefreshFailed     = fmt.Errorf("token refresh failed")
	ErrNoCredential      = fmt.Errorf("no stored credential")
	ErrSessionSuperseded = fmt.Errorf("session changed while the operation was in flight")
	ErrSessionClosed     = fmt.Errorf("session manager closed")

	// API errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// NetworkFailureMessage is shown to users instead of transport details.
const NetworkFailureMessage = "unable to reach the server, please try again"

// BackendError is a failure reported by (or while reaching) the Auth Backend.
//
// Error returns the backend message verbatim so forms can show it as-is.
// [errors.Is] matches both Kind and the wrapped cause.
type BackendError struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return "backend error"
}

func (e *BackendError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewNetworkError wraps a transport failure with the generic user-facing message.
func NewNetworkError(err error) *BackendError {
	return &BackendError{Kind: ErrNetwork, Message: NetworkFailureMessage, Err: err}
}

// NewValidationError builds a [BackendError] of kind [ErrValidation] for locally rejected input.
func NewValidationError(format string, args ...any) *BackendError {
	return &BackendError{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}
