package constants

const (
	// AuthHeaderName is the name of the Authorization header
	AuthHeaderName = "Authorization"

	// AuthHeaderPrefix is the prefix for the Authorization header value
	AuthHeaderPrefix = "Bearer "
)

// Backend endpoints, relative to api.base_url
const (
	PathGoogleCallback = "/auth/google/callback"
	PathRefresh        = "/auth/refresh"
	PathMe             = "/auth/me"
	PathLogout         = "/auth/logout"
)

// Keys in durable storage
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserProfile  = "user_profile"
)

// KeyPendingAuthorization is the single ephemeral entry written before a page redirect.
const KeyPendingAuthorization = "pkce_pending"

// Query parameters on the provider redirect
const (
	ParamCode             = "code"
	ParamState            = "state"
	ParamError            = "error"
	ParamErrorDescription = "error_description"
)

// NativeRedirectPath is appended to the custom scheme and the loopback origin.
const NativeRedirectPath = "/oauth/callback"

// DefaultScopes requested from Google
var DefaultScopes = []string{"profile", "email"}

// Telemetry events
const (
	EventLoginAttempt = "login_attempt"
	EventLoginSuccess = "login_success"
	EventLoginFailure = "login_failure"
	EventLogout       = "logout"
)
