package httpx

const (
	// SessionCookieName carries the session id between requests.
	SessionCookieName = "sid"

	// RootKeyHeader grants root privileges when it matches the configured root key.
	RootKeyHeader = "X-Root-Key"

	// DefaultMaxBodyBytes caps request bodies when no limit is configured.
	DefaultMaxBodyBytes int64 = 1 << 20
)

// Query parameters understood by the collection. Any other parameter filters on a record property.
const (
	paramID       = "id"
	paramUsername = "username"
	paramFields   = "$fields"
	paramLimit    = "$limit"
	paramSkip     = "$skip"
	paramSort     = "$sort"
)
