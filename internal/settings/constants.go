package settings

import "time"

// Defaults applied when the config file omits or invalidates a value.
const (
	// DefaultPort is the fallback HTTP listen port.
	DefaultPort = 8320
	// DefaultConfigPath is the config file used when no path is given.
	DefaultConfigPath = "./config.yaml"
	// DefaultSessionTTL bounds how long verification state survives without activity.
	DefaultSessionTTL = 12 * time.Hour
	// DefaultSessionRedisPrefix is the fallback Redis key prefix for verification state.
	DefaultSessionRedisPrefix = "qa:sess"
	// DefaultVerifyLimit is the fallback number of verification submissions per window.
	DefaultVerifyLimit = 5
	// DefaultVerifyWindow is the fallback verification throttling window.
	DefaultVerifyWindow = time.Minute
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix for throttling.
	DefaultRateLimitRedisPrefix = "qa:rl"
	// DefaultJWTExpiry is used when the config omits or invalidates JWT expiry.
	DefaultJWTExpiry = 24 * time.Hour
	// RedisBreakerDuration is how long a failing Redis backend is bypassed.
	RedisBreakerDuration = 30 * time.Second
)
