package internal

import "time"

// Config is the client configuration, loaded from the environment.
type Config struct {
	UserID     string `env:"USER_ID,required=true"`
	UserName   string `env:"USER_NAME,required=true"`
	UserAvatar string `env:"USER_AVATAR"`

	RelayURL  string `env:"RELAY_URL,required=true"`
	AuthToken string `env:"AUTH_TOKEN,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	RingTimeout       time.Duration `env:"RING_TIMEOUT"`
	PresenceInterval  time.Duration `env:"PRESENCE_INTERVAL,required=true"`
	TelemetryInterval time.Duration `env:"TELEMETRY_INTERVAL,required=true"`

	DebugPort int `env:"DEBUG_PORT"`
}

// RelayConfig is the relay server configuration.
type RelayConfig struct {
	Host      string `env:"HOST,required=true"`
	Port      int    `env:"PORT,required=true"`
	JWTSecret string `env:"JWT_SECRET,required=true"`
	LogLevel  string `env:"LOG_LEVEL,required=true"`

	// Empty disables cross-instance fanout.
	RedisAddr string `env:"REDIS_ADDR"`
}
