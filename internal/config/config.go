package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/council-relay/internal/embedding/openai"
	"github.com/davidbz/council-relay/internal/observability"
)

// Config represents the relay configuration.
type Config struct {
	Server  ServerConfig
	CORS    CORSConfig
	Council CouncilConfig
	Memory  MemoryConfig
	Echo    EchoConfig
	OpenAI  openai.Config
	Log     observability.Options
}

// ServerConfig contains HTTP server settings.
// WriteTimeout defaults to 0 because the turn feed is a long-lived SSE response.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"0"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-Trace-Id"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// CouncilConfig contains settings for talking to the council backend.
type CouncilConfig struct {
	BaseURL            string `env:"COUNCIL_BASE_URL"            envDefault:"http://localhost:8090"`
	Path               string `env:"COUNCIL_PATH"                envDefault:"/api/council"`
	StreamLimit        int    `env:"COUNCIL_STREAM_LIMIT"        envDefault:"3"`
	RetryLimit         int    `env:"COUNCIL_RETRY_LIMIT"         envDefault:"4"`
	RequestTimeout     int    `env:"COUNCIL_REQUEST_TIMEOUT"     envDefault:"60"`
	StreamIdleTimeout  int    `env:"COUNCIL_STREAM_IDLE_TIMEOUT" envDefault:"60"`
	ForwardPauseMillis int    `env:"COUNCIL_FORWARD_PAUSE_MS"    envDefault:"180"`
	DefaultPanel       string `env:"COUNCIL_DEFAULT_PANEL"       envDefault:"personal"`

	// Members seeds the forward targets, one "id|name|handle|panel|specialty" entry per item.
	Members []string `env:"COUNCIL_MEMBERS" envSeparator:";"`
}

// Endpoint returns the non-streaming council endpoint.
func (c CouncilConfig) Endpoint() string {
	return c.BaseURL + c.Path
}

// StreamEndpoint returns the sibling streaming endpoint.
func (c CouncilConfig) StreamEndpoint() string {
	return c.Endpoint() + "/stream"
}

// RequestTimeoutDuration returns the per-request timeout.
func (c CouncilConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// IdleTimeoutDuration returns how long a stream may stay silent before it is aborted.
func (c CouncilConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(c.StreamIdleTimeout) * time.Second
}

// ForwardPause returns the pause between sequential forwards.
func (c CouncilConfig) ForwardPause() time.Duration {
	return time.Duration(c.ForwardPauseMillis) * time.Millisecond
}

// MemoryConfig selects and configures the long-term context store.
type MemoryConfig struct {
	Backend       string  `env:"MEMORY_BACKEND"              envDefault:"relay"`
	RAGPath       string  `env:"MEMORY_RAG_PATH"             envDefault:"/api/rag"`
	SearchLimit   int     `env:"MEMORY_SEARCH_LIMIT"         envDefault:"5"`
	RedisAddr     string  `env:"REDIS_ADDR"                  envDefault:"localhost:6379"`
	RedisPassword string  `env:"REDIS_PASSWORD"`
	RedisDB       int     `env:"REDIS_DB"                    envDefault:"0"`
	IndexName     string  `env:"MEMORY_INDEX_NAME"           envDefault:"idx:council_memory"`
	TTLHours      int     `env:"MEMORY_TTL_HOURS"            envDefault:"720"`
	Threshold     float64 `env:"MEMORY_SIMILARITY_THRESHOLD" envDefault:"0.75"`
}

// TTL returns the retention of stored exchanges.
func (m MemoryConfig) TTL() time.Duration {
	return time.Duration(m.TTLHours) * time.Hour
}

// EchoConfig configures the development echo council.
type EchoConfig struct {
	Port              int  `env:"ECHO_PORT"               envDefault:"8090"`
	StreamUnsupported bool `env:"ECHO_STREAM_UNSUPPORTED" envDefault:"false"`
	ChunkDelayMillis  int  `env:"ECHO_CHUNK_DELAY_MS"     envDefault:"10"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*CouncilConfig
	*MemoryConfig
	*EchoConfig
	*openai.Config
	*observability.Options
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Council,
		&cfg.Memory,
		&cfg.Echo,
		&cfg.OpenAI,
		&cfg.Log,
	}
}
