package openai

import "time"

// Config holds configuration for the OpenAI embedding generator used by the
// redis context store.
type Config struct {
	APIKey     string `env:"OPENAI_API_KEY"`
	BaseURL    string `env:"OPENAI_BASE_URL"`
	Model      string `env:"MEMORY_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	Timeout    int    `env:"OPENAI_TIMEOUT"         envDefault:"30"`
	MaxRetries int    `env:"OPENAI_MAX_RETRIES"     envDefault:"2"`
	// MaxInputRunes bounds the text sent for embedding; longer exchanges are truncated.
	MaxInputRunes int `env:"MEMORY_EMBEDDING_MAX_RUNES" envDefault:"8000"`
}

// TimeoutDuration returns the per-request timeout.
func (c Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
