package profile

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for the server
	Addr string
	// Port is the binding port for the server
	Port int
	// Driver is the database driver (postgres or sqlite)
	Driver string
	// DSN points to where techbar stores its data
	DSN string
	// Version is the current version of the server
	Version string

	// AI configuration
	AIBaseURL        string // TECHBAR_AI_BASE_URL (default: https://api.openai.com/v1)
	AIAPIKey         string // TECHBAR_AI_API_KEY
	AIEmbeddingModel string // TECHBAR_AI_EMBEDDING_MODEL (default: text-embedding-3-small)
	AIChatModel      string // TECHBAR_AI_CHAT_MODEL (default: gpt-4o-mini)

	// Chat pacing. Presentation-ordering knobs, not correctness requirements.
	WelcomeDelay time.Duration // TECHBAR_WELCOME_DELAY (default: 1s)
	ReplyDelay   time.Duration // TECHBAR_REPLY_DELAY (default: 2s)

	// PresenceTimeout is how long a session counts as present without activity.
	PresenceTimeout time.Duration // TECHBAR_PRESENCE_TIMEOUT (default: 15m)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an AI API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// FromEnv loads configuration from TECHBAR_* environment variables.
func (p *Profile) FromEnv() {
	p.AIBaseURL = getEnvOrDefault("TECHBAR_AI_BASE_URL", "https://api.openai.com/v1")
	p.AIAPIKey = os.Getenv("TECHBAR_AI_API_KEY")
	p.AIEmbeddingModel = getEnvOrDefault("TECHBAR_AI_EMBEDDING_MODEL", "text-embedding-3-small")
	p.AIChatModel = getEnvOrDefault("TECHBAR_AI_CHAT_MODEL", "gpt-4o-mini")

	p.WelcomeDelay = getDurationEnv("TECHBAR_WELCOME_DELAY", time.Second)
	p.ReplyDelay = getDurationEnv("TECHBAR_REPLY_DELAY", 2*time.Second)
	p.PresenceTimeout = getDurationEnv("TECHBAR_PRESENCE_TIMEOUT", 15*time.Minute)

	if dsn := os.Getenv("TECHBAR_DSN"); dsn != "" {
		p.DSN = dsn
	}
	if driver := os.Getenv("TECHBAR_DRIVER"); driver != "" {
		p.Driver = driver
	}
	if port := os.Getenv("TECHBAR_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			p.Port = n
		}
	}
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Driver == "" {
		p.Driver = "postgres"
	}
	if p.Driver != "postgres" && p.Driver != "sqlite" {
		return errors.Errorf("unsupported driver %q: only 'postgres' and 'sqlite' are supported", p.Driver)
	}

	if p.DSN == "" {
		if p.Driver == "sqlite" {
			p.DSN = "techbar_" + p.Mode + ".db"
		} else {
			return errors.New("DSN is required for the postgres driver")
		}
	}

	if p.WelcomeDelay == 0 {
		p.WelcomeDelay = time.Second
	}
	if p.ReplyDelay == 0 {
		p.ReplyDelay = 2 * time.Second
	}
	if p.PresenceTimeout == 0 {
		p.PresenceTimeout = 15 * time.Minute
	}

	return nil
}
