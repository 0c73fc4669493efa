package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	p := &Profile{Mode: "something-else", DSN: "postgres://localhost/techbar"}
	require.NoError(t, p.Validate())

	assert.Equal(t, "dev", p.Mode)
	assert.Equal(t, "postgres", p.Driver)
	assert.Equal(t, time.Second, p.WelcomeDelay)
	assert.Equal(t, 2*time.Second, p.ReplyDelay)
	assert.Equal(t, 15*time.Minute, p.PresenceTimeout)
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	p := &Profile{Mode: "prod", Driver: "postgres"}
	assert.Error(t, p.Validate())
}

func TestValidate_SQLiteDefaultsDSN(t *testing.T) {
	p := &Profile{Mode: "prod", Driver: "sqlite"}
	require.NoError(t, p.Validate())
	assert.Equal(t, "techbar_prod.db", p.DSN)
}

func TestValidate_RejectsUnknownDriver(t *testing.T) {
	p := &Profile{Driver: "mysql", DSN: "x"}
	assert.Error(t, p.Validate())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TECHBAR_AI_API_KEY", "sk-test")
	t.Setenv("TECHBAR_AI_CHAT_MODEL", "gpt-4o")
	t.Setenv("TECHBAR_WELCOME_DELAY", "500ms")
	t.Setenv("TECHBAR_PRESENCE_TIMEOUT", "bogus")
	t.Setenv("TECHBAR_DRIVER", "sqlite")
	t.Setenv("TECHBAR_PORT", "9090")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "sk-test", p.AIAPIKey)
	assert.Equal(t, "gpt-4o", p.AIChatModel)
	assert.Equal(t, "text-embedding-3-small", p.AIEmbeddingModel)
	assert.Equal(t, "https://api.openai.com/v1", p.AIBaseURL)
	assert.Equal(t, 500*time.Millisecond, p.WelcomeDelay)
	// Unparseable durations fall back to the default.
	assert.Equal(t, 15*time.Minute, p.PresenceTimeout)
	assert.Equal(t, "sqlite", p.Driver)
	assert.Equal(t, 9090, p.Port)
	assert.True(t, p.IsAIEnabled())
}

func TestIsAIEnabled(t *testing.T) {
	assert.False(t, (&Profile{}).IsAIEnabled())
	assert.True(t, (&Profile{AIAPIKey: "sk-1"}).IsAIEnabled())
}
