package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_CHANNEL_ID", "C0123")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.RankerProvider)
	assert.Equal(t, "gpt-4o", cfg.OpenAIModel)
	assert.Equal(t, 100, cfg.MaxArticles)
	assert.Equal(t, 60, cfg.LookbackDays)
	assert.Equal(t, 30*time.Second, cfg.PostDelay)
	assert.Equal(t, "Articles", cfg.WorksheetName)
	assert.Equal(t, []string{"thumbsup", "no_entry", "eyes"}, cfg.Reactions)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_CHANNEL_ID", "C0123")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MAX_ARTICLES", "25")
	t.Setenv("POST_DELAY", "5s")
	t.Setenv("SLACK_ERROR_USER_IDS", "U1, U2,\nU3")
	t.Setenv("POST_REACTIONS", "rocket,thinking_face")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.MaxArticles)
	assert.Equal(t, 5*time.Second, cfg.PostDelay)
	assert.Equal(t, []string{"U1", "U2", "U3"}, cfg.ErrorRecipients)
	assert.Equal(t, []string{"rocket", "thinking_face"}, cfg.Reactions)
}

func TestValidateMissingSlackToken(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("SLACK_CHANNEL_ID", "C0123")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLACK_BOT_TOKEN")
}

func TestValidateProviderKey(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_CHANNEL_ID", "C0123")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "g-test")
	t.Setenv("RANKER_PROVIDER", "gemini")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.RankerProvider)

	t.Setenv("RANKER_PROVIDER", "other")
	_, err = Load()
	require.Error(t, err)
}
