package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "https://gandalf.lakera.ai/baseline", cfg.Gandalf.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Gandalf.WaitTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Gandalf.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Gandalf.AnswerGrace)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 5*time.Second, cfg.Browser.SettleTimeout)
	assert.Equal(t, 10, cfg.Agent.MaxRounds)
	assert.Equal(t, 20, cfg.Agent.HistoryLimit)
	assert.Equal(t, "gandalf-cli", cfg.Logger.ServiceName)

	require.NoError(t, cfg.Validate())
}

func TestResolveUserdataPaths(t *testing.T) {
	t.Run("defaults derive from dir", func(t *testing.T) {
		cfg := Config{Userdata: UserdataConfig{Dir: "state"}}
		cfg.ResolveUserdataPaths()

		assert.Equal(t, filepath.Join("state", "cookies.json"), cfg.Userdata.CookieFile)
		assert.Equal(t, filepath.Join("state", "lakera-storage.json"), cfg.Userdata.StorageFile)
		assert.Equal(t, filepath.Join("state", "latest-level.url"), cfg.Userdata.LatestURLFile)
		assert.Equal(t, filepath.Join("state", "interactions.jsonl"), cfg.Userdata.InteractionsLog)
		assert.Equal(t, filepath.Join("state", "transcripts"), cfg.Userdata.TranscriptDir)
	})

	t.Run("explicit paths win", func(t *testing.T) {
		cfg := Config{Userdata: UserdataConfig{Dir: "state", CookieFile: "/tmp/c.json"}}
		cfg.ResolveUserdataPaths()

		assert.Equal(t, "/tmp/c.json", cfg.Userdata.CookieFile)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Gandalf.BaseURL = "" },
			wantErr: "gandalf.base_url",
		},
		{
			name:    "non-positive wait timeout",
			mutate:  func(c *Config) { c.Gandalf.WaitTimeout = 0 },
			wantErr: "gandalf.wait_timeout",
		},
		{
			name:    "non-positive poll interval",
			mutate:  func(c *Config) { c.Gandalf.PollInterval = -time.Second },
			wantErr: "gandalf.poll_interval",
		},
		{
			name:    "non-positive max rounds",
			mutate:  func(c *Config) { c.Agent.MaxRounds = 0 },
			wantErr: "agent.max_rounds",
		},
		{
			name:    "negative history limit",
			mutate:  func(c *Config) { c.Agent.HistoryLimit = -1 },
			wantErr: "agent.history_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewConfigFromViper(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")

	v := viper.New()
	SetDefaults(v)
	v.Set("gandalf.base_url", "https://gandalf.lakera.ai/adventure-1")
	v.Set("agent.max_rounds", 3)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "https://gandalf.lakera.ai/adventure-1", cfg.Gandalf.BaseURL)
	assert.Equal(t, 3, cfg.Agent.MaxRounds)
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
}
