package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	cfg, err := Load(LoadOptions{Getenv: envMap(nil)})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, ProviderGemini, cfg.Provider)
	require.True(t, cfg.Summary)
	require.True(t, cfg.VAD.Enabled)
	require.Equal(t, 600*time.Second, cfg.VAD.MinLength.Std())

	p := cfg.RetryPolicy()
	require.Equal(t, 5, p.MaxRetries)
	require.Equal(t, 10*time.Second, p.BaseDelay)
	require.Equal(t, 120*time.Second, p.MaxDelay)
	require.Equal(t, 600*time.Second, p.Timeout)

	seg := cfg.SegmentOptions()
	require.Equal(t, 600*time.Second, seg.MaxSegment)
	require.Equal(t, 500*time.Millisecond, cfg.VADOptions().MinSilence)
}

func TestLoadPrecedence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
provider: openai
summary: false
gemini:
  api_key: from-yaml
openai:
  api_key: openai-from-yaml
  summary_model: gpt-4.1-mini
retry:
  max_retries: 2
  base_delay: 3s
  max_delay: 1m
  timeout: 5m
segment:
  max_length: 5m
  search_window: 90s
  min_tail: 5s
watch:
  settle_delay: 500ms
notes:
  summary_tags: [meeting, auto]
`), 0o644))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("GEMINI_API_KEY=from-dotenv\nVOXNOTE_PROVIDER=gemini\n"), 0o644))

	cfg, err := Load(LoadOptions{
		ConfigPath: configPath,
		EnvFile:    envPath,
		Getenv:     envMap(map[string]string{EnvProvider: "OpenAI"}),
	})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, ProviderOpenAI, cfg.Provider)
	require.Equal(t, "from-dotenv", cfg.Gemini.APIKey)
	require.Equal(t, "openai-from-yaml", cfg.APIKey())
	require.Equal(t, "gpt-4.1-mini", cfg.OpenAI.SummaryModel)
	require.False(t, cfg.Summary)
	require.True(t, cfg.VAD.Enabled)
	require.Equal(t, []string{"meeting", "auto"}, cfg.Notes.SummaryTags)
	require.Equal(t, 500*time.Millisecond, cfg.Watch.SettleDelay.Std())

	p := cfg.RetryPolicy()
	require.Equal(t, 2, p.MaxRetries)
	require.Equal(t, 3*time.Second, p.BaseDelay)
	require.Equal(t, time.Minute, p.MaxDelay)
	require.Equal(t, 5*time.Minute, p.Timeout)

	seg := cfg.SegmentOptions()
	require.Equal(t, 5*time.Minute, seg.MaxSegment)
	require.Equal(t, 90*time.Second, seg.SearchWindow)
	require.Equal(t, 5*time.Second, seg.MinTail)
}

func TestLoadRealEnvBeatsDotenv(t *testing.T) {
	t.Parallel()

	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("GEMINI_API_KEY=from-dotenv\n"), 0o644))

	cfg, err := Load(LoadOptions{EnvFile: envPath, Getenv: envMap(map[string]string{EnvGeminiKey: "from-env"})})
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.APIKey())
}

func TestLoadMissingFiles(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope.yaml")

	_, err := Load(LoadOptions{ConfigPath: missing, EnvFile: missing + ".env", Getenv: envMap(nil)})
	require.NoError(t, err)

	_, err = Load(LoadOptions{ConfigPath: missing, Explicit: true, Getenv: envMap(nil)})
	require.Error(t, err)

	_, err = Load(LoadOptions{EnvFile: missing + ".env", EnvExplicit: true, Getenv: envMap(nil)})
	require.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  base_delay: soon\n"), 0o644))

	_, err := Load(LoadOptions{ConfigPath: path, Getenv: envMap(nil)})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"provider", func(c *Config) { c.Provider = "whisper.cpp" }},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }},
		{"base above max", func(c *Config) { c.Retry.BaseDelay = Duration(time.Hour) }},
		{"threshold", func(c *Config) { c.VAD.Threshold = 1.5 }},
		{"segment length", func(c *Config) { c.Segment.MaxLength = 0 }},
		{"tail too long", func(c *Config) { c.Segment.MinTail = c.Segment.MaxLength }},
		{"zero tail", func(c *Config) { c.Segment.MinTail = 0 }},
		{"zero window", func(c *Config) { c.Segment.SearchWindow = 0 }},
		{"settle", func(c *Config) { c.Watch.SettleDelay = -1 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tc.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestSetAPIKeyFollowsProvider(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.SetAPIKey("g")
	require.Equal(t, "g", cfg.Gemini.APIKey)

	cfg.Provider = ProviderOpenAI
	cfg.SetAPIKey("o")
	require.Equal(t, "o", cfg.OpenAI.APIKey)
	require.Equal(t, "o", cfg.APIKey())
}

func TestRedactedMarshal(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Gemini.APIKey = "AIzaSyExampleKey1234"
	data, err := cfg.Redacted().Marshal()
	require.NoError(t, err)
	require.NotContains(t, string(data), "AIzaSyExampleKey1234")
	require.Contains(t, string(data), "AIza...1234")

	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	require.Equal(t, cfg.Retry, back.Retry)
	require.Equal(t, cfg.Segment, back.Segment)
}

func TestRetriesCanBeDisabled(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Retry.MaxRetries = 0
	cfg.Retry.BaseDelay = 0
	require.NoError(t, cfg.Validate())

	p := cfg.RetryPolicy()
	require.Zero(t, p.MaxRetries)
	require.Zero(t, p.BaseDelay)
	require.Equal(t, cfg.Retry.Timeout.Std(), p.Timeout)
}
