// Package config loads voxnote settings. Later sources override earlier
// ones: built-in defaults, the YAML config file, a .env file, the process
// environment. Command-line flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/fmueller/voxnote/internal/retry"
	"github.com/fmueller/voxnote/internal/segment"
	"github.com/fmueller/voxnote/internal/transcribe"
	"github.com/fmueller/voxnote/internal/vad"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	EnvGeminiKey = "GEMINI_API_KEY"
	EnvOpenAIKey = "OPENAI_API_KEY"
	EnvProvider  = "VOXNOTE_PROVIDER"

	DefaultEnvFile     = ".env"
	DefaultSettleDelay = 2 * time.Second
)

var ErrInvalid = errors.New("invalid configuration")

// Duration reads Go duration strings such as "90s" or "10m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(data []byte) error {
	var s string
	if err := yaml.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Provider string `yaml:"provider"`
	Gemini   Gemini `yaml:"gemini"`
	OpenAI   OpenAI `yaml:"openai"`

	Summary bool   `yaml:"summary"`
	Context string `yaml:"summary_context,omitempty"`
	// LedgerPath overrides the ledger location for one-shot transcription.
	LedgerPath string `yaml:"ledger_path,omitempty"`

	VAD     VAD     `yaml:"vad"`
	Segment Segment `yaml:"segment"`
	Retry   Retry   `yaml:"retry"`
	Watch   Watch   `yaml:"watch"`
	Notes   Notes   `yaml:"notes"`
}

type Gemini struct {
	APIKey             string `yaml:"api_key,omitempty"`
	TranscriptionModel string `yaml:"transcription_model,omitempty"`
	SummaryModel       string `yaml:"summary_model,omitempty"`
}

type OpenAI struct {
	APIKey             string `yaml:"api_key,omitempty"`
	BaseURL            string `yaml:"base_url,omitempty"`
	TranscriptionModel string `yaml:"transcription_model,omitempty"`
	SummaryModel       string `yaml:"summary_model,omitempty"`
}

type VAD struct {
	Enabled    bool     `yaml:"enabled"`
	MinLength  Duration `yaml:"min_length"`
	Threshold  float64  `yaml:"threshold"`
	MinSilence Duration `yaml:"min_silence"`
	SpeechPad  Duration `yaml:"speech_pad"`
}

type Segment struct {
	MaxLength    Duration `yaml:"max_length"`
	SearchWindow Duration `yaml:"search_window"`
	MinTail      Duration `yaml:"min_tail"`
}

type Retry struct {
	MaxRetries int      `yaml:"max_retries"`
	BaseDelay  Duration `yaml:"base_delay"`
	MaxDelay   Duration `yaml:"max_delay"`
	Timeout    Duration `yaml:"timeout"`
}

type Watch struct {
	SettleDelay  Duration `yaml:"settle_delay"`
	ScanExisting bool     `yaml:"scan_existing"`
	Cleanup      bool     `yaml:"cleanup"`
}

type Notes struct {
	TranscriptionTags []string `yaml:"transcription_tags,omitempty"`
	SummaryTags       []string `yaml:"summary_tags,omitempty"`
}

func Default() Config {
	seg := segment.DefaultOptions()
	v := vad.DefaultOptions()
	p := retry.DefaultPolicy()
	return Config{
		Provider: ProviderGemini,
		Summary:  true,
		VAD: VAD{
			Enabled:    true,
			MinLength:  Duration(transcribe.DefaultVADThreshold),
			Threshold:  v.Threshold,
			MinSilence: Duration(v.MinSilence),
			SpeechPad:  Duration(v.SpeechPad),
		},
		Segment: Segment{
			MaxLength:    Duration(seg.MaxSegment),
			SearchWindow: Duration(seg.SearchWindow),
			MinTail:      Duration(seg.MinTail),
		},
		Retry: Retry{
			MaxRetries: p.MaxRetries,
			BaseDelay:  Duration(p.BaseDelay),
			MaxDelay:   Duration(p.MaxDelay),
			Timeout:    Duration(p.Timeout),
		},
		Watch: Watch{SettleDelay: Duration(DefaultSettleDelay)},
	}
}

type LoadOptions struct {
	// ConfigPath is the YAML file to read. A missing file is an error only
	// when Explicit is set.
	ConfigPath string
	Explicit   bool
	// EnvFile is a dotenv file; a missing file is ignored unless
	// EnvExplicit is set.
	EnvFile     string
	EnvExplicit bool
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

func Load(opts LoadOptions) (Config, error) {
	cfg := Default()
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", opts.ConfigPath, err)
			}
		case errors.Is(err, os.ErrNotExist) && !opts.Explicit:
		default:
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	dotenv := map[string]string{}
	if opts.EnvFile != "" {
		vals, err := godotenv.Read(opts.EnvFile)
		switch {
		case err == nil:
			dotenv = vals
		case errors.Is(err, os.ErrNotExist) && !opts.EnvExplicit:
		default:
			return Config{}, fmt.Errorf("read env file: %w", err)
		}
	}

	// Real environment variables win over the dotenv file.
	lookup := func(key string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(dotenv[key])
	}
	if v := lookup(EnvGeminiKey); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := lookup(EnvOpenAIKey); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := lookup(EnvProvider); v != "" {
		cfg.Provider = v
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	return cfg, nil
}

// APIKey returns the key of the selected provider.
func (c Config) APIKey() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAI.APIKey
	}
	return c.Gemini.APIKey
}

// SetAPIKey stores key for the selected provider.
func (c *Config) SetAPIKey(key string) {
	if c.Provider == ProviderOpenAI {
		c.OpenAI.APIKey = key
		return
	}
	c.Gemini.APIKey = key
}

func (c Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown provider %q (use %s or %s)", ErrInvalid, c.Provider, ProviderGemini, ProviderOpenAI))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: retry.max_retries must not be negative", ErrInvalid))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 || c.Retry.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: retry durations must not be negative", ErrInvalid))
	}
	if c.Retry.MaxDelay > 0 && c.Retry.BaseDelay > c.Retry.MaxDelay {
		errs = append(errs, fmt.Errorf("%w: retry.base_delay exceeds retry.max_delay", ErrInvalid))
	}
	if c.VAD.Threshold <= 0 || c.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("%w: vad.threshold must be in (0, 1]", ErrInvalid))
	}
	if c.VAD.MinLength < 0 {
		errs = append(errs, fmt.Errorf("%w: vad.min_length must not be negative", ErrInvalid))
	}
	if c.Segment.MaxLength <= 0 {
		errs = append(errs, fmt.Errorf("%w: segment.max_length must be positive", ErrInvalid))
	}
	if c.Segment.SearchWindow <= 0 || c.Segment.MinTail <= 0 {
		errs = append(errs, fmt.Errorf("%w: segment.search_window and segment.min_tail must be positive", ErrInvalid))
	}
	if c.Segment.MinTail >= c.Segment.MaxLength && c.Segment.MaxLength > 0 {
		errs = append(errs, fmt.Errorf("%w: segment.min_tail must be shorter than segment.max_length", ErrInvalid))
	}
	if c.Watch.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("%w: watch.settle_delay must not be negative", ErrInvalid))
	}
	return errors.Join(errs...)
}

func (c Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxRetries = c.Retry.MaxRetries
	p.BaseDelay = c.Retry.BaseDelay.Std()
	p.MaxDelay = c.Retry.MaxDelay.Std()
	p.Timeout = c.Retry.Timeout.Std()
	return p
}

func (c Config) SegmentOptions() segment.Options {
	return segment.Options{
		MaxSegment:   c.Segment.MaxLength.Std(),
		SearchWindow: c.Segment.SearchWindow.Std(),
		MinTail:      c.Segment.MinTail.Std(),
	}
}

func (c Config) VADOptions() vad.Options {
	o := vad.DefaultOptions()
	o.Threshold = c.VAD.Threshold
	o.MinSilence = c.VAD.MinSilence.Std()
	o.SpeechPad = c.VAD.SpeechPad.Std()
	return o
}

// Redacted returns a copy with API keys masked.
func (c Config) Redacted() Config {
	c.Gemini.APIKey = mask(c.Gemini.APIKey)
	c.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	return c
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
