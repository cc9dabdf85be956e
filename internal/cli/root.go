package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fmueller/voxnote/internal/audio"
	"github.com/fmueller/voxnote/internal/backend"
	"github.com/fmueller/voxnote/internal/backend/gemini"
	"github.com/fmueller/voxnote/internal/backend/openai"
	"github.com/fmueller/voxnote/internal/config"
	"github.com/fmueller/voxnote/internal/ledger"
	"github.com/fmueller/voxnote/internal/logging"
	"github.com/fmueller/voxnote/internal/note"
	"github.com/fmueller/voxnote/internal/platform"
	"github.com/fmueller/voxnote/internal/transcribe"
	"github.com/fmueller/voxnote/internal/vad"
	"github.com/fmueller/voxnote/internal/version"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	logFile    string
	noProgress bool
	configPath string
	envFile    string
	provider   string
	apiKey     string

	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time
	getenv func(string) string

	backendFn func(ctx context.Context) (backend.Backend, error)
	codecFn   func() transcribe.Codec
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		cfg:     config.Default(),
		envFile: config.DefaultEnvFile,
		now:     time.Now,
		getenv:  os.Getenv,
	}
	app.backendFn = app.newBackend
	app.codecFn = app.newCodec
	return newRootCmd(app)
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "voxnote",
		Short:         "Transcribe and summarize long audio recordings into notes",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd)
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindConfigFlags(cmd, app)
	bindProviderFlags(cmd, app)

	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newWatchCmd(app))
	cmd.AddCommand(newLedgerCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	cmd.PersistentFlags().StringVar(&app.logFile, "log-file", app.logFile, "Also write logs to this file")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindConfigFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.configPath, "config", app.configPath, "Config file (default <config dir>/voxnote/config.yaml)")
	cmd.PersistentFlags().StringVar(&app.envFile, "env-file", app.envFile, "dotenv file with API keys")
}

func bindProviderFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.provider, "provider", app.provider, "Transcription provider: gemini|openai")
	cmd.PersistentFlags().StringVar(&app.apiKey, "api-key", app.apiKey, "API key for the selected provider")
}

// setup loads the configuration, applies flag overrides and builds the
// logger. It runs before every subcommand.
func (a *appState) setup(cmd *cobra.Command) error {
	logger, err := logging.New(logging.Options{Verbose: a.verbose, JSON: a.jsonLogs, File: a.logFile})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.logger = logger

	configPath, err := platform.ResolveConfigPath(a.configPath)
	if err != nil {
		// Without a home directory there is simply no default config file.
		a.log().Debug("no default config location", zap.Error(err))
		configPath = ""
	}
	flags := cmd.Flags()
	cfg, err := config.Load(config.LoadOptions{
		ConfigPath:  configPath,
		Explicit:    flags.Changed("config"),
		EnvFile:     a.envFile,
		EnvExplicit: flags.Changed("env-file"),
		Getenv:      a.getenv,
	})
	if err != nil {
		return err
	}

	if p := strings.TrimSpace(a.provider); p != "" {
		cfg.Provider = strings.ToLower(p)
	}
	if k := strings.TrimSpace(a.apiKey); k != "" {
		cfg.SetAPIKey(k)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log().Debug("configuration loaded", zap.String("config", configPath), zap.String("provider", cfg.Provider))
	return nil
}

func (a *appState) newBackend(ctx context.Context) (backend.Backend, error) {
	switch a.cfg.Provider {
	case config.ProviderOpenAI:
		return openai.New(openai.Config{
			APIKey:             a.cfg.OpenAI.APIKey,
			BaseURL:            a.cfg.OpenAI.BaseURL,
			TranscriptionModel: a.cfg.OpenAI.TranscriptionModel,
			SummaryModel:       a.cfg.OpenAI.SummaryModel,
		})
	default:
		return gemini.New(ctx, gemini.Config{
			APIKey:             a.cfg.Gemini.APIKey,
			TranscriptionModel: a.cfg.Gemini.TranscriptionModel,
			SummaryModel:       a.cfg.Gemini.SummaryModel,
			Logger:             a.log(),
		})
	}
}

func (a *appState) newCodec() transcribe.Codec {
	return audio.NewFFmpeg(a.log())
}

// pipeline is everything one command needs to process audio files.
type pipeline struct {
	backend      backend.Backend
	ledger       *ledger.Ledger
	orchestrator *transcribe.Orchestrator
}

func (a *appState) openLedger(path string) (*ledger.Ledger, error) {
	led, err := ledger.Open(path, ledger.Options{Now: a.now, Logger: a.log()})
	if err != nil {
		return nil, err
	}
	a.log().Debug("using ledger", zap.String("path", led.Path()))
	return led, nil
}

// newPipeline opens the ledger at ledgerPath and wires the orchestrator.
// sinkFor receives the backend so notes can name it; it may return nil.
func (a *appState) newPipeline(ctx context.Context, ledgerPath string, sinkFor func(backend.Backend) transcribe.Sink) (*pipeline, error) {
	be, err := a.backendFn(ctx)
	if err != nil {
		return nil, err
	}
	led, err := a.openLedger(ledgerPath)
	if err != nil {
		return nil, err
	}

	var sink transcribe.Sink
	if sinkFor != nil {
		sink = sinkFor(be)
	}
	orch, err := transcribe.New(transcribe.Config{
		Backend:      be,
		Codec:        a.codecFn(),
		Detector:     vad.NewEnergy(a.cfg.VADOptions()),
		Ledger:       led,
		Sink:         sink,
		Policy:       a.cfg.RetryPolicy(),
		Segment:      a.cfg.SegmentOptions(),
		VADThreshold: a.cfg.VAD.MinLength.Std(),
		Logger:       a.log(),
		Now:          a.now,
	})
	if err != nil {
		return nil, err
	}
	return &pipeline{backend: be, ledger: led, orchestrator: orch}, nil
}

func (a *appState) renderer(vault string, be backend.Backend) note.Renderer {
	return note.Renderer{
		Vault:             vault,
		TranscriptionTags: a.cfg.Notes.TranscriptionTags,
		SummaryTags:       a.cfg.Notes.SummaryTags,
		Generator:         be.Name(),
	}
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
