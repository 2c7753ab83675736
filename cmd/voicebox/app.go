package main

import (
	"fmt"
	"os"

	"github.com/book-expert/logger"

	"github.com/book-expert/voicebox/internal/assets"
	"github.com/book-expert/voicebox/internal/config"
	"github.com/book-expert/voicebox/internal/registry"
	"github.com/book-expert/voicebox/internal/synthesis"
	"github.com/book-expert/voicebox/internal/tts"
	"github.com/book-expert/voicebox/internal/tts/whisper"
	"github.com/book-expert/voicebox/internal/voices"
)

const (
	bootstrapLogFile = "voicebox-bootstrap.log"
	logFile          = "voicebox.log"
)

// app is the object graph shared by all commands, built once per invocation.
type app struct {
	cfg          *config.Config
	log          *logger.Logger
	engine       *tts.Engine
	manager      *voices.Manager
	orchestrator *synthesis.Orchestrator
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

// newApp loads the configuration with a bootstrap logger, then opens the final logger
// and wires the services.
func newApp(opts *rootOptions) (*app, error) {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	cfg, err := loadConfig(opts.configPath, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, logFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, err
	}

	transcriber := whisper.NewClient(whisper.Config{
		BaseURL: cfg.Transcription.BaseURL,
		APIKey:  cfg.Transcription.APIKey,
		Model:   cfg.Transcription.Model,
	})
	engine := tts.NewEngine(tts.NewHTTPClient(cfg.Model.ServiceURL, cfg.ModelTimeout()), transcriber, finalLog)

	manager := voices.NewManager(
		registry.New(cfg.RegistryPath()),
		assets.New(cfg.Paths.BaseDir, cfg.VoicesPath()),
		engine,
		cfg.Transcription.Language,
		finalLog,
	)

	return &app{
		cfg:          cfg,
		log:          finalLog,
		engine:       engine,
		manager:      manager,
		orchestrator: synthesis.NewOrchestrator(manager, engine, cfg.Model.Language, finalLog),
	}, nil
}

func loadConfig(path string, bootstrapLog *logger.Logger) (*config.Config, error) {
	if path != "" {
		bootstrapLog.Info("Loading configuration from %s", path)

		return config.LoadFile(path)
	}

	return config.Load(bootstrapLog)
}

// checkRegistry fails on a corrupt registry and warns about voices whose clip is gone.
func (a *app) checkRegistry() error {
	dangling, err := a.manager.CheckIntegrity()
	if err != nil {
		return fmt.Errorf("voice registry check failed: %w", err)
	}

	if len(dangling) > 0 {
		a.log.Warn("%d voice(s) reference missing clips: %v", len(dangling), dangling)
	}

	return nil
}

func (a *app) close() {
	closeErr := a.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}
