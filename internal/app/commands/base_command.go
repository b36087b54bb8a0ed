package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cv-console/internal/config"
)

// CommandContext содержит общий контекст для всех команд
type CommandContext struct {
	Logger *zap.Logger
	Config *config.Config
	Out    io.Writer
}

// NewCommandContext создает новый контекст команды.
// Порядок: значения по умолчанию, файл, окружение, флаги.
func NewCommandContext(c *cli.Context) (*CommandContext, error) {
	cfg, loadErr := config.LoadConfig(c.String("config"))
	cfg.ApplyEnv()

	if c.IsSet("api-url") {
		cfg.API.BaseURL = c.String("api-url")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}

	logger, err := createLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if loadErr != nil {
		if !errors.Is(loadErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config: %w", loadErr)
		}
		logger.Warn("Config file not found, using defaults",
			zap.String("path", c.String("config")))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}

	return &CommandContext{
		Logger: logger,
		Config: cfg,
		Out:    out,
	}, nil
}

// createLogger создает логгер
func createLogger(level, format string) (*zap.Logger, error) {
	var logLevel zapcore.Level
	switch level {
	case "debug":
		logLevel = zap.DebugLevel
	case "warn":
		logLevel = zap.WarnLevel
	case "error":
		logLevel = zap.ErrorLevel
	default:
		logLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	return cfg.Build()
}

func syncLogger(logger *zap.Logger) {
	_ = logger.Sync()
}
