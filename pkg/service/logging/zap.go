package logging

import (
	"errors"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/01fortes/goscope/pkg/container"
	"github.com/01fortes/goscope/pkg/proxy"
)

// ZapConnector is the connector type id of zap backed clients
const ZapConnector = "log/zap"

type zapOptions struct {
	Level       string   `param:"level"`
	Encoding    string   `param:"encoding"`
	OutputPaths []string `param:"output-paths"`
	Cache       bool     `param:"cache"`
}

type zapConnector struct {
	proxy.ConnectorBase
	opts zapOptions
}

// NewZapConnector is the factory of zap connectors. Params: level,
// encoding (json or console), output-paths (comma separated), cache.
func NewZapConnector(ctx proxy.ConnectorContext) (proxy.Connector, error) {
	opts := zapOptions{
		Level:       "info",
		Encoding:    "json",
		OutputPaths: []string{"stdout"},
		Cache:       true,
	}
	if err := ctx.Params.Bind(&opts); err != nil {
		return nil, err
	}

	return &zapConnector{
		ConnectorBase: proxy.ConnectorBase{Client: "zap", Service: ServiceType, Cache: opts.Cache},
		opts:          opts,
	}, nil
}

// CreateConnectionSource builds the zap configuration
func (c *zapConnector) CreateConnectionSource() (any, error) {
	level, err := zap.ParseAtomicLevel(c.opts.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = c.opts.Encoding
	cfg.OutputPaths = c.opts.OutputPaths
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	return cfg, nil
}

// ClientConnection builds the logger from the configuration
func (c *zapConnector) ClientConnection(source any) (any, error) {
	cfg := source.(zap.Config)
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapSink{logger: logger}, nil
}

type zapSink struct {
	logger *zap.Logger
}

func (s *zapSink) Write(message string, level container.Level) error {
	// fatal records are written at error level, a log client never exits
	// the process
	switch {
	case level >= container.LevelFatal:
		s.logger.Error(message, zap.Bool("fatal", true))
	default:
		s.logger.Log(zapLevel(level), message)
	}
	return nil
}

// Close flushes buffered records
func (s *zapSink) Close() error {
	return syncError(s.logger.Sync())
}

// syncError drops the errors fsync reports for terminals and pipes
// (ENOTTY, EINVAL) and keeps the rest.
func syncError(err error) error {
	var kept error
	for _, e := range multierr.Errors(err) {
		if errors.Is(e, syscall.ENOTTY) || errors.Is(e, syscall.EINVAL) {
			continue
		}
		kept = multierr.Append(kept, e)
	}
	return kept
}

func zapLevel(level container.Level) zapcore.Level {
	switch {
	case level >= container.LevelError:
		return zapcore.ErrorLevel
	case level >= container.LevelWarn:
		return zapcore.WarnLevel
	case level >= container.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
