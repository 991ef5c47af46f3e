package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/01fortes/goscope/pkg/container"
	"github.com/01fortes/goscope/pkg/proxy"
)

// ConsoleConnector is the connector type id of slog backed console clients
const ConsoleConnector = "log/console"

type consoleOptions struct {
	Format string          `param:"format"`
	Level  container.Level `param:"level"`
}

type consoleConnector struct {
	proxy.ConnectorBase
	writer io.Writer
	opts   consoleOptions
}

// NewConsoleConnector returns the factory of console connectors writing
// to w. Params: format (text or json), level (minimum level).
func NewConsoleConnector(w io.Writer) proxy.ConnectorFactory {
	if w == nil {
		w = os.Stdout
	}
	return func(ctx proxy.ConnectorContext) (proxy.Connector, error) {
		opts := consoleOptions{Format: "text", Level: container.LevelDebug}
		if err := ctx.Params.Bind(&opts); err != nil {
			return nil, err
		}

		return &consoleConnector{
			ConnectorBase: proxy.ConnectorBase{Client: "console", Service: ServiceType, Cache: true},
			writer:        w,
			opts:          opts,
		}, nil
	}
}

// CreateConnectionSource builds the slog handler
func (c *consoleConnector) CreateConnectionSource() (any, error) {
	handlerOpts := &slog.HandlerOptions{Level: c.opts.Level.Slog()}
	if c.opts.Format == "json" {
		return slog.NewJSONHandler(c.writer, handlerOpts), nil
	}
	return slog.NewTextHandler(c.writer, handlerOpts), nil
}

// ClientConnection wraps the handler in a sink
func (c *consoleConnector) ClientConnection(source any) (any, error) {
	return &slogSink{logger: slog.New(source.(slog.Handler))}, nil
}

type slogSink struct {
	logger *slog.Logger
}

func (s *slogSink) Write(message string, level container.Level) error {
	s.logger.Log(context.Background(), level.Slog(), message)
	return nil
}
