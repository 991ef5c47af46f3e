package logging_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01fortes/goscope/pkg/container"
	"github.com/01fortes/goscope/pkg/param"
	"github.com/01fortes/goscope/pkg/proxy"
	"github.com/01fortes/goscope/pkg/service/logging"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newDomain(t *testing.T, sink *syncBuffer) *container.Domain {
	t.Helper()

	types := container.NewTypes()
	require.NoError(t, logging.Register(types, proxy.NewConnectors(), sink))

	domain := container.NewDomain("test", types, nil)
	t.Cleanup(func() { _ = domain.Close() })
	return domain
}

func TestConsoleLoggerScenario(t *testing.T) {
	sink := &syncBuffer{}
	domain := newDomain(t, sink)

	scope, err := domain.NewScope("app", nil, nil)
	require.NoError(t, err)

	svc, err := scope.CreateService("log-service", logging.ServiceType, nil)
	require.NoError(t, err)
	logService := svc.(*logging.Service)

	_, err = logService.CreateClient("console-logger", logging.ConsoleConnector, nil)
	require.NoError(t, err)

	require.NoError(t, logService.Connect("console-logger"))

	_, err = svc.Execute("log", map[string]any{
		"client-name": "console-logger",
		"message":     "hi",
		"level":       container.LevelInfo,
	})
	require.NoError(t, err)
	assert.Contains(t, sink.String(), "level=INFO")
	assert.Contains(t, sink.String(), "msg=hi")

	require.NoError(t, logService.Disconnect("console-logger"))
	state, err := logService.State("console-logger")
	require.NoError(t, err)
	assert.Equal(t, proxy.Disconnected, state)
}

func TestLogOperationParameters(t *testing.T) {
	sink := &syncBuffer{}
	domain := newDomain(t, sink)

	scope, err := domain.CreateScope(container.ScopeConfig{
		Name: "app",
		Services: []container.ServiceConfig{{
			Name: "log-service",
			Type: logging.ServiceType,
			Clients: []container.ClientConfig{{
				Name:           "console",
				Connector:      logging.ConsoleConnector,
				InitParameters: param.Parameters{{Name: "format", Value: "json"}},
			}},
		}},
	})
	require.NoError(t, err)
	require.NoError(t, scope.Start())

	svc := scope.GetService("log-service")
	require.NotNil(t, svc)
	_, err = svc.Execute("connect", map[string]any{"client-name": "console"})
	require.NoError(t, err)

	t.Run("LevelByName", func(t *testing.T) {
		_, err := svc.Execute("log", map[string]any{"client-name": "console", "message": "careful", "level": "warn"})
		require.NoError(t, err)
		assert.Contains(t, sink.String(), `"level":"WARN","msg":"careful"`)
	})

	t.Run("DefaultLevel", func(t *testing.T) {
		_, err := svc.Execute("log", map[string]any{"client-name": "console", "message": "plain"})
		require.NoError(t, err)
		assert.Contains(t, sink.String(), `"level":"INFO","msg":"plain"`)
	})

	t.Run("MissingMessage", func(t *testing.T) {
		_, err := svc.Execute("log", map[string]any{"client-name": "console"})
		assert.ErrorIs(t, err, container.ErrInvalidParameter)
		assert.Contains(t, err.Error(), "'message'")
	})

	t.Run("BadLevel", func(t *testing.T) {
		_, err := svc.Execute("log", map[string]any{"client-name": "console", "message": "x", "level": "loud"})
		assert.ErrorIs(t, err, container.ErrInvalidParameter)
		assert.Contains(t, err.Error(), "'level'")
	})

	t.Run("NumericClientName", func(t *testing.T) {
		_, err := svc.Execute("log", map[string]any{"client-name": 42, "message": "hi"})
		assert.ErrorIs(t, err, container.ErrInvalidParameter)
		assert.Contains(t, err.Error(), "'client-name'")
	})

	t.Run("BoolLevel", func(t *testing.T) {
		_, err := svc.Execute("log", map[string]any{"client-name": "console", "message": "hi", "level": true})
		assert.ErrorIs(t, err, container.ErrInvalidParameter)
		assert.Contains(t, err.Error(), "'level'")
	})

	t.Run("DisconnectedClient", func(t *testing.T) {
		_, err := svc.Execute("disconnect", map[string]any{"client-name": "console"})
		require.NoError(t, err)
		_, err = svc.Execute("log", map[string]any{"client-name": "console", "message": "lost"})
		assert.ErrorIs(t, err, container.ErrIllegalState)
	})
}

func TestScopeLogForwardsToLogService(t *testing.T) {
	sink := &syncBuffer{}
	domain := newDomain(t, sink)

	parent, err := domain.NewScope("app", nil, nil)
	require.NoError(t, err)

	// without a log service the call is a no-op
	parent.Log("nobody listens", container.LevelInfo)
	assert.Empty(t, sink.String())

	svc, err := parent.CreateService("log-service", logging.ServiceType, nil)
	require.NoError(t, err)
	logService := svc.(*logging.Service)
	_, err = logService.CreateClient("console", logging.ConsoleConnector, nil)
	require.NoError(t, err)
	require.NoError(t, logService.Connect("console"))

	child, err := domain.NewScope("module", parent, nil)
	require.NoError(t, err)

	child.Log("from the child", container.LevelWarn)
	assert.Contains(t, sink.String(), "level=WARN msg=\"from the child\"")

	// container errors are logged once through the scope
	_, err = child.GetObject("missing", "x")
	require.ErrorIs(t, err, container.ErrNotFound)
	assert.Equal(t, 1, strings.Count(sink.String(), "provider 'missing' not found"))
}

func TestConnectFailureOnLogClientDoesNotDeadlock(t *testing.T) {
	sink := &syncBuffer{}
	domain := newDomain(t, sink)

	scope, err := domain.NewScope("app", nil, nil)
	require.NoError(t, err)
	svc, err := scope.CreateService("log-service", logging.ServiceType, nil)
	require.NoError(t, err)
	logService := svc.(*logging.Service)

	_, err = logService.CreateClient("console", logging.ConsoleConnector, nil)
	require.NoError(t, err)
	require.NoError(t, logService.Connect("console"))

	// zap cannot open a directory as output; the failure is reported through
	// the still connected console client
	_, err = logService.CreateClient("zap", logging.ZapConnector, param.Parameters{
		{Name: "output-paths", Value: t.TempDir()},
	})
	require.NoError(t, err)
	err = logService.Connect("zap")
	require.ErrorIs(t, err, container.ErrConnector)
	assert.Contains(t, sink.String(), "CONNECTOR_ERROR")
}

func TestZapConnector(t *testing.T) {
	sink := &syncBuffer{}
	domain := newDomain(t, sink)
	out := filepath.Join(t.TempDir(), "app.log")

	scope, err := domain.NewScope("app", nil, nil)
	require.NoError(t, err)
	svc, err := scope.CreateService("log-service", logging.ServiceType, nil)
	require.NoError(t, err)
	logService := svc.(*logging.Service)

	_, err = logService.CreateClient("zap", logging.ZapConnector, param.Parameters{
		{Name: "level", Value: "debug"},
		{Name: "output-paths", Value: out},
	})
	require.NoError(t, err)
	require.NoError(t, logService.Connect("zap"))

	require.NoError(t, logService.LogTo("zap", "structured hello", container.LevelDebug))
	require.NoError(t, logService.LogTo("zap", "about to stop", container.LevelFatal))
	require.NoError(t, logService.CloseClient("zap"))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"structured hello"`)
	assert.Contains(t, string(data), `"level":"debug"`)
	assert.Contains(t, string(data), `"fatal":true`)

	assert.ErrorIs(t, logService.LogTo("zap", "closed", container.LevelInfo), container.ErrIllegalState)
}

func TestZapConnectorRejectsBadLevel(t *testing.T) {
	domain := newDomain(t, &syncBuffer{})
	scope, err := domain.NewScope("app", nil, nil)
	require.NoError(t, err)
	svc, err := scope.CreateService("log-service", logging.ServiceType, nil)
	require.NoError(t, err)

	// the source is cached, so a bad level fails at client creation
	_, err = svc.(*logging.Service).CreateClient("zap", logging.ZapConnector, param.Parameters{
		{Name: "level", Value: "shouting"},
	})
	assert.ErrorIs(t, err, container.ErrConnector)
}
