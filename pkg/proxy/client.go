package proxy

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/01fortes/goscope/pkg/container"
)

// State is the connection state of a client
type State int32

const (
	Disconnected State = iota
	Connected
	Closed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connected:
		return "CONNECTED"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}

// Connectable is the per-client state machine
type Connectable interface {
	Connect() error
	Disconnect() error
	Close() error
	State() State
}

// ClientOptions wires a client into its owner
type ClientOptions struct {
	// Service names the owning service, for logs and metrics
	Service string
	// Origin receives the errors the client constructs
	Origin container.Logger
	Logger  *slog.Logger
	Metrics container.MetricsCollector
}

// Client is a named stateful wrapper around one connection. The
// connection is owned by the client and released on disconnect and close
// when it implements io.Closer.
type Client struct {
	name      string
	connector Connector
	service   string
	origin    container.Logger
	logger    *slog.Logger
	metrics   container.MetricsCollector

	mu     sync.Mutex
	state  State
	source any
	conn   any
}

// NewClient creates a disconnected client. With a caching connector the
// connection source is built here and reused by every Connect.
func NewClient(name string, connector Connector, opts ClientOptions) (*Client, error) {
	if connector == nil {
		return nil, container.ConfigurationError(opts.Origin, nil, "client '%s' requires a connector", name)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = container.NoopMetrics()
	}

	c := &Client{
		name:      name,
		connector: connector,
		service:   opts.Service,
		origin:    opts.Origin,
		logger:    opts.Logger.With("client", name),
		metrics:   opts.Metrics,
	}

	if connector.CacheConnectionSource() {
		source, err := c.createSource(c.origin)
		if err != nil {
			return nil, err
		}
		c.source = source
	}
	return c, nil
}

// Name returns the client name
func (c *Client) Name() string { return c.name }

// Connector returns the connector the client was built with
func (c *Client) Connector() Connector { return c.connector }

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Source returns the last connection source built for the client
func (c *Client) Source() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// Connection returns the live connection while connected
func (c *Client) Connection() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.state == Connected
}

// Connect opens the connection. Connecting a connected client does
// nothing. A failed connect leaves the client disconnected.
func (c *Client) Connect() error {
	origin := c.deferLog()
	defer origin.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Connected:
		return nil
	case Closed:
		return container.IllegalStateError(origin, "client '%s' is closed", c.name)
	}

	start := time.Now()
	conn, err := c.open(origin)
	c.metrics.RecordClientTransition(c.service, c.name, "connect", time.Since(start), err)
	if err != nil {
		return err
	}

	c.conn = conn
	c.state = Connected
	c.logger.Debug("Client connected", "time_ms", time.Since(start).Milliseconds())
	return nil
}

// Disconnect releases the connection. Disconnecting a disconnected client
// does nothing; a closed client cannot be disconnected.
func (c *Client) Disconnect() error {
	origin := c.deferLog()
	defer origin.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Disconnected:
		return nil
	case Closed:
		return container.IllegalStateError(origin, "client '%s' is closed", c.name)
	}

	start := time.Now()
	err := c.release(origin)
	c.state = Disconnected
	c.metrics.RecordClientTransition(c.service, c.name, "disconnect", time.Since(start), err)
	c.logger.Debug("Client disconnected")
	return err
}

// Close releases the connection and the cached source. Close is terminal
// and idempotent.
func (c *Client) Close() error {
	origin := c.deferLog()
	defer origin.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		return nil
	}

	start := time.Now()
	err := c.release(origin)
	if closer, ok := c.source.(io.Closer); ok && c.connector.CacheConnectionSource() {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = container.ConnectorError(origin, cerr, "client '%s': failed to release connection source", c.name)
		}
	}
	c.source = nil
	c.state = Closed
	c.metrics.RecordClientTransition(c.service, c.name, "close", time.Since(start), err)
	c.logger.Debug("Client closed")
	return err
}

func (c *Client) open(origin container.Logger) (any, error) {
	source := c.source
	if !c.connector.CacheConnectionSource() {
		fresh, err := c.createSource(origin)
		if err != nil {
			return nil, err
		}
		source = fresh
		c.source = fresh
	}

	conn, err := guard(func() (any, error) { return c.connector.ClientConnection(source) })
	if err != nil {
		return nil, container.Wrap(err, func(cause error) *container.ContainerError {
			return container.ConnectorError(origin, cause, "client '%s': failed to open connection", c.name)
		})
	}
	return conn, nil
}

func (c *Client) createSource(origin container.Logger) (any, error) {
	source, err := guard(c.connector.CreateConnectionSource)
	if err != nil {
		return nil, container.Wrap(err, func(cause error) *container.ContainerError {
			return container.ConnectorError(origin, cause, "client '%s': failed to create connection source", c.name)
		})
	}
	return source, nil
}

// release closes the connection, the caller holds c.mu
func (c *Client) release(origin container.Logger) error {
	conn := c.conn
	c.conn = nil

	closer, ok := conn.(io.Closer)
	if !ok {
		return nil
	}
	if err := closer.Close(); err != nil {
		return container.ConnectorError(origin, err, "client '%s': failed to release connection", c.name)
	}
	return nil
}

// WithConnection runs fn with the live connection while holding the
// client's lock, so the connection cannot be released underneath it
func WithConnection[T any, R any](c *Client, fn func(conn T) (R, error)) (R, error) {
	var zero R

	origin := c.deferLog()
	defer origin.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected {
		return zero, container.IllegalStateError(origin, "client '%s' is %s", c.name, c.state)
	}
	conn, ok := c.conn.(T)
	if !ok {
		return zero, container.ConfigurationError(origin, nil,
			"client '%s': connection %T does not implement %T", c.name, c.conn, (*T)(nil))
	}
	return fn(conn)
}

// Use runs fn with the live connection if the client is connected and
// the connection is a T. It reports whether fn ran and never constructs
// an error, so log services may call it from inside error reporting.
func Use[T any](c *Client, fn func(conn T)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected {
		return false
	}
	conn, ok := c.conn.(T)
	if !ok {
		return false
	}
	fn(conn)
	return true
}

// deferredLog queues error logging until the client lock is released; a
// log service may route the message back into this client
type deferredLog struct {
	origin  container.Logger
	entries []deferredEntry
}

type deferredEntry struct {
	message string
	level   container.Level
}

func (c *Client) deferLog() *deferredLog {
	return &deferredLog{origin: c.origin}
}

func (d *deferredLog) Log(message string, level container.Level) {
	if d.origin != nil {
		d.entries = append(d.entries, deferredEntry{message: message, level: level})
	}
}

// Name reports the origin's name so errors keep their scope
func (d *deferredLog) Name() string {
	if named, ok := d.origin.(interface{ Name() string }); ok {
		return named.Name()
	}
	return ""
}

func (d *deferredLog) flush() {
	for _, e := range d.entries {
		d.origin.Log(e.message, e.level)
	}
	d.entries = nil
}

// guard converts panics in connector code into errors
func guard(fn func() (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("connector panic: %v", r)
		}
	}()
	return fn()
}

var _ Connectable = (*Client)(nil)
