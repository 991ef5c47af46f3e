package container_test

import (
	"errors"
	"io"
	"iter"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/01fortes/goscope/pkg/container"
)

// events records component lifecycle calls in order
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, event)
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.list)
}

type memoryProvider struct {
	container.ComponentBase
	objects map[string]any
	events  *events
	panics  bool
}

func (p *memoryProvider) GetObject(name string) (any, error) {
	if name == "broken" {
		return nil, errors.New("backing store unavailable")
	}
	return p.objects[name], nil
}

func (p *memoryProvider) ObjectNames() iter.Seq[string] {
	names := make([]string, 0, len(p.objects))
	for name := range p.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return slices.Values(names)
}

func (p *memoryProvider) Close() error {
	p.events.add("close provider " + p.Name())
	if p.panics {
		panic("close exploded")
	}
	return nil
}

type echoService struct {
	container.ComponentBase
	events   *events
	closeErr error
	logged   []string
}

func (s *echoService) Execute(operation string, params map[string]any) (any, error) {
	if operation != "echo" {
		return nil, container.UnsupportedOperationError(nil, s.Name(), operation)
	}
	return params["value"], nil
}

func (s *echoService) Log(message string, level container.Level) {
	s.logged = append(s.logged, level.String()+" "+message)
}

func (s *echoService) Close() error {
	s.events.add("close service " + s.Name())
	return s.closeErr
}

const (
	memoryType = "memory"
	failType   = "fail"
	echoType   = "echo"
)

// newTypes registers a memory provider (objects are its init parameters,
// "panic-on-close" makes Close panic), a provider type that always fails,
// and an echo service ("close-error" makes Close fail)
func newTypes(ev *events) *container.Types {
	types := container.NewTypes()
	_ = types.RegisterProvider(memoryType, func(ctx container.ComponentContext) (container.Provider, error) {
		ev.add("create provider " + ctx.Name)
		return &memoryProvider{
			ComponentBase: container.NewComponentBase(ctx.Name),
			objects:       ctx.Params.Map(),
			events:        ev,
			panics:        ctx.Params.Bool("panic-on-close", false),
		}, nil
	})
	_ = types.RegisterProvider(failType, func(ctx container.ComponentContext) (container.Provider, error) {
		ev.add("create provider " + ctx.Name)
		return nil, errors.New("disk full")
	})
	_ = types.RegisterService(echoType, func(ctx container.ComponentContext) (container.Service, error) {
		ev.add("create service " + ctx.Name)
		svc := &echoService{ComponentBase: container.NewComponentBase(ctx.Name), events: ev}
		if msg := ctx.Params.String("close-error", ""); msg != "" {
			svc.closeErr = errors.New(msg)
		}
		return svc, nil
	})
	return types
}

func quietConfig() *container.Config {
	return &container.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
