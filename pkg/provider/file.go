package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/01fortes/goscope/pkg/container"
)

const defaultDebounce = 50 * time.Millisecond

type fileOptions struct {
	Path     string        `param:"path,required"`
	Cache    bool          `param:"cache"`
	Watch    bool          `param:"watch"`
	Debounce time.Duration `param:"debounce"`
}

// File serves the top-level keys of a YAML or JSON document as objects.
// With watch enabled the cached document is reloaded when the file
// changes; a reload that fails keeps the previous content.
type File struct {
	*document
	path string

	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewFile is the factory of the file provider type
func NewFile(ctx container.ComponentContext) (container.Provider, error) {
	opts := fileOptions{Cache: true, Debounce: defaultDebounce}
	if err := ctx.Params.Bind(&opts); err != nil {
		return nil, container.ConfigurationError(ctx.Origin(), err, "provider '%s'", ctx.Name)
	}
	if opts.Watch && !opts.Cache {
		return nil, container.ConfigurationError(ctx.Origin(), nil, "provider '%s': watch requires cache", ctx.Name)
	}

	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, container.ConfigurationError(ctx.Origin(), err, "provider '%s': invalid path '%s'", ctx.Name, opts.Path)
	}

	doc, err := newDocument(ctx, path, opts.Cache, func() (map[string]any, error) {
		return loadDocument(path)
	})
	if err != nil {
		return nil, err
	}

	p := &File{document: doc, path: path}
	if opts.Watch {
		if err := p.startWatch(opts.Debounce); err != nil {
			return nil, container.ProviderError(ctx.Origin(), err, "provider '%s': cannot watch '%s'", ctx.Name, path)
		}
	}
	return p, nil
}

// loadDocument parses a YAML document; JSON parses as YAML
func loadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("malformed document: %w", err)
	}
	return values, nil
}

func (p *File) startWatch(debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// the directory is watched so atomic saves (rename over) are seen
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return err
	}

	p.watcher = watcher
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	go p.watchLoop(debounce)

	p.logger.Info("File watcher started", "path", p.path)
	return nil
}

func (p *File) watchLoop(debounce time.Duration) {
	defer close(p.done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-p.stopCh:
			return

		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(p.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			p.reload()

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("File watcher error", "path", p.path, "error", err)
		}
	}
}

func (p *File) reload() {
	values, err := loadDocument(p.path)
	if err != nil {
		p.logger.Error("Failed to reload document, keeping current", "path", p.path, "error", err)
		return
	}
	p.replace(values)
	p.logger.Info("Document reloaded", "path", p.path, "objects", len(values))
}

// Path returns the absolute path of the backing file
func (p *File) Path() string { return p.path }

// Close stops the watcher
func (p *File) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.watcher == nil {
			return
		}
		close(p.stopCh)
		err = p.watcher.Close()
		<-p.done
		p.logger.Info("File watcher stopped", "path", p.path)
	})
	return err
}

var (
	_ container.Provider = (*File)(nil)
	_ container.Closer   = (*File)(nil)
)
