package boot

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/01fortes/goscope/pkg/container"
	"github.com/01fortes/goscope/pkg/param"
)

// EnvPrefix prefixes every settings variable
const EnvPrefix = "GOSCOPE_"

// Settings holds the process level configuration
type Settings struct {
	LogLevel         container.Level `param:"GOSCOPE_LOG_LEVEL"`
	LogFormat        string          `param:"GOSCOPE_LOG_FORMAT"`
	Metrics          bool            `param:"GOSCOPE_METRICS"`
	MetricsNamespace string          `param:"GOSCOPE_METRICS_NAMESPACE"`
	Domain           string          `param:"GOSCOPE_DOMAIN"`
	LogService       string          `param:"GOSCOPE_LOG_SERVICE"`
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		LogLevel:         container.LevelInfo,
		LogFormat:        "text",
		MetricsNamespace: "goscope",
		Domain:           "default",
		LogService:       container.DefaultLogService,
	}
}

// LoadSettings loads the dotenv files (".env" when none are given, missing
// files are skipped) into the environment, then reads the GOSCOPE_
// variables over the defaults
func LoadSettings(files ...string) (Settings, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Settings{}, container.ConfigurationError(nil, err, "cannot load settings file '%s'", file)
		}
	}

	values := make(map[string]any)
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if ok && strings.HasPrefix(key, EnvPrefix) {
			values[key] = value
		}
	}

	settings := DefaultSettings()
	if err := param.Bind(values, &settings); err != nil {
		return Settings{}, container.ConfigurationError(nil, err, "invalid settings")
	}
	return settings, nil
}

// NewLogger builds the container logger described by the settings
func (s Settings) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: s.LogLevel.Slog()}

	var handler slog.Handler
	if strings.EqualFold(s.LogFormat, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
