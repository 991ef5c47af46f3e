package param

import (
	"log/slog"
	"strings"
)

const masked = "******"

// LogValue implements slog.LogValuer. Values whose names suggest secrets
// are masked.
func (p Parameters) LogValue() slog.Value {
	values := p.Map()
	attrs := make([]slog.Attr, 0, len(values))
	for _, name := range p.Names() {
		if IsSensitive(name) {
			attrs = append(attrs, slog.String(name, masked))
			continue
		}
		attrs = append(attrs, slog.Any(name, values[name]))
	}
	return slog.GroupValue(attrs...)
}

// IsSensitive returns true if the parameter name suggests it contains sensitive information
func IsSensitive(name string) bool {
	lowerName := strings.ToLower(name)
	return strings.Contains(lowerName, "password") ||
		strings.Contains(lowerName, "secret") ||
		strings.Contains(lowerName, "token") ||
		strings.Contains(lowerName, "key") && !strings.Contains(lowerName, "public")
}
