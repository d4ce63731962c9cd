package logger

import (
	"github.com/sirupsen/logrus"
)

// L is the process-wide logger. Packages log through component-scoped
// entries obtained from For.
var L = logrus.New()

func init() {
	L.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// SetLevel parses and applies a textual log level ("debug", "info", ...).
// Unknown values leave the level untouched.
func SetLevel(level string) {
	if level == "" {
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		L.WithField("level", level).Warn("unknown log level, keeping default")
		return
	}
	L.SetLevel(parsed)
}

// For returns an entry tagged with the originating component.
func For(component string) *logrus.Entry {
	return L.WithField("component", component)
}
