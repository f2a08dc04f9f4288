// Package logging owns the single process-wide logger, configured once at
// startup, exactly the way the teacher's pkg/util/log.Logger global is
// consumed from every package via level.Info/Warn/Error(...).Log(...).
package logging

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the process-wide logger. It defaults to an info-level logfmt
// logger so packages that log at init time (flag registration, etc.) never
// see a nil logger; Init replaces it once configuration is known.
var Logger log.Logger = newLogger("info", "logfmt")

// Init (re)configures the package-level Logger. levelStr is one of
// debug/info/warn/error; format is "logfmt" or "json".
func Init(levelStr, format string) {
	Logger = newLogger(levelStr, format)
}

func newLogger(levelStr, format string) log.Logger {
	var base log.Logger
	if format == "json" {
		base = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	} else {
		base = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	}
	base = log.With(base, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	var opt level.Option
	switch levelStr {
	case "debug":
		opt = level.AllowDebug()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}

	return level.NewFilter(base, opt)
}
