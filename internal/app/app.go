package app

import (
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

var logThresholds = map[string]jww.Threshold{
	"trace": jww.LevelTrace,
	"debug": jww.LevelDebug,
	"info":  jww.LevelInfo,
	"warn":  jww.LevelWarn,
	"error": jww.LevelError,
}

// InitLog sets the jww thresholds for level. When logPath is set, log
// output goes to that file and stdout only carries errors.
func InitLog(level, logPath string) error {
	threshold, ok := logThresholds[level]
	if !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown log level %q", level)
	}
	if logPath != "" && logPath != "-" {
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		jww.SetLogOutput(f)
		jww.SetLogThreshold(threshold)
		jww.SetStdoutThreshold(jww.LevelError)
	} else {
		jww.SetLogOutput(io.Discard)
		jww.SetStdoutThreshold(threshold)
	}
	if threshold <= jww.LevelDebug {
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}
	jww.DEBUG.Printf("log level set to %s", level)
	return nil
}
