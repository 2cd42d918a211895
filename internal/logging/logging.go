// Package logging builds the process-wide logger from the LOGGER_LEVEL
// environment variable, mirroring the TRACE/INFO/WARN/ERROR/DISABLE
// levels of original mini_kvm's utils/logger.c, on top of logrus the way
// kata-containers-kata-containers's virtcontainers package does.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a *logrus.Logger honoring LOGGER_LEVEL and an optional
// destination path (the run subcommand's -l|--log[=PATH]). An empty path
// logs to stdout, matching logger_init(NULL) in the original.
func New(path string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	var out io.Writer = os.Stdout

	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, err
		}

		out = f
		logger.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	}

	if Disabled() {
		out = io.Discard
	}

	logger.SetOutput(out)
	logger.SetLevel(levelFromEnv())

	return logger, nil
}

func levelFromEnv() logrus.Level {
	switch os.Getenv("LOGGER_LEVEL") {
	case "TRACE":
		return logrus.TraceLevel
	case "INFO":
		return logrus.InfoLevel
	case "WARN":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	case "DISABLE":
		return logrus.PanicLevel // logrus's quietest level; New also routes output to io.Discard
	default:
		return logrus.TraceLevel
	}
}

// Disabled reports whether LOGGER_LEVEL requested DISABLE, in which case
// New routes the logger's output to io.Discard.
func Disabled() bool {
	return os.Getenv("LOGGER_LEVEL") == "DISABLE"
}
