package logging_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/julienflot/mini-kvm/internal/logging"
)

func TestNewDefaultsToStdout(t *testing.T) {
	t.Parallel()

	log, err := logging.New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if log.Out != os.Stdout {
		t.Errorf("Out = %v, want os.Stdout", log.Out)
	}
}

func TestNewWritesToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mini_kvm.log")

	log, err := logging.New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if len(data) == 0 {
		t.Error("log file is empty, want a line written to it")
	}
}

func TestLevelFromEnv(t *testing.T) {
	cases := map[string]logrus.Level{
		"TRACE": logrus.TraceLevel,
		"INFO":  logrus.InfoLevel,
		"WARN":  logrus.WarnLevel,
		"ERROR": logrus.ErrorLevel,
		"":      logrus.TraceLevel,
		"bogus": logrus.TraceLevel,
	}

	for value, want := range cases {
		value, want := value, want

		t.Run(value, func(t *testing.T) {
			t.Setenv("LOGGER_LEVEL", value)

			log, err := logging.New("")
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			if log.GetLevel() != want {
				t.Errorf("LOGGER_LEVEL=%q: level = %v, want %v", value, log.GetLevel(), want)
			}
		})
	}
}

func TestDisabled(t *testing.T) {
	t.Setenv("LOGGER_LEVEL", "DISABLE")

	if !logging.Disabled() {
		t.Error("Disabled() = false, want true when LOGGER_LEVEL=DISABLE")
	}

	log, err := logging.New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if log.IsLevelEnabled(logrus.FatalLevel) {
		t.Error("DISABLE should leave every level below PanicLevel disabled")
	}

	if log.Out != io.Discard {
		t.Errorf("Out = %v, want io.Discard when LOGGER_LEVEL=DISABLE", log.Out)
	}
}
