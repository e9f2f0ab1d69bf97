package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestPrettyFormatter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.DebugLevel)
	log.SetFormatter(&PrettyFormatter{DisableColors: true})

	log.WithFields(logrus.Fields{"tracker": "udp://t:1", "attempt": 2}).Warn("retrying")

	line := buf.String()
	if !strings.Contains(line, "WARN  retrying attempt=2 tracker=udp://t:1\n") {
		t.Errorf("unexpected line %q", line)
	}
}

func TestPrettyFormatterColors(t *testing.T) {
	f := &PrettyFormatter{}
	if got := f.colorizeLevel(logrus.ErrorLevel); got != colorRed+"ERROR"+colorReset {
		t.Errorf("colorizeLevel(Error) = %q", got)
	}
	if got := f.colorizeLevel(logrus.TraceLevel); !strings.Contains(got, "DEBUG") {
		t.Errorf("colorizeLevel(Trace) = %q", got)
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	if log.IsLevelEnabled(logrus.ErrorLevel) {
		t.Error("expected discard logger to drop errors")
	}
}
