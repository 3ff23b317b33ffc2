package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureLog(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		SetLogMode(InfoMode)
	})
	return &buf
}

func TestLogModeFilters(t *testing.T) {
	buf := captureLog(t)
	SetLogMode(WarningMode)

	Infof("hidden %d", 1)
	Warningf("shown %d", 2)
	Errorf("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Info message printed in warning mode: %q", out)
	}
	if !strings.Contains(out, " WARNING shown 2") || !strings.Contains(out, " ERROR shown 3") {
		t.Errorf("Missing warning or error message: %q", out)
	}
}

func TestSilentMode(t *testing.T) {
	buf := captureLog(t)
	SetLogMode(SilentMode)
	Criticalf("nothing")
	if buf.Len() != 0 {
		t.Errorf("Expected no output in silent mode, got %q", buf.String())
	}
}

func TestTimeLogAppendsElapsed(t *testing.T) {
	buf := captureLog(t)
	SetLogMode(DebugMode)
	tlog := NewTimeLog()
	tlog.Debugf("step %s", "done")
	if !strings.Contains(buf.String(), "step done: ") {
		t.Errorf("Expected elapsed suffix, got %q", buf.String())
	}
}

func TestSetLoggerWritesFile(t *testing.T) {
	captureLog(t)
	path := filepath.Join(t.TempDir(), "labelmesh.log")
	cfg := &Config{Logfile: path, MaxSize: 1, MaxAge: 1}
	cfg.SetLogger()
	Infof("to file")
	Shutdown()
	log.SetOutput(os.Stderr)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("Log file missing message: %q", data)
	}
}
