// Package logging provides leveled logging for labelmesh. Messages go through
// the standard log package, optionally into a rotating file.
package logging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
)

type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var (
	mu   sync.RWMutex
	mode = InfoMode
	file *lumberjack.Logger
)

// Config selects where log messages are written.
type Config struct {
	Logfile string `yaml:"logfile" toml:"logfile"`
	MaxSize int    `yaml:"maxLogSize" toml:"max_log_size"` // megabytes
	MaxAge  int    `yaml:"maxLogAge" toml:"max_log_age"`   // days
}

// SetLogger routes messages to a rotating log file. With no file configured,
// messages stay on the standard logger's output.
func (c *Config) SetLogger() {
	if c == nil || c.Logfile == "" {
		Debugf("Sending log messages to stderr since no log file specified.")
		return
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	mu.Lock()
	file = l
	mu.Unlock()
	log.SetOutput(l)
}

// Shutdown closes the log file, if any.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
}

// SetLogMode sets the lowest severity that is printed. SilentMode turns
// logging off.
func SetLogMode(newMode ModeFlag) {
	mu.Lock()
	mode = newMode
	mu.Unlock()
}

// Enabled reports whether messages at m are printed.
func Enabled(m ModeFlag) bool {
	mu.RLock()
	defer mu.RUnlock()
	return mode <= m && mode != SilentMode
}

func Debugf(format string, args ...interface{}) {
	if Enabled(DebugMode) {
		log.Printf(" DEBUG "+format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if Enabled(InfoMode) {
		log.Printf(" INFO "+format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if Enabled(WarningMode) {
		log.Printf(" WARNING "+format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Enabled(ErrorMode) {
		log.Printf(" ERROR "+format, args...)
	}
}

func Criticalf(format string, args ...interface{}) {
	if Enabled(CriticalMode) {
		log.Printf(" CRITICAL "+format, args...)
	}
}

// TimeLog appends the elapsed time since its creation to every message.
//
//	tlog := logging.NewTimeLog()
//	...
//	tlog.Infof("meshed %d objects", n) // "... : 1.2s"
type TimeLog struct {
	start time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{time.Now()}
}

func (t TimeLog) Elapsed() time.Duration {
	return time.Since(t.start)
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	Debugf(format+": %s\n", append(args, time.Since(t.start))...)
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	Infof(format+": %s\n", append(args, time.Since(t.start))...)
}

func (t TimeLog) Warningf(format string, args ...interface{}) {
	Warningf(format+": %s\n", append(args, time.Since(t.start))...)
}
