package logger

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// Flags that modify the header of every entry. They are read once from the
// LOGFLAGS environment variable (comma separated: "longfile", "shortfile").
const (
	LogFlagLongFile uint32 = 1 << iota
	LogFlagShortFile
)

var defaultFlags = flagsFromEnv()

func flagsFromEnv() (flags uint32) {
	for _, f := range strings.Split(os.Getenv("LOGFLAGS"), ",") {
		switch f {
		case "longfile":
			flags |= LogFlagLongFile
		case "shortfile":
			flags |= LogFlagShortFile
		}
	}
	return flags
}

// Logger is a subsystem logger. Its level can be changed at any time and
// is read atomically on every call.
type Logger struct {
	level   uint32
	tag     string
	backend *Backend
}

// Tracef formats and writes a message at LevelTrace.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.Writef(LevelTrace, format, args...)
}

// Debugf formats and writes a message at LevelDebug.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Writef(LevelDebug, format, args...)
}

// Infof formats and writes a message at LevelInfo.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Writef(LevelInfo, format, args...)
}

// Warnf formats and writes a message at LevelWarn.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Writef(LevelWarn, format, args...)
}

// Errorf formats and writes a message at LevelError.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Writef(LevelError, format, args...)
}

// Criticalf formats and writes a message at LevelCritical.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.Writef(LevelCritical, format, args...)
}

// Writef writes a message at the given level if the logger's level allows it.
func (l *Logger) Writef(logLevel Level, format string, args ...interface{}) {
	if l.Level() > logLevel {
		return
	}
	l.backend.write(logEntry{log: l.format(logLevel, fmt.Sprintf(format, args...)), level: logLevel})
}

func (l *Logger) format(logLevel Level, message string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(message) + 64)
	buf.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	buf.WriteString(" [")
	buf.WriteString(logLevel.String())
	buf.WriteString("] ")
	buf.WriteString(l.tag)
	if defaultFlags&(LogFlagShortFile|LogFlagLongFile) != 0 {
		_, file, line, ok := runtime.Caller(3)
		if !ok {
			file, line = "???", 0
		}
		if defaultFlags&LogFlagShortFile != 0 {
			file = file[strings.LastIndex(file, "/")+1:]
		}
		fmt.Fprintf(&buf, " %s:%d", file, line)
	}
	buf.WriteString(": ")
	buf.WriteString(message)
	if !strings.HasSuffix(message, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Level returns the current logging level.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32(&l.level))
}

// SetLevel changes the logging level.
func (l *Logger) SetLevel(level Level) {
	atomic.StoreUint32(&l.level, uint32(level))
}

// Backend returns the backend this logger writes to.
func (l *Logger) Backend() *Backend {
	return l.backend
}
