package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

const (
	// logsBuffer bounds how many entries may wait for the writer goroutine
	// before a logging call blocks.
	logsBuffer = 256

	defaultThresholdKB = 100 * 1000
	defaultMaxRolls    = 8
)

// Backend fans log entries from every subsystem Logger out to a set of
// writers. Entries are written by a single goroutine started with Run, so
// lines from different subsystems never interleave.
type Backend struct {
	isRunning uint32
	writers   []logWriter
	writeChan chan logEntry
	done      chan struct{}

	// runLock keeps Close from closing writeChan under a concurrent write.
	runLock sync.RWMutex
}

type logEntry struct {
	log   []byte
	level Level
}

type logWriter interface {
	io.WriteCloser
	LogLevel() Level
}

type leveledWriter struct {
	io.WriteCloser
	level Level
}

func (w leveledWriter) LogLevel() Level {
	return w.level
}

// NewBackend creates a new logger backend. Nothing is written until Run is called.
func NewBackend() *Backend {
	return &Backend{
		writeChan: make(chan logEntry, logsBuffer),
		done:      make(chan struct{}),
	}
}

// AddLogFile adds a rotating log file that receives every entry at or above
// logLevel. The file and its directory are created if they don't exist.
func (b *Backend) AddLogFile(logFile string, logLevel Level) error {
	return b.AddLogFileWithCustomRotator(logFile, logLevel, defaultThresholdKB, defaultMaxRolls)
}

// AddLogFileWithCustomRotator is AddLogFile with explicit rotation settings.
func (b *Backend) AddLogFileWithCustomRotator(logFile string, logLevel Level, thresholdKB int64, maxRolls int) error {
	if b.IsRunning() {
		return errors.New("the logger is already running")
	}
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		err := os.MkdirAll(logDir, 0700)
		if err != nil {
			return errors.Wrapf(err, "failed to create log directory %s", logDir)
		}
	}
	r, err := rotator.New(logFile, thresholdKB, false, maxRolls)
	if err != nil {
		return errors.Wrapf(err, "failed to create file rotator for %s", logFile)
	}
	b.writers = append(b.writers, leveledWriter{WriteCloser: r, level: logLevel})
	return nil
}

// AddLogWriter adds an arbitrary writer that receives every entry at or
// above logLevel.
func (b *Backend) AddLogWriter(writer io.WriteCloser, logLevel Level) error {
	if b.IsRunning() {
		return errors.New("the logger is already running")
	}
	b.writers = append(b.writers, leveledWriter{WriteCloser: writer, level: logLevel})
	return nil
}

// Run starts the writer goroutine. It must be called at most once.
func (b *Backend) Run() error {
	b.runLock.Lock()
	defer b.runLock.Unlock()
	if !atomic.CompareAndSwapUint32(&b.isRunning, 0, 1) {
		return errors.New("the logger is already running")
	}
	go func() {
		defer func() {
			if err := recover(); err != nil {
				fmt.Fprintf(os.Stderr, "Fatal error in logger.Backend goroutine: %+v\n", err)
				fmt.Fprintf(os.Stderr, "Goroutine stacktrace: %s\n", debug.Stack())
			}
		}()
		defer close(b.done)
		for entry := range b.writeChan {
			for _, writer := range b.writers {
				if entry.level >= writer.LogLevel() {
					_, _ = writer.Write(entry.log)
				}
			}
		}
	}()
	return nil
}

// IsRunning returns whether Run has been called and Close hasn't.
func (b *Backend) IsRunning() bool {
	return atomic.LoadUint32(&b.isRunning) != 0
}

// Close flushes pending entries and closes every writer.
func (b *Backend) Close() {
	b.runLock.Lock()
	if !atomic.CompareAndSwapUint32(&b.isRunning, 1, 0) {
		b.runLock.Unlock()
		return
	}
	close(b.writeChan)
	b.runLock.Unlock()

	<-b.done
	for _, writer := range b.writers {
		_ = writer.Close()
	}
}

func (b *Backend) write(entry logEntry) {
	b.runLock.RLock()
	defer b.runLock.RUnlock()
	if !b.IsRunning() {
		return
	}
	b.writeChan <- entry
}

// Logger returns a new logger for the given subsystem tag writing to b.
func (b *Backend) Logger(subsystemTag string) *Logger {
	return &Logger{level: uint32(LevelInfo), tag: subsystemTag, backend: b}
}
