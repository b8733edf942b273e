package logger

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// BackendLog is the logging backend used to create all subsystem loggers.
var BackendLog = NewBackend()

var (
	subsystemLoggers     = make(map[string]*Logger)
	subsystemLoggersLock sync.Mutex
)

// RegisterSubSystem returns the logger of the given subsystem, creating it
// on first use.
func RegisterSubSystem(subsystem string) *Logger {
	subsystemLoggersLock.Lock()
	defer subsystemLoggersLock.Unlock()
	logger, exists := subsystemLoggers[subsystem]
	if !exists {
		logger = BackendLog.Logger(subsystem)
		subsystemLoggers[subsystem] = logger
	}
	return logger
}

// InitLog attaches a log file receiving everything and an error log file
// receiving warnings and above, then starts the backend.
func InitLog(logFile, errLogFile string) error {
	err := BackendLog.AddLogFile(logFile, LevelTrace)
	if err != nil {
		return errors.Wrapf(err, "error adding log file %s as log rotator for level %s", logFile, LevelTrace)
	}
	err = BackendLog.AddLogFile(errLogFile, LevelWarn)
	if err != nil {
		return errors.Wrapf(err, "error adding log file %s as log rotator for level %s", errLogFile, LevelWarn)
	}
	return BackendLog.Run()
}

// SetLogLevel sets the level of a single subsystem. Unknown subsystems are
// ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	subsystemLoggersLock.Lock()
	defer subsystemLoggersLock.Unlock()
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the level of every registered subsystem.
func SetLogLevels(logLevel string) {
	for _, subsystemID := range SupportedSubsystems() {
		SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns the sorted tags of every registered subsystem.
func SupportedSubsystems() []string {
	subsystemLoggersLock.Lock()
	defer subsystemLoggersLock.Unlock()
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsystemID := range subsystemLoggers {
		subsystems = append(subsystems, subsystemID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// ParseAndSetLogLevels accepts either a single level applied to every
// subsystem, or a comma separated list of subsystem=level pairs.
func ParseAndSetLogLevels(logLevel string) error {
	if !strings.Contains(logLevel, ",") && !strings.Contains(logLevel, "=") {
		if _, ok := LevelFromString(logLevel); !ok {
			return errors.Errorf("the specified log level [%s] is invalid", logLevel)
		}
		SetLogLevels(logLevel)
		return nil
	}

	for _, pair := range strings.Split(logLevel, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return errors.Errorf("the specified log level contains an invalid subsystem/level pair [%s]", pair)
		}
		subsystemID, level := fields[0], fields[1]
		if !isRegistered(subsystemID) {
			return errors.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsystemID, strings.Join(SupportedSubsystems(), ", "))
		}
		if _, ok := LevelFromString(level); !ok {
			return errors.Errorf("the specified log level [%s] is invalid", level)
		}
		SetLogLevel(subsystemID, level)
	}
	return nil
}

func isRegistered(subsystemID string) bool {
	subsystemLoggersLock.Lock()
	defer subsystemLoggersLock.Unlock()
	_, ok := subsystemLoggers[subsystemID]
	return ok
}

// LogAndMeasureExecutionTime logs the start of functionName at debug level
// and returns a function logging its end and duration.
func LogAndMeasureExecutionTime(log *Logger, functionName string) (onEnd func()) {
	start := time.Now()
	log.Debugf("%s start", functionName)
	return func() {
		log.Debugf("%s end. Took: %s", functionName, time.Since(start))
	}
}
