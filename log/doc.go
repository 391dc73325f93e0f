// Package log provides the leveled logging interface used across reelgraph.
//
// The graph executor, the workflow nodes and the command line tools all log
// through the Logger interface. GologLogger wraps github.com/kataras/golog
// for colored, leveled output with a "[reelgraph] " prefix; NoOpLogger
// silences tests.
//
// # Log Levels
//
// In order of increasing severity: LogLevelDebug, LogLevelInfo,
// LogLevelWarn, LogLevelError. LogLevelNone disables output. ParseLevel
// accepts the names used by the LOG_LEVEL environment variable.
//
// # Example Usage
//
//	level, err := log.ParseLevel(os.Getenv("LOG_LEVEL"))
//	if err != nil {
//		return err
//	}
//	log.SetDefaultLogger(log.NewCLILogger(os.Stderr, level))
//	log.GetDefaultLogger().Info("run %s started", runID)
//
// Messages are formatted with fmt.Sprintf semantics by every implementation.
package log
