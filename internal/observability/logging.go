// Package observability provides the process-wide loggers.
//
// Two loggers are exposed: CLILogger renders human-oriented console output
// for interactive commands, and Logger emits structured JSON for the server
// and anything that ships logs elsewhere. Both are initialized once via
// InitLogging; commands read them as package globals the same way they read
// the registry.
package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the console logger for interactive commands.
// Initialized to a no-op logger until InitLogging runs.
var CLILogger = zap.NewNop()

// Logger is the structured logger for long-running processes.
var Logger = zap.NewNop()

// InitLogging configures both loggers. verbose drops the console level
// to debug; the structured logger always logs at info and above.
func InitLogging(verbose bool) error {
	consoleLevel := zapcore.InfoLevel
	if verbose {
		consoleLevel = zapcore.DebugLevel
	}

	cliCfg := zap.NewDevelopmentConfig()
	cliCfg.Level = zap.NewAtomicLevelAt(consoleLevel)
	cliCfg.DisableStacktrace = true
	cliCfg.EncoderConfig.TimeKey = "" // console output carries its own progress context
	cli, err := cliCfg.Build()
	if err != nil {
		return err
	}

	structCfg := zap.NewProductionConfig()
	structCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	structured, err := structCfg.Build()
	if err != nil {
		return err
	}

	CLILogger = cli
	Logger = structured
	return nil
}

// Sync flushes both loggers. Errors are ignored: stderr sync failures on
// exit are expected on some platforms.
func Sync() {
	_ = CLILogger.Sync()
	_ = Logger.Sync()
}
