package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

func consoleWriter() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}
}

// GetLogger returns the global logger instance
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(consoleWriter())
	}
	return globalLogger
}

// InitLogger initializes the arbor logger with configuration
func InitLogger(config *Config) arbor.ILogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	logger := arbor.NewLogger()

	hasFileOutput := false
	hasStdoutOutput := false
	for _, output := range config.Logging.Output {
		switch output {
		case "file":
			hasFileOutput = true
		case "stdout", "console":
			hasStdoutOutput = true
		}
	}

	if hasFileOutput && config.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(config.Logging.File), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to create logs directory: %v\n", err)
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:             models.LogWriterTypeFile,
				FileName:         config.Logging.File,
				TimeFormat:       "15:04:05",
				MaxSize:          100 * 1024 * 1024, // 100 MB
				MaxBackups:       3,
				DisableTimestamp: false,
			})
		}
	}

	// Never run silent: fall back to console when nothing usable is configured
	if hasStdoutOutput || !hasFileOutput {
		logger = logger.WithConsoleWriter(consoleWriter())
	}

	logger = logger.WithLevelFromString(config.Logging.Level)

	globalLogger = logger

	return logger
}
