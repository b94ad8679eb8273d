package cmd

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

func createLogger(debug bool, logLevel string) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", logLevel, err)
	}

	var loggerCfg zap.Config
	if debug {
		loggerCfg = zap.NewDevelopmentConfig()
	} else {
		loggerCfg = zap.NewProductionConfig()
		loggerCfg.Encoding = "console"
		loggerCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		loggerCfg.DisableCaller = true
	}
	loggerCfg.Level = level

	logger, err := loggerCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger.Named("archivist"), nil
}

// fileLogger returns a logger for the i-th (zero-based) of n archives.
func fileLogger(logger *zap.Logger, i, n int, name string) *zap.Logger {
	return logger.With(zap.String("archive", fmt.Sprintf("[%d/%d] %s", i+1, n, truncateRightWithSuffix(filepath.Base(name), 30, "..."))))
}

// truncateRightWithSuffix truncates name to at most size runes including the suffix.
func truncateRightWithSuffix(name string, size int, suffix string) string {
	runes := []rune(name)
	if len(runes) <= size {
		return name
	}

	return string(runes[:size-len([]rune(suffix))]) + suffix
}
