// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupParams selects level, format and destination of log output.
type SetupParams struct {
	Level    string
	JSON     bool
	File     string
	ToStdout bool
}

// Setup configures the standard logrus logger. With a File set, output is
// rotated by lumberjack and optionally mirrored to stdout.
func Setup(params SetupParams) {
	if params.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	logrus.SetLevel(GetLevel(params.Level))
	logrus.SetOutput(output(params))
}

func output(params SetupParams) io.Writer {
	if params.File == "" {
		return os.Stdout
	}

	if !strings.HasSuffix(params.File, ".log") {
		params.File += ".log"
	}
	rotating := &lumberjack.Logger{
		Filename:   params.File,
		MaxSize:    50, // megabytes
		MaxBackups: 10,
		Compress:   true,
	}
	if params.ToStdout {
		return NewCombinedWriter(os.Stdout, rotating)
	}
	return rotating
}

// GetLevel maps a level name to a logrus level, defaulting to info.
func GetLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}
