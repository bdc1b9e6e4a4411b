// Package internal holds the process-wide logger shared by every owlface package.
package internal

import (
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// GetLogger returns the shared logger. It logs at Warn until config.SetLogLevel runs, so
// bootstrap noise stays out of the output.
func GetLogger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = newLogger()
	})
	return logger
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.WarnLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		PadLevelText:  true,
	})
	return l
}

func SetLogLevel(level logrus.Level) {
	GetLogger().SetLevel(level)
}

var _ retryablehttp.LeveledLogger = (*RetryLogger)(nil)

// RetryLogger feeds go-retryablehttp's key/value log calls into logrus fields.
type RetryLogger struct {
	logger *logrus.Logger
}

func NewRetryLogger(logger *logrus.Logger) *RetryLogger {
	return &RetryLogger{logger: logger}
}

func (r *RetryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.log(logrus.ErrorLevel, msg, keysAndValues)
}

func (r *RetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.log(logrus.WarnLevel, msg, keysAndValues)
}

func (r *RetryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.log(logrus.InfoLevel, msg, keysAndValues)
}

// Debug carries every retry attempt, so it is dropped early when debug is off.
func (r *RetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.log(logrus.DebugLevel, msg, keysAndValues)
}

func (r *RetryLogger) log(level logrus.Level, msg string, keysAndValues []interface{}) {
	if !r.logger.IsLevelEnabled(level) {
		return
	}
	r.logger.WithFields(pairs(keysAndValues)).Log(level, msg)
}

// pairs turns alternating keys and values into fields. A trailing key without a value is
// ignored; non-string keys are formatted.
func pairs(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
