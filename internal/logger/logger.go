package logger

import (
	"io"
	"os"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex = regexp.MustCompile(`eyJ[^\s]+`)
	keyRegex   = regexp.MustCompile(`(?i)\b(secret|password|access_key)\s*=\s*\S+`)
)

// Logger is a centralized structured logger.
// Every entry carries the module that produced it.
type Logger struct {
	out *logrus.Logger
}

// New creates a Logger writing JSON lines to stdout.
func New() *Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a Logger writing JSON lines to w.
func NewWithWriter(w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "message",
		},
	})
	return &Logger{out: l}
}

// Anonymize replaces sensitive information in logs (emails, tokens, credentials)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = keyRegex.ReplaceAllString(s, "$1=[REDACTED]")
	return s
}

func (l *Logger) entry(module string, err error) *logrus.Entry {
	e := l.out.WithField("module", module)
	if err != nil {
		e = e.WithField("error", Anonymize(err.Error()))
	}
	return e
}

// --- Convenient methods ---
func (l *Logger) Info(module, msg string) {
	l.entry(module, nil).Info(Anonymize(msg))
}

func (l *Logger) Debug(module, msg string) {
	l.entry(module, nil).Debug(Anonymize(msg))
}

func (l *Logger) Warn(module, msg string, err error) {
	l.entry(module, err).Warn(Anonymize(msg))
}

func (l *Logger) Error(module, msg string, err error) {
	l.entry(module, err).Error(Anonymize(msg))
}
