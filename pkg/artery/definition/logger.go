// Package definition holds the core's default implementations of
// collaborator interfaces, starting with the default logger.
package definition

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jabolina/go-artery/pkg/artery/types"
)

// DefaultLogger is the logger used when no other implementation is
// supplied, backed by logrus.
type DefaultLogger struct {
	entry *logrus.Logger
}

func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &DefaultLogger{entry: l}
}

func (l *DefaultLogger) Info(v ...interface{})             { l.entry.Info(v...) }
func (l *DefaultLogger) Infof(f string, v ...interface{})  { l.entry.Infof(f, v...) }
func (l *DefaultLogger) Warn(v ...interface{})             { l.entry.Warn(v...) }
func (l *DefaultLogger) Warnf(f string, v ...interface{})  { l.entry.Warnf(f, v...) }
func (l *DefaultLogger) Error(v ...interface{})            { l.entry.Error(v...) }
func (l *DefaultLogger) Errorf(f string, v ...interface{}) { l.entry.Errorf(f, v...) }
func (l *DefaultLogger) Debug(v ...interface{})            { l.entry.Debug(v...) }
func (l *DefaultLogger) Debugf(f string, v ...interface{}) { l.entry.Debugf(f, v...) }
func (l *DefaultLogger) Fatal(v ...interface{})            { l.entry.Fatal(v...) }
func (l *DefaultLogger) Fatalf(f string, v ...interface{}) { l.entry.Fatalf(f, v...) }

func (l *DefaultLogger) ToggleDebug(value bool) bool {
	if value {
		l.entry.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.SetLevel(logrus.InfoLevel)
	}
	return value
}

var _ types.Logger = (*DefaultLogger)(nil)
