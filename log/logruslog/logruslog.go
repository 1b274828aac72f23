// Package logruslog adapts a logrus entry to cache.Logger.
package logruslog

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-identitymap/cache"
)

var _ cache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New returns a Logger writing through l with a component field. A nil l
// discards everything.
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.New()
		l.SetOutput(io.Discard)
	}
	return Logger{E: l.WithField("component", "identitymap")}
}

func (l Logger) Debug(msg string, f cache.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f cache.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f cache.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f cache.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }
