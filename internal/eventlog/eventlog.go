// Package eventlog emits tagged audit payloads for off-system consumers.
// Emission is purely observational; nothing reads the result.
package eventlog

import (
	"github.com/sirupsen/logrus"
)

// Tags used by the session lifecycle.
const (
	TagNewGame            = "newgame"
	TagCompletedToCollect = "completed_to_collect"
	TagCompletedCollected = "completed_collected"
)

// Logger writes tagged events through logrus.
type Logger struct {
	log *logrus.Entry
}

// New creates an event logger.
func New() *Logger {
	return &Logger{log: logrus.WithField("component", "eventlog")}
}

// Emit writes one tagged payload.
func (l *Logger) Emit(tag string, owner string, payload any) {
	l.log.WithFields(logrus.Fields{
		"tag":     tag,
		"owner":   owner,
		"payload": payload,
	}).Info("event")
}
