package logging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// WatermillAdapter routes watermill logs through logrus.
type WatermillAdapter struct {
	entry *logrus.Entry
}

// NewWatermill wraps entry; a nil entry uses the standard logger.
func NewWatermill(entry *logrus.Entry) *WatermillAdapter {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return &WatermillAdapter{entry: entry.WithField("component", "watermill")}
}

func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{entry: a.entry.WithFields(logrus.Fields(fields))}
}

var _ watermill.LoggerAdapter = (*WatermillAdapter)(nil)
