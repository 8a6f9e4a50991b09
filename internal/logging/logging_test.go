package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLogger(t *testing.T) {
	entry := Discard().WithField("request_id", "abc")
	ctx := ToContext(context.Background(), entry)
	assert.Same(t, entry, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestWatermillAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	a := NewWatermill(logrus.NewEntry(l)).With(watermill.LogFields{"topic": "seat-updates"})
	a.Error("publish failed", errors.New("boom"), watermill.LogFields{"attempt": 2})

	out := buf.String()
	require.Contains(t, out, `"topic":"seat-updates"`)
	assert.Contains(t, out, `"component":"watermill"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"attempt":2`)
}
