// Package telemetry is the fire-and-forget event sink used for login analytics.
package telemetry

import (
	"context"

	"github.com/brizzai/tutor-auth/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink receives analytics events. Implementations must not block for long;
// callers never look at the outcome.
type Sink interface {
	Track(ctx context.Context, event string, props map[string]any)
}

// LogSink writes events to the structured log, tagged with an app session id.
type LogSink struct {
	sessionID string
}

// NewLogSink creates a sink with a fresh session id.
func NewLogSink() *LogSink {
	return &LogSink{sessionID: uuid.NewString()}
}

// SessionID returns the id attached to every event.
func (s *LogSink) SessionID() string {
	return s.sessionID
}

func (s *LogSink) Track(_ context.Context, event string, props map[string]any) {
	logger.Info("analytics event",
		zap.String("event", event),
		zap.String("session_id", s.sessionID),
		zap.Any("props", props),
	)
}

// NopSink drops all events.
type NopSink struct{}

func (NopSink) Track(context.Context, string, map[string]any) {}

// SafeTrack forwards to the sink and swallows any panic, so a broken sink
// never changes an auth outcome.
func SafeTrack(ctx context.Context, sink Sink, event string, props map[string]any) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("telemetry sink panicked", zap.String("event", event), zap.Any("panic", r))
		}
	}()
	sink.Track(ctx, event, props)
}
