package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is the canonical audit event model used by internal dispatching and root APIs.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    int64             `json:"user_id,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	TokenID   string            `json:"token_id,omitempty"`
	TokenType string            `json:"token_type,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// LoggerSink writes events as structured log lines. Failed events log at warn level.
type LoggerSink struct {
	logger zerolog.Logger
}

func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) Emit(ctx context.Context, event Event) {
	ev := s.logger.Info()
	if !event.Success {
		ev = s.logger.Warn()
	}
	ev = ev.Str("event_type", event.EventType).
		Time("event_time", event.Timestamp).
		Bool("success", event.Success)
	if event.UserID != 0 {
		ev = ev.Int64("user_id", event.UserID)
	}
	if event.TokenID != "" {
		ev = ev.Str("token_id", event.TokenID)
	}
	if event.TokenType != "" {
		ev = ev.Str("token_type", event.TokenType)
	}
	if event.IP != "" {
		ev = ev.Str("ip", event.IP)
	}
	if event.Error != "" {
		ev = ev.Str("error", event.Error)
	}
	for k, v := range event.Metadata {
		ev = ev.Str(k, v)
	}
	ev.Msg("audit")
}
