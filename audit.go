package goToken

import (
	"io"

	"github.com/rs/zerolog"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
)

// AuditEvent is one security-relevant event emitted by the Engine.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the Engine's asynchronous dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink drops every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers events in a channel for tests and custom consumers.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// LoggerSink writes events through a zerolog logger.
type LoggerSink = internalaudit.LoggerSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return internalaudit.NewLoggerSink(logger)
}
