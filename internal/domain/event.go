package domain

import (
	"context"
	"errors"
	"time"
)

// ErrMalformedMessage marks input that can never be handled. The pipeline
// drops such messages without retrying them.
var ErrMalformedMessage = errors.New("malformed message")

// RawEvent is one message consumed from a weather or farm event topic.
// Commit is nil for events that did not come from a Kafka reader.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// LogAttrs returns the message position as slog key/value pairs.
func (e RawEvent) LogAttrs() []any {
	return []any{"topic", e.Topic, "partition", e.Partition, "offset", e.Offset}
}
