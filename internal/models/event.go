package models

import "time"

// EventMirror is the persistent copy of a bus message. Sequence is
// assigned by the database, never by the caller.
type EventMirror struct {
	Sequence   int64     `json:"sequence" db:"sequence"`
	Topic      string    `json:"topic" db:"topic"`
	Kind       string    `json:"kind" db:"kind"`
	Payload    JSONMap   `json:"payload" db:"payload"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
	TraceID    string    `json:"trace_id" db:"trace_id"`
	MessageID  *string   `json:"message_id,omitempty" db:"message_id"`
}

// DLQEvent records a bus message the pipeline could not mirror.
type DLQEvent struct {
	ID            string    `json:"id" db:"id"`
	OriginalTopic string    `json:"original_topic" db:"original_topic"`
	FailureReason string    `json:"failure_reason" db:"failure_reason"`
	Payload       string    `json:"payload" db:"payload"`
	ReceivedAt    time.Time `json:"received_at" db:"received_at"`
}
