package fn

import (
	"bytes"
	"time"
)

// TimerRequest is the value bound to a "timerTrigger" parameter.
type TimerRequest struct {
	// PastDue is set when the invocation runs later than scheduled.
	PastDue bool
}

// QueueMessage is a queue item, bound to "queueTrigger" inputs and
// accepted by "queue" outputs.
type QueueMessage struct {
	ID              string
	Body            []byte
	PopReceipt      string
	DequeueCount    int64
	InsertionTime   time.Time
	ExpirationTime  time.Time
	NextVisibleTime time.Time
}

// NewQueueMessage creates an outgoing queue message.
func NewQueueMessage(body string) *QueueMessage {
	return &QueueMessage{Body: []byte(body)}
}

// InputStream is the value bound to "blobTrigger" and "blob" inputs.
type InputStream struct {
	Name   string
	URI    string
	Length int64

	r *bytes.Reader
}

// NewInputStream creates a stream over data.
func NewInputStream(name, uri string, data []byte) *InputStream {
	return &InputStream{
		Name:   name,
		URI:    uri,
		Length: int64(len(data)),
		r:      bytes.NewReader(data),
	}
}

// Read implements io.Reader.
func (s *InputStream) Read(p []byte) (int, error) {
	if s.r == nil {
		s.r = bytes.NewReader(nil)
	}
	return s.r.Read(p)
}
