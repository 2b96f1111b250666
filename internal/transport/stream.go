// Package transport carries protocol messages between the worker and its host.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/watzon/alyx-worker/internal/protocol"
)

var (
	// ErrClosed is returned by Send after the stream is closed.
	ErrClosed = errors.New("stream closed")

	// ErrMalformed marks a frame that could not be decoded. The stream is
	// still usable after Recv returns it.
	ErrMalformed = errors.New("malformed message")
)

// Stream is an ordered, bidirectional message stream. Recv returns io.EOF
// once the peer has closed the stream.
type Stream interface {
	Recv(ctx context.Context) (*protocol.Message, error)
	Send(ctx context.Context, msg *protocol.Message) error
	Close() error
}

func encode(msg *protocol.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", msg.Type, err)
	}
	return data, nil
}

func decode(data []byte) (*protocol.Message, error) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return &msg, nil
}
