package transport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/watzon/alyx-worker/internal/protocol"
)

const pipeBuffer = 1024

// Pipe returns the two ends of an in-memory stream. Messages are JSON
// encoded on Send and decoded on Recv, as they are on a real connection.
// Closing either end closes both.
func Pipe() (Stream, Stream) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	shared := &pipeState{done: make(chan struct{})}

	a := &pipeEnd{in: ba, out: ab, state: shared}
	b := &pipeEnd{in: ab, out: ba, state: shared}
	return a, b
}

type pipeState struct {
	done chan struct{}
	once sync.Once
}

type pipeEnd struct {
	in    <-chan []byte
	out   chan<- []byte
	state *pipeState
}

func (p *pipeEnd) Recv(ctx context.Context) (*protocol.Message, error) {
	select {
	case data := <-p.in:
		return decode(data)
	default:
	}

	select {
	case data := <-p.in:
		return decode(data)
	case <-p.state.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Send(ctx context.Context, msg *protocol.Message) error {
	select {
	case <-p.state.done:
		return ErrClosed
	default:
	}

	data, err := encode(msg)
	if err != nil {
		return err
	}

	select {
	case p.out <- data:
		return nil
	case <-p.state.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.state.once.Do(func() {
		close(p.state.done)
	})
	return nil
}

// SendRaw writes an undecoded frame to the peer. It exists so tests can
// feed malformed input through a pipe.
func SendRaw(s Stream, data []byte) error {
	p, ok := s.(*pipeEnd)
	if !ok {
		return fmt.Errorf("%T is not a pipe", s)
	}
	select {
	case p.out <- data:
		return nil
	case <-p.state.done:
		return ErrClosed
	}
}
