package worker

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/watzon/alyx-worker/internal/executions"
	"github.com/watzon/alyx-worker/internal/metrics"
	"github.com/watzon/alyx-worker/internal/protocol"
	"github.com/watzon/alyx-worker/internal/transport"
)

// Emit queues an invocation log record. It blocks while the outbound
// queue is full.
func (w *Worker) Emit(ctx context.Context, rec *protocol.RPCLog) error {
	msg, err := protocol.NewMessage(protocol.MessageTypeRPCLog, "", rec)
	if err != nil {
		return err
	}
	return w.enqueue(ctx, msg)
}

func (w *Worker) send(ctx context.Context, typ protocol.MessageType, requestID string, payload any) error {
	msg, err := protocol.NewMessage(typ, requestID, payload)
	if err != nil {
		return err
	}
	return w.enqueue(ctx, msg)
}

// reply sends a response. A response that cannot be queued is only logged;
// the stream is already going away when that happens.
func (w *Worker) reply(ctx context.Context, typ protocol.MessageType, requestID string, payload any) {
	if err := w.send(ctx, typ, requestID, payload); err != nil {
		log.Debug().
			Err(err).
			Str("type", string(typ)).
			Str("request_id", requestID).
			Msg("Dropped response")
	}
}

func (w *Worker) enqueue(ctx context.Context, msg *protocol.Message) error {
	w.sendMu.RLock()
	defer w.sendMu.RUnlock()

	if w.sendCh == nil || w.sendClosed {
		return transport.ErrClosed
	}

	select {
	case w.sendCh <- msg:
		metrics.SetOutboundQueueDepth(len(w.sendCh))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryEnqueue queues msg unless the queue is full.
func (w *Worker) tryEnqueue(msg *protocol.Message) bool {
	w.sendMu.RLock()
	defer w.sendMu.RUnlock()

	if w.sendCh == nil || w.sendClosed {
		return false
	}

	select {
	case w.sendCh <- msg:
		return true
	default:
		return false
	}
}

func (w *Worker) closeSend() {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	if w.sendCh != nil && !w.sendClosed {
		w.sendClosed = true
		close(w.sendCh)
	}
}

// writeLoop is the only caller of stream.Send. After a send fails it keeps
// draining the queue so producers never block on a dead stream.
func (w *Worker) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	sendCtx := context.WithoutCancel(ctx)
	failed := false

	for msg := range w.sendCh {
		metrics.SetOutboundQueueDepth(len(w.sendCh))
		if failed {
			continue
		}
		if err := w.stream.Send(sendCtx, msg); err != nil {
			log.Error().Err(err).Str("worker_id", w.id).Msg("Failed to send message to host")
			failed = true
			cancel()
		}
	}
}

// systemHook forwards worker diagnostics to the host as System logs.
type systemHook struct {
	w *Worker
}

func (h systemHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if level < h.w.forwardLevel {
		return
	}

	rec := &protocol.RPCLog{
		Category: protocol.LogCategorySystem,
		Level:    executions.LevelFor(level),
		Message:  msg,
	}
	m, err := protocol.NewMessage(protocol.MessageTypeRPCLog, "", rec)
	if err != nil {
		return
	}
	if h.w.tryEnqueue(m) {
		metrics.RecordLogRecord(string(protocol.LogCategorySystem))
	}
}
