// Package executions correlates function log output with invocations and
// keeps an optional journal of past invocations.
package executions

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/watzon/alyx-worker/internal/functions"
	"github.com/watzon/alyx-worker/internal/metrics"
	"github.com/watzon/alyx-worker/internal/protocol"
	"github.com/watzon/alyx-worker/internal/requestctx"
)

// Sink receives log records in the order they are emitted.
type Sink interface {
	Emit(ctx context.Context, rec *protocol.RPCLog) error
}

// SinkFunc adapts a func to Sink.
type SinkFunc func(ctx context.Context, rec *protocol.RPCLog) error

func (f SinkFunc) Emit(ctx context.Context, rec *protocol.RPCLog) error {
	return f(ctx, rec)
}

// Correlator hands each invocation a logger whose records reach the sink
// tagged with the invocation id.
type Correlator struct {
	base    zerolog.Logger
	sink    Sink
	journal *Journal
}

// NewCorrelator creates a correlator. Invocation loggers derive from base.
func NewCorrelator(base zerolog.Logger, sink Sink) *Correlator {
	return &Correlator{base: base, sink: sink}
}

// SetJournal enables recording of invocations.
func (c *Correlator) SetJournal(j *Journal) {
	c.journal = j
}

// Span is the log scope of one invocation. It implements zerolog.Hook.
type Span struct {
	ctx          context.Context
	invocationID string
	sink         Sink

	mu  sync.Mutex
	seq int64
}

// Run forwards one log event. The sequence number is taken under the same
// lock as the emit, so sequence order is emission order. A record the sink
// rejects does not consume a number.
func (s *Span) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &protocol.RPCLog{
		InvocationID: s.invocationID,
		Category:     protocol.LogCategoryUser,
		Level:        LevelFor(level),
		Message:      msg,
		Sequence:     s.seq + 1,
	}
	if err := s.sink.Emit(s.ctx, rec); err != nil {
		log.Debug().Err(err).Str("invocation_id", s.invocationID).Msg("Dropped invocation log record")
		return
	}
	s.seq = rec.Sequence
	metrics.RecordLogRecord(string(protocol.LogCategoryUser))
}

// Count returns the number of records the sink accepted so far.
func (s *Span) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// InvocationID returns the id the span tags records with.
func (s *Span) InvocationID() string {
	return s.invocationID
}

// Begin opens a span for an invocation. The returned context carries the
// invocation logger (zerolog.Ctx) and the invocation id.
func (c *Correlator) Begin(ctx context.Context, invocationID, functionName string) (context.Context, *Span) {
	span := &Span{
		ctx:          ctx,
		invocationID: invocationID,
		sink:         c.sink,
	}

	logger := c.base.With().
		Str("invocation_id", invocationID).
		Str("function", functionName).
		Logger().
		Hook(span)

	ctx = requestctx.WithInvocationID(ctx, invocationID)
	return logger.WithContext(ctx), span
}

// WrapExecution runs execute inside a span and records the outcome.
func (c *Correlator) WrapExecution(
	ctx context.Context,
	def *functions.FunctionDefinition,
	invocationID string,
	execute func(ctx context.Context) *functions.Result,
) *functions.Result {
	startedAt := time.Now().UTC()

	ctx, span := c.Begin(ctx, invocationID, def.Name)
	ctx = requestctx.WithFunctionID(ctx, def.ID)
	ctx = requestctx.WithStartTime(ctx, startedAt)

	mode := "sync"
	if def.Async {
		mode = "async"
	}

	if c.journal != nil {
		if err := c.journal.Begin(ctx, &ExecutionLog{
			ID:           invocationID,
			FunctionID:   def.ID,
			FunctionName: def.Name,
			Mode:         mode,
			Status:       ExecutionStatusRunning,
			StartedAt:    startedAt,
		}); err != nil {
			log.Error().Err(err).Msg("Failed to journal invocation start")
		}
	}

	log.Debug().
		Str("function", def.Name).
		Str("invocation_id", invocationID).
		Str("mode", mode).
		Msg("Invoking function")

	metrics.IncrementInFlight()
	res := execute(ctx)
	metrics.DecrementInFlight()

	status := ExecutionStatusSuccess
	var errorMsg string
	if !res.Succeeded() {
		status = ExecutionStatusFailed
		if res.Exception != nil {
			errorMsg = res.Exception.Message
		}
	}

	metrics.RecordFunctionInvocation(def.Name, mode, string(status), res.Duration)

	if c.journal != nil {
		if err := c.journal.Finish(ctx, invocationID, status, errorMsg, res.Duration, span.Count()); err != nil {
			log.Error().Err(err).Msg("Failed to journal invocation result")
		}
	}

	if res.Succeeded() {
		log.Debug().
			Str("function", def.Name).
			Str("invocation_id", invocationID).
			Dur("duration", res.Duration).
			Int64("logs", span.Count()).
			Msg("Function completed successfully")
	} else {
		log.Debug().
			Str("function", def.Name).
			Str("invocation_id", invocationID).
			Str("error_source", res.Exception.Source).
			Str("error_message", errorMsg).
			Msg("Function returned error")
	}

	return res
}

// LevelFor maps a zerolog level to the host's log level.
func LevelFor(level zerolog.Level) protocol.LogLevel {
	switch level {
	case zerolog.TraceLevel:
		return protocol.LogLevelTrace
	case zerolog.DebugLevel:
		return protocol.LogLevelDebug
	case zerolog.WarnLevel:
		return protocol.LogLevelWarning
	case zerolog.ErrorLevel:
		return protocol.LogLevelError
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return protocol.LogLevelCritical
	default:
		return protocol.LogLevelInformation
	}
}
