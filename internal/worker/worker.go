// Package worker runs the message loop between the host and the functions
// compiled into this binary.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/watzon/alyx-worker/internal/bindings"
	"github.com/watzon/alyx-worker/internal/config"
	"github.com/watzon/alyx-worker/internal/executions"
	"github.com/watzon/alyx-worker/internal/functions"
	"github.com/watzon/alyx-worker/internal/metrics"
	"github.com/watzon/alyx-worker/internal/protocol"
	"github.com/watzon/alyx-worker/internal/transport"
	"github.com/watzon/alyx-worker/pkg/fn"
)

// Version is reported to the host in WorkerInitResponse.
const Version = "0.1.0"

var errNotInitialized = errors.New("worker is not initialized")

type state int32

const (
	stateConnected state = iota
	stateReady
)

// Option configures a Worker.
type Option func(*Worker)

// WithBindings replaces the default binding registry.
func WithBindings(reg *bindings.Registry) Option {
	return func(w *Worker) {
		w.bindings = reg
	}
}

// WithJournal records every invocation in j.
func WithJournal(j *executions.Journal) Option {
	return func(w *Worker) {
		w.journal = j
	}
}

// WithLogger sets the logger worker diagnostics and invocation loggers
// derive from. It defaults to the global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Worker) {
		w.base = l
	}
}

// WithRequestID sets the request id of the start_stream message. The host
// passes it to the worker on the command line.
func WithRequestID(id string) Option {
	return func(w *Worker) {
		w.requestID = id
	}
}

// Worker serves one host stream.
type Worker struct {
	cfg          *config.WorkerConfig
	id           string
	requestID    string
	catalog      *fn.Catalog
	bindings     *bindings.Registry
	journal      *executions.Journal
	base         zerolog.Logger
	log          zerolog.Logger
	forwardLevel zerolog.Level

	loader     *functions.Loader
	registry   *functions.Registry
	dispatcher *functions.Dispatcher
	correlator *executions.Correlator

	state atomic.Int32

	mu      sync.Mutex
	loading map[string]chan struct{}

	stream     transport.Stream
	sendMu     sync.RWMutex
	sendCh     chan *protocol.Message
	sendClosed bool
	handlers   sync.WaitGroup
}

// New creates a worker that resolves entry points in catalog.
func New(cfg *config.WorkerConfig, catalog *fn.Catalog, opts ...Option) *Worker {
	w := &Worker{
		cfg:      cfg,
		catalog:  catalog,
		bindings: bindings.Default(),
		base:     log.Logger,
		registry: functions.NewRegistry(),
		loading:  make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.id = cfg.ID
	if w.id == "" {
		w.id = uuid.New().String()
	}

	w.forwardLevel = zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(cfg.ForwardLogLevel); err == nil && cfg.ForwardLogLevel != "" {
		w.forwardLevel = lvl
	}

	w.loader = functions.NewLoader(catalog, w.bindings)
	w.dispatcher = functions.NewDispatcher(w.bindings, functions.NewPool(cfg.MaxSyncWorkers))
	w.correlator = executions.NewCorrelator(w.base, w)
	if w.journal != nil {
		w.correlator.SetJournal(w.journal)
	}

	w.log = w.base.With().Str("worker_id", w.id).Logger().Hook(systemHook{w: w})
	return w
}

// ID returns the id announced in start_stream.
func (w *Worker) ID() string {
	return w.id
}

// Functions returns the registry of loaded functions.
func (w *Worker) Functions() *functions.Registry {
	return w.registry
}

// Ready reports whether the init handshake has completed.
func (w *Worker) Ready() bool {
	return state(w.state.Load()) == stateReady
}

// Serve runs the message loop until the stream closes or ctx is canceled.
// It does not close the stream.
func (w *Worker) Serve(ctx context.Context, stream transport.Stream) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	size := w.cfg.SendBuffer
	if size <= 0 {
		size = config.DefaultSendBuffer
	}

	w.sendMu.Lock()
	w.stream = stream
	w.sendCh = make(chan *protocol.Message, size)
	w.sendClosed = false
	w.sendMu.Unlock()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		w.writeLoop(ctx, cancel)
	}()

	err := w.send(ctx, protocol.MessageTypeStartStream, w.requestID, &protocol.StartStream{WorkerID: w.id})
	if err == nil {
		log.Info().Str("worker_id", w.id).Msg("Worker stream started")
		err = w.readLoop(ctx)
	}

	cancel()
	w.waitHandlers()
	w.closeSend()
	<-writerDone

	log.Info().Str("worker_id", w.id).Msg("Worker stream stopped")
	return err
}

func (w *Worker) readLoop(ctx context.Context) error {
	for {
		msg, err := w.stream.Recv(ctx)
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrMalformed):
				w.log.Warn().Err(err).Msg("Ignoring malformed message")
				continue
			case errors.Is(err, io.EOF):
				log.Info().Str("worker_id", w.id).Msg("Host closed the stream")
				return nil
			case ctx.Err() != nil:
				return nil
			default:
				return fmt.Errorf("receiving message: %w", err)
			}
		}

		metrics.RecordMessageReceived(string(msg.Type))
		w.handle(ctx, msg)
	}
}

func (w *Worker) handle(ctx context.Context, msg *protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeWorkerInitRequest:
		w.handleInit(ctx, msg)
	case protocol.MessageTypeFunctionLoadRequest:
		w.handleLoad(ctx, msg)
	case protocol.MessageTypeInvocationRequest:
		w.handleInvocation(ctx, msg)
	default:
		metrics.RecordUnknownMessage()
		w.log.Warn().
			Str("request_id", msg.RequestID).
			Msgf("Ignoring unknown StreamingMessage content type %q", msg.Type)
	}
}

func (w *Worker) handleInit(ctx context.Context, msg *protocol.Message) {
	resp := &protocol.WorkerInitResponse{
		WorkerVersion: Version,
		Capabilities:  map[string]string{"language": "go"},
	}

	var req protocol.WorkerInitRequest
	if err := msg.Decode(&req); err != nil {
		resp.Result = protocol.Failure(&protocol.RPCException{Source: functions.SourceWorker, Message: err.Error()})
	} else {
		w.state.Store(int32(stateReady))
		resp.Result = protocol.Success()
		w.log.Info().
			Str("host_version", req.HostVersion).
			Str("function_app_directory", req.FunctionAppDirectory).
			Msg("Worker initialized")
	}

	w.reply(ctx, protocol.MessageTypeWorkerInitResponse, msg.RequestID, resp)
}

func (w *Worker) handleLoad(ctx context.Context, msg *protocol.Message) {
	var req protocol.FunctionLoadRequest
	if err := msg.Decode(&req); err != nil {
		w.reply(ctx, protocol.MessageTypeFunctionLoadResponse, msg.RequestID, &protocol.FunctionLoadResponse{
			Result: protocol.Failure(&protocol.RPCException{Source: functions.SourceWorker, Message: err.Error()}),
		})
		return
	}

	if !w.Ready() {
		w.reply(ctx, protocol.MessageTypeFunctionLoadResponse, msg.RequestID, &protocol.FunctionLoadResponse{
			FunctionID: req.FunctionID,
			Result:     protocol.Failure(&protocol.RPCException{Source: functions.SourceWorker, Message: errNotInitialized.Error()}),
		})
		return
	}

	prev, done := w.beginLoad(req.FunctionID)

	w.handlers.Add(1)
	go func() {
		defer w.handlers.Done()
		defer w.endLoad(req.FunctionID, done)

		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return
			}
		}

		w.reply(ctx, protocol.MessageTypeFunctionLoadResponse, msg.RequestID, w.load(&req))
	}()
}

func (w *Worker) load(req *protocol.FunctionLoadRequest) *protocol.FunctionLoadResponse {
	md := functions.MetadataFromProto(req.Metadata)

	def, err := w.loader.Load(req.FunctionID, md)
	if err != nil {
		metrics.RecordFunctionLoad("failure")
		w.log.Warn().
			Str("function", md.Name).
			Str("function_id", req.FunctionID).
			Err(err).
			Msg("Function load failed")
		return &protocol.FunctionLoadResponse{
			FunctionID: req.FunctionID,
			Result:     protocol.Failure(&protocol.RPCException{Source: functions.SourceLoad, Message: err.Error()}),
		}
	}

	replaced := w.registry.Register(def)
	metrics.RecordFunctionLoad("success")
	metrics.SetFunctionsLoaded(w.registry.Count())

	w.log.Info().
		Str("function", def.Name).
		Str("function_id", def.ID).
		Bool("replaced", replaced).
		Msg("Function loaded")

	return &protocol.FunctionLoadResponse{
		FunctionID: req.FunctionID,
		Result:     protocol.Success(),
	}
}

func (w *Worker) handleInvocation(ctx context.Context, msg *protocol.Message) {
	var req protocol.InvocationRequest
	if err := msg.Decode(&req); err != nil {
		res := functions.Failed(functions.SourceWorker, err)
		w.reply(ctx, protocol.MessageTypeInvocationResponse, msg.RequestID, res.Response(""))
		return
	}

	if !w.Ready() {
		res := functions.Failed(functions.SourceWorker, errNotInitialized)
		w.reply(ctx, protocol.MessageTypeInvocationResponse, msg.RequestID, res.Response(req.InvocationID))
		return
	}

	w.handlers.Add(1)
	go func() {
		defer w.handlers.Done()
		w.reply(ctx, protocol.MessageTypeInvocationResponse, msg.RequestID, w.invoke(ctx, &req))
	}()
}

func (w *Worker) invoke(ctx context.Context, req *protocol.InvocationRequest) *protocol.InvocationResponse {
	if err := w.awaitLoad(ctx, req.FunctionID); err != nil {
		return functions.Failed(functions.SourceWorker, err).Response(req.InvocationID)
	}

	def, ok := w.registry.Get(req.FunctionID)
	if !ok {
		err := fmt.Errorf("function not found: %s", req.FunctionID)
		return functions.Failed(functions.SourceNotFound, err).Response(req.InvocationID)
	}

	inv := functions.InvocationFromProto(req)
	res := w.correlator.WrapExecution(ctx, def, inv.ID, func(ctx context.Context) *functions.Result {
		return w.dispatcher.Invoke(ctx, def, inv)
	})
	return res.Response(inv.ID)
}

// beginLoad marks id as loading. prev is the pending load of the same id,
// if any, which the new load must wait for.
func (w *Worker) beginLoad(id string) (prev <-chan struct{}, done chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ch, ok := w.loading[id]; ok {
		prev = ch
	}
	done = make(chan struct{})
	w.loading[id] = done
	return prev, done
}

func (w *Worker) endLoad(id string, done chan struct{}) {
	w.mu.Lock()
	if w.loading[id] == done {
		delete(w.loading, id)
	}
	w.mu.Unlock()
	close(done)
}

func (w *Worker) awaitLoad(ctx context.Context, id string) error {
	w.mu.Lock()
	ch := w.loading[id]
	w.mu.Unlock()

	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) waitHandlers() {
	done := make(chan struct{})
	go func() {
		w.handlers.Wait()
		close(done)
	}()

	if w.cfg.ShutdownTimeout <= 0 {
		<-done
		return
	}

	select {
	case <-done:
	case <-time.After(w.cfg.ShutdownTimeout):
		log.Warn().
			Str("worker_id", w.id).
			Dur("timeout", w.cfg.ShutdownTimeout).
			Msg("Timed out waiting for in-flight handlers")
	}
}
