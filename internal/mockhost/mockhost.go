// Package mockhost drives a worker over an in-memory stream the way the
// function host would. It is used by tests.
package mockhost

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/watzon/alyx-worker/internal/config"
	"github.com/watzon/alyx-worker/internal/functions"
	"github.com/watzon/alyx-worker/internal/protocol"
	"github.com/watzon/alyx-worker/internal/transport"
	"github.com/watzon/alyx-worker/internal/worker"
	"github.com/watzon/alyx-worker/pkg/fn"
)

// DefaultTimeout bounds every wait for a worker message.
const DefaultTimeout = 5 * time.Second

// Options configures Start.
type Options struct {
	Catalog       *fn.Catalog
	Config        *config.WorkerConfig
	WorkerOptions []worker.Option
	Timeout       time.Duration
}

// LoadResult is the outcome of LoadFunction.
type LoadResult struct {
	Response *protocol.FunctionLoadResponse
	// Logs are the records received while waiting for the response.
	Logs []*protocol.RPCLog
}

// InvokeResult is the outcome of InvokeFunction.
type InvokeResult struct {
	Response *protocol.InvocationResponse
	// Logs are the records received while waiting for the response.
	Logs []*protocol.RPCLog
}

// Host is the host side of one worker stream.
type Host struct {
	t          testing.TB
	scriptRoot string
	timeout    time.Duration

	stream   transport.Stream
	worker   *worker.Worker
	workerID string
	cancel   context.CancelFunc
	done     chan error

	mu        sync.Mutex
	logs      []*protocol.RPCLog
	functions map[string]string
	seq       int

	closeOnce sync.Once
	closeErr  error
}

// Start runs a worker against a new host and completes the init
// handshake. The host is closed when the test ends.
func Start(t testing.TB, scriptRoot string, opts Options) *Host {
	t.Helper()

	cfg := opts.Config
	if cfg == nil {
		def := config.Default().Worker
		cfg = &def
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = fn.Default
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hostEnd, workerEnd := transport.Pipe()
	w := worker.New(cfg, catalog, opts.WorkerOptions...)

	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		t:          t,
		scriptRoot: scriptRoot,
		timeout:    timeout,
		stream:     hostEnd,
		worker:     w,
		cancel:     cancel,
		done:       make(chan error, 1),
		functions:  make(map[string]string),
	}

	go func() {
		h.done <- w.Serve(ctx, workerEnd)
	}()
	t.Cleanup(func() {
		if err := h.Close(); err != nil {
			t.Errorf("closing mock host: %v", err)
		}
	})

	msg, err := h.Recv()
	if err != nil {
		t.Fatalf("waiting for start_stream: %v", err)
	}
	if msg.Type != protocol.MessageTypeStartStream {
		t.Fatalf("expected start_stream, got %s", msg.Type)
	}
	var start protocol.StartStream
	if err := msg.Decode(&start); err != nil {
		t.Fatalf("decoding start_stream: %v", err)
	}
	h.workerID = start.WorkerID

	if err := h.init(); err != nil {
		t.Fatalf("initializing worker: %v", err)
	}
	return h
}

func (h *Host) init() error {
	requestID := h.nextRequestID()
	if err := h.Send(protocol.MessageTypeWorkerInitRequest, requestID, &protocol.WorkerInitRequest{
		HostVersion:          "mock",
		FunctionAppDirectory: h.scriptRoot,
	}); err != nil {
		return err
	}

	msg, _, err := h.waitFor(protocol.MessageTypeWorkerInitResponse, requestID)
	if err != nil {
		return err
	}
	var resp protocol.WorkerInitResponse
	if err := msg.Decode(&resp); err != nil {
		return err
	}
	if !resp.Result.IsSuccess() {
		return fmt.Errorf("worker init failed: %+v", resp.Result.Exception)
	}
	return nil
}

// Worker returns the worker under test.
func (h *Host) Worker() *worker.Worker {
	return h.worker
}

// WorkerID returns the id the worker announced.
func (h *Host) WorkerID() string {
	return h.workerID
}

// Stream returns the host end of the stream.
func (h *Host) Stream() transport.Stream {
	return h.stream
}

// Send writes a message to the worker.
func (h *Host) Send(typ protocol.MessageType, requestID string, payload any) error {
	msg, err := protocol.NewMessage(typ, requestID, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.stream.Send(ctx, msg)
}

// Recv reads the next message from the worker. Log records are also kept
// for Logs.
func (h *Host) Recv() (*protocol.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	msg, err := h.stream.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Type == protocol.MessageTypeRPCLog {
		var rec protocol.RPCLog
		if err := msg.Decode(&rec); err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.logs = append(h.logs, &rec)
		h.mu.Unlock()
	}
	return msg, nil
}

// Logs returns every log record received so far.
func (h *Host) Logs() []*protocol.RPCLog {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*protocol.RPCLog(nil), h.logs...)
}

// waitFor reads until a message of type typ answering requestID arrives,
// collecting the log records received on the way.
func (h *Host) waitFor(typ protocol.MessageType, requestID string) (*protocol.Message, []*protocol.RPCLog, error) {
	var logs []*protocol.RPCLog
	for {
		msg, err := h.Recv()
		if err != nil {
			return nil, logs, fmt.Errorf("waiting for %s: %w", typ, err)
		}

		switch {
		case msg.Type == protocol.MessageTypeRPCLog:
			var rec protocol.RPCLog
			if err := msg.Decode(&rec); err != nil {
				return nil, logs, err
			}
			logs = append(logs, &rec)
		case msg.Type == typ && msg.RequestID == requestID:
			return msg, logs, nil
		}
	}
}

// LoadFunction loads the function in <scriptRoot>/<name>.
func (h *Host) LoadFunction(name string) (string, *LoadResult, error) {
	md, err := functions.MetadataFromDir(filepath.Join(h.scriptRoot, name))
	if err != nil {
		return "", nil, err
	}
	return h.LoadMetadata(md.Proto())
}

// LoadMetadata loads a function described by md under a new id.
func (h *Host) LoadMetadata(md protocol.FunctionMetadata) (string, *LoadResult, error) {
	functionID := uuid.New().String()
	res, err := h.LoadWithID(functionID, md)
	if err != nil {
		return "", nil, err
	}
	return functionID, res, nil
}

// LoadWithID loads a function under a chosen id.
func (h *Host) LoadWithID(functionID string, md protocol.FunctionMetadata) (*LoadResult, error) {
	requestID := h.nextRequestID()
	if err := h.Send(protocol.MessageTypeFunctionLoadRequest, requestID, &protocol.FunctionLoadRequest{
		FunctionID: functionID,
		Metadata:   md,
	}); err != nil {
		return nil, err
	}

	msg, logs, err := h.waitFor(protocol.MessageTypeFunctionLoadResponse, requestID)
	if err != nil {
		return nil, err
	}
	var resp protocol.FunctionLoadResponse
	if err := msg.Decode(&resp); err != nil {
		return nil, err
	}

	if resp.Result.IsSuccess() {
		h.mu.Lock()
		h.functions[md.Name] = functionID
		h.mu.Unlock()
	}
	return &LoadResult{Response: &resp, Logs: logs}, nil
}

// FunctionID returns the id of a function loaded by name.
func (h *Host) FunctionID(name string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.functions[name]
	return id, ok
}

// InvokeFunction invokes a function previously loaded by name.
func (h *Host) InvokeFunction(name string, inputs []protocol.ParameterBinding) (string, *InvokeResult, error) {
	return h.InvokeFunctionWithMetadata(name, inputs, nil)
}

// InvokeFunctionWithMetadata invokes a function with trigger metadata.
func (h *Host) InvokeFunctionWithMetadata(
	name string,
	inputs []protocol.ParameterBinding,
	meta map[string]*protocol.TypedData,
) (string, *InvokeResult, error) {
	functionID, ok := h.FunctionID(name)
	if !ok {
		return "", nil, fmt.Errorf("function %s is not loaded", name)
	}

	invocationID := uuid.New().String()
	res, err := h.Invoke(&protocol.InvocationRequest{
		InvocationID:    invocationID,
		FunctionID:      functionID,
		InputData:       inputs,
		TriggerMetadata: meta,
	})
	if err != nil {
		return "", nil, err
	}
	return invocationID, res, nil
}

// Invoke sends req as is and waits for its response.
func (h *Host) Invoke(req *protocol.InvocationRequest) (*InvokeResult, error) {
	requestID := h.nextRequestID()
	if err := h.Send(protocol.MessageTypeInvocationRequest, requestID, req); err != nil {
		return nil, err
	}

	msg, logs, err := h.waitFor(protocol.MessageTypeInvocationResponse, requestID)
	if err != nil {
		return nil, err
	}
	var resp protocol.InvocationResponse
	if err := msg.Decode(&resp); err != nil {
		return nil, err
	}
	return &InvokeResult{Response: &resp, Logs: logs}, nil
}

// Close ends the stream and waits for the worker to stop.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		_ = h.stream.Close()

		select {
		case err := <-h.done:
			h.closeErr = err
		case <-time.After(h.timeout):
			h.closeErr = errors.New("worker did not stop")
		}
		h.cancel()
	})
	return h.closeErr
}

func (h *Host) nextRequestID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	return fmt.Sprintf("req-%d", h.seq)
}

// LogsFor returns the records tagged with invocationID.
func LogsFor(logs []*protocol.RPCLog, invocationID string) []*protocol.RPCLog {
	var out []*protocol.RPCLog
	for _, rec := range logs {
		if rec.InvocationID == invocationID {
			out = append(out, rec)
		}
	}
	return out
}

// HTTPInput builds an httpTrigger input named name.
func HTTPInput(name, method string, query map[string]string, body string) protocol.ParameterBinding {
	return protocol.ParameterBinding{
		Name: name,
		Data: protocol.HTTPData(&protocol.RPCHTTP{
			Method: method,
			URL:    "http://localhost/api/" + name,
			Query:  query,
			Body:   protocol.StringData(body),
		}),
	}
}
