package worker_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/watzon/alyx-worker/internal/config"
	"github.com/watzon/alyx-worker/internal/functions"
	"github.com/watzon/alyx-worker/internal/mockhost"
	"github.com/watzon/alyx-worker/internal/protocol"
	"github.com/watzon/alyx-worker/internal/testfuncs"
	"github.com/watzon/alyx-worker/internal/transport"
	"github.com/watzon/alyx-worker/internal/worker"
)

func startHost(t *testing.T) *mockhost.Host {
	t.Helper()
	return mockhost.Start(t, testfuncs.FunctionsDir(), mockhost.Options{
		Catalog:       testfuncs.Catalog,
		WorkerOptions: []worker.Option{worker.WithLogger(zerolog.New(io.Discard))},
	})
}

func loadOK(t *testing.T, h *mockhost.Host, name string) {
	t.Helper()
	_, res, err := h.LoadFunction(name)
	require.NoError(t, err)
	require.True(t, res.Response.Result.IsSuccess(), "load %s: %+v", name, res.Response.Result.Exception)
}

func messages(logs []*protocol.RPCLog) []string {
	out := make([]string, 0, len(logs))
	for _, rec := range logs {
		out = append(out, rec.Message)
	}
	return out
}

func TestWorker_SyncLogging(t *testing.T) {
	h := startHost(t)
	loadOK(t, h, "sync_logging")

	invocationID, res, err := h.InvokeFunction("sync_logging", []protocol.ParameterBinding{
		mockhost.HTTPInput("req", "GET", nil, ""),
	})
	require.NoError(t, err)

	resp := res.Response
	require.Equal(t, invocationID, resp.InvocationID)
	require.Equal(t, protocol.StatusSuccess, resp.Result.Status)
	require.NotNil(t, resp.ReturnValue)
	require.NotNil(t, resp.ReturnValue.String)
	require.Equal(t, "OK-sync", *resp.ReturnValue.String)

	logs := mockhost.LogsFor(res.Logs, invocationID)
	require.Len(t, logs, 1)
	require.Equal(t, "a gracefully handled error", logs[0].Message)
	require.Equal(t, protocol.LogLevelError, logs[0].Level)
	require.Equal(t, protocol.LogCategoryUser, logs[0].Category)
	require.Equal(t, int64(1), logs[0].Sequence)
}

func TestWorker_AsyncLogging(t *testing.T) {
	h := startHost(t)
	loadOK(t, h, "async_logging")

	invocationID, res, err := h.InvokeFunction("async_logging", []protocol.ParameterBinding{
		mockhost.HTTPInput("req", "GET", nil, ""),
	})
	require.NoError(t, err)

	resp := res.Response
	require.Equal(t, protocol.StatusSuccess, resp.Result.Status)
	require.NotNil(t, resp.ReturnValue.String)
	require.Equal(t, "OK-async", *resp.ReturnValue.String)

	logs := mockhost.LogsFor(res.Logs, invocationID)
	require.Equal(t, []string{"one error", "and another error"}, messages(logs))
	for i, rec := range logs {
		require.Equal(t, protocol.LogLevelError, rec.Level)
		require.Equal(t, int64(i+1), rec.Sequence)
	}
}

func TestWorker_UnknownMessageIsIgnored(t *testing.T) {
	h := startHost(t)

	require.NoError(t, h.Send("worker_heartbeat", "hb-1", map[string]string{"status": "alive"}))

	_, res, err := h.LoadFunction("return_out")
	require.NoError(t, err)
	require.True(t, res.Response.Result.IsSuccess())

	var found *protocol.RPCLog
	for _, rec := range res.Logs {
		if strings.Contains(rec.Message, "unknown StreamingMessage") {
			found = rec
		}
	}
	require.NotNil(t, found, "expected a log about the unknown message, got %v", messages(res.Logs))
	require.Equal(t, protocol.LogCategorySystem, found.Category)
	require.Equal(t, protocol.LogLevelWarning, found.Level)
	require.Contains(t, found.Message, "worker_heartbeat")
}

func TestWorker_ReturnOut(t *testing.T) {
	h := startHost(t)
	loadOK(t, h, "return_out")

	_, res, err := h.InvokeFunction("return_out", []protocol.ParameterBinding{
		mockhost.HTTPInput("req", "GET", nil, ""),
	})
	require.NoError(t, err)

	resp := res.Response
	require.True(t, resp.Result.IsSuccess())
	require.Nil(t, resp.ReturnValue)
	require.Len(t, resp.OutputData, 1)
	require.Equal(t, "foo", resp.OutputData[0].Name)

	out := resp.OutputData[0].Data
	require.NotNil(t, out.HTTP)
	require.Equal(t, "200", out.HTTP.StatusCode)
	require.Equal(t, []byte("FOO"), out.HTTP.Body.Bytes)
}

func TestWorker_ReturnHTTP(t *testing.T) {
	h := startHost(t)
	loadOK(t, h, "return_http")

	_, res, err := h.InvokeFunction("return_http", []protocol.ParameterBinding{
		mockhost.HTTPInput("req", "POST", nil, ""),
	})
	require.NoError(t, err)

	ret := res.Response.ReturnValue
	require.NotNil(t, ret.HTTP)
	require.Equal(t, "201", ret.HTTP.StatusCode)
	require.Equal(t, "text/html; charset=utf-8", ret.HTTP.Headers["Content-Type"])
	require.Equal(t, []byte("<h1>POST</h1>"), ret.HTTP.Body.Bytes)
}

func TestWorker_ReturnError(t *testing.T) {
	h := startHost(t)
	loadOK(t, h, "return_error")

	t.Run("error", func(t *testing.T) {
		_, res, err := h.InvokeFunction("return_error", []protocol.ParameterBinding{
			mockhost.HTTPInput("req", "GET", nil, ""),
		})
		require.NoError(t, err)

		result := res.Response.Result
		require.Equal(t, protocol.StatusFailure, result.Status)
		require.Equal(t, functions.SourceFunction, result.Exception.Source)
		require.Equal(t, "name is required", result.Exception.Message)
		require.Nil(t, res.Response.ReturnValue)
	})

	t.Run("success", func(t *testing.T) {
		_, res, err := h.InvokeFunction("return_error", []protocol.ParameterBinding{
			mockhost.HTTPInput("req", "GET", map[string]string{"name": "bob"}, ""),
		})
		require.NoError(t, err)
		require.True(t, res.Response.Result.IsSuccess())
		require.Equal(t, "hello bob", *res.Response.ReturnValue.String)
	})
}

func TestWorker_PanicIsReported(t *testing.T) {
	h := startHost(t)
	loadOK(t, h, "panicking")

	invocationID, res, err := h.InvokeFunction("panicking", []protocol.ParameterBinding{
		mockhost.HTTPInput("req", "GET", nil, ""),
	})
	require.NoError(t, err)

	exc := res.Response.Result.Exception
	require.NotNil(t, exc)
	require.Equal(t, functions.SourcePanic, exc.Source)
	require.Equal(t, "panic: something went very wrong", exc.Message)
	require.NotEmpty(t, exc.StackTrace)

	logs := mockhost.LogsFor(res.Logs, invocationID)
	require.Equal(t, []string{"Function panicked"}, messages(logs))

	// The worker keeps serving after a panic.
	_, res, err = h.InvokeFunction("panicking", []protocol.ParameterBinding{
		mockhost.HTTPInput("req", "GET", nil, ""),
	})
	require.NoError(t, err)
	require.Equal(t, functions.SourcePanic, res.Response.Result.Exception.Source)
}

func TestWorker_QueueTrigger(t *testing.T) {
	h := startHost(t)
	loadOK(t, h, "queue_echo")

	invocationID, res, err := h.InvokeFunctionWithMetadata("queue_echo",
		[]protocol.ParameterBinding{{Name: "msg", Data: protocol.StringData("hello")}},
		map[string]*protocol.TypedData{
			"Id":           protocol.StringData("msg-1"),
			"DequeueCount": protocol.IntData(2),
		},
	)
	require.NoError(t, err)

	resp := res.Response
	require.True(t, resp.Result.IsSuccess(), "%+v", resp.Result.Exception)
	require.Len(t, resp.OutputData, 1)
	require.Equal(t, "out", resp.OutputData[0].Name)
	require.Equal(t, "echo: hello", *resp.OutputData[0].Data.String)

	logs := mockhost.LogsFor(res.Logs, invocationID)
	require.Equal(t, []string{"processing message"}, messages(logs))
	require.Equal(t, protocol.LogLevelInformation, logs[0].Level)
}

func TestWorker_BlobTrigger(t *testing.T) {
	h := startHost(t)
	loadOK(t, h, "blob_size")

	_, res, err := h.InvokeFunctionWithMetadata("blob_size",
		[]protocol.ParameterBinding{{Name: "blob", Data: protocol.BytesData([]byte("12345"))}},
		map[string]*protocol.TypedData{"Name": protocol.StringData("data.bin")},
	)
	require.NoError(t, err)
	require.True(t, res.Response.Result.IsSuccess(), "%+v", res.Response.Result.Exception)
	require.Equal(t, "5", *res.Response.ReturnValue.String)
}

func TestWorker_CustomEntryPoint(t *testing.T) {
	h := startHost(t)
	loadOK(t, h, "custom_entry")

	_, res, err := h.InvokeFunction("custom_entry", []protocol.ParameterBinding{
		mockhost.HTTPInput("req", "PUT", nil, ""),
	})
	require.NoError(t, err)
	require.Equal(t, "custom PUT", *res.Response.ReturnValue.String)
}

func TestWorker_MissingInput(t *testing.T) {
	h := startHost(t)
	loadOK(t, h, "sync_logging")

	_, res, err := h.InvokeFunction("sync_logging", nil)
	require.NoError(t, err)

	exc := res.Response.Result.Exception
	require.NotNil(t, exc)
	require.Equal(t, functions.SourceBinding, exc.Source)
	require.Contains(t, exc.Message, "binding req")
}

func TestWorker_InvokeUnknownFunction(t *testing.T) {
	h := startHost(t)

	res, err := h.Invoke(&protocol.InvocationRequest{
		InvocationID: "inv-1",
		FunctionID:   "does-not-exist",
	})
	require.NoError(t, err)

	resp := res.Response
	require.Equal(t, "inv-1", resp.InvocationID)
	require.Equal(t, protocol.StatusFailure, resp.Result.Status)
	require.Equal(t, functions.SourceNotFound, resp.Result.Exception.Source)
	require.Equal(t, "function not found: does-not-exist", resp.Result.Exception.Message)
}

func TestWorker_ReloadReplacesFunction(t *testing.T) {
	h := startHost(t)

	md, err := functions.MetadataFromDir(testfuncs.FunctionsDir() + "/return_http")
	require.NoError(t, err)

	res, err := h.LoadWithID("fn-1", md.Proto())
	require.NoError(t, err)
	require.True(t, res.Response.Result.IsSuccess())
	require.Equal(t, "fn-1", res.Response.FunctionID)

	md, err = functions.MetadataFromDir(testfuncs.FunctionsDir() + "/custom_entry")
	require.NoError(t, err)
	res, err = h.LoadWithID("fn-1", md.Proto())
	require.NoError(t, err)
	require.True(t, res.Response.Result.IsSuccess())

	require.Equal(t, 1, h.Worker().Functions().Count())
	def, ok := h.Worker().Functions().Get("fn-1")
	require.True(t, ok)
	require.Equal(t, "custom_entry", def.Name)
}

func TestWorker_BrokenFunctions(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{"missing_go_param", "the following parameters are declared in function.json but not in Go: 'req'"},
		{"missing_json_param", "the following parameters are declared in Go but not in function.json: 'spam'"},
		{"wrong_param_dir", `binding foo is declared to have the "out" direction, but its annotation in Go is not *fn.Out`},
		{"wrong_binding_dir", `binding foo is declared to have the "in" direction in function.json, but its annotation is *fn.Out in Go`},
		{"invalid_context_param", `the "context" parameter is expected to be of type *fn.Context, got string`},
		{"inout_param", `binding foo: "inout" bindings are not supported`},
		{"return_param_in", `"$return" binding must have direction set to "out"`},
		{"invalid_return_anno", `Go return annotation "int" does not match binding type "http"`},
		{"invalid_return_anno_non_type", "has invalid non-type return annotation 123"},
		{"invalid_http_trigger_anno", `type of req binding in function.json "httpTrigger" does not match its Go annotation "int"`},
		{"invalid_out_anno", `type of ret binding in function.json "queue" does not match its Go annotation "float64"`},
		{"invalid_in_anno", `type of req binding in function.json "httpTrigger" does not match its Go annotation "*fn.HTTPResponse"`},
		{"invalid_in_anno_non_type", "binding req has invalid non-type annotation 123"},
		{"unsupported_bind_type", `unknown type for binding ret: "yolo"`},
		{"unsupported_ret_type", `unknown type for binding $return: "yolo"`},
		{"bad_result_shape", "must return at most a value and an error"},
		{"syntax_error", "syntax error"},
		{"unregistered", "script unregistered/main.go is not registered in this worker"},
	}

	h := mockhost.Start(t, testfuncs.BrokenFunctionsDir(), mockhost.Options{
		Catalog:       testfuncs.Catalog,
		WorkerOptions: []worker.Option{worker.WithLogger(zerolog.New(io.Discard))},
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			functionID, res, err := h.LoadFunction(tt.name)
			require.NoError(t, err)

			resp := res.Response
			require.Equal(t, functionID, resp.FunctionID)
			require.Equal(t, protocol.StatusFailure, resp.Result.Status)
			require.Equal(t, functions.SourceLoad, resp.Result.Exception.Source)
			require.Contains(t, resp.Result.Exception.Message, "cannot load the "+tt.name+" function: ")
			require.Contains(t, resp.Result.Exception.Message, tt.message)

			_, ok := h.Worker().Functions().Get(functionID)
			require.False(t, ok)
		})
	}
}

func TestWorker_ConcurrentInvocations(t *testing.T) {
	h := startHost(t)
	loadOK(t, h, "sync_logging")
	loadOK(t, h, "async_logging")

	functionIDs := map[string]string{}
	for _, name := range []string{"sync_logging", "async_logging"} {
		id, ok := h.FunctionID(name)
		require.True(t, ok)
		functionIDs[name] = id
	}

	const n = 10
	want := map[string]string{}
	for i := 0; i < n; i++ {
		name := "sync_logging"
		if i%2 == 1 {
			name = "async_logging"
		}
		invocationID := name + "-" + string(rune('a'+i))
		want[invocationID] = name

		require.NoError(t, h.Send(protocol.MessageTypeInvocationRequest, invocationID, &protocol.InvocationRequest{
			InvocationID: invocationID,
			FunctionID:   functionIDs[name],
			InputData:    []protocol.ParameterBinding{mockhost.HTTPInput("req", "GET", nil, "")},
		}))
	}

	got := map[string]*protocol.InvocationResponse{}
	for len(got) < n {
		msg, err := h.Recv()
		require.NoError(t, err)
		if msg.Type != protocol.MessageTypeInvocationResponse {
			continue
		}
		var resp protocol.InvocationResponse
		require.NoError(t, msg.Decode(&resp))
		require.Equal(t, msg.RequestID, resp.InvocationID)
		got[resp.InvocationID] = &resp
	}

	logs := h.Logs()
	for invocationID, name := range want {
		resp := got[invocationID]
		require.NotNil(t, resp, invocationID)
		require.True(t, resp.Result.IsSuccess())

		tagged := mockhost.LogsFor(logs, invocationID)
		if name == "sync_logging" {
			require.Equal(t, "OK-sync", *resp.ReturnValue.String)
			require.Equal(t, []string{"a gracefully handled error"}, messages(tagged))
		} else {
			require.Equal(t, "OK-async", *resp.ReturnValue.String)
			require.Equal(t, []string{"one error", "and another error"}, messages(tagged))
		}
	}
}

func TestWorker_MalformedMessageIsSkipped(t *testing.T) {
	h := startHost(t)

	require.NoError(t, transport.SendRaw(h.Stream(), []byte("{not json")))

	_, res, err := h.LoadFunction("sync_logging")
	require.NoError(t, err)
	require.True(t, res.Response.Result.IsSuccess())
	require.Contains(t, messages(res.Logs), "Ignoring malformed message")
}

func TestWorker_ForwardLogLevel(t *testing.T) {
	cfg := config.Default().Worker
	cfg.ForwardLogLevel = "error"

	h := mockhost.Start(t, testfuncs.FunctionsDir(), mockhost.Options{
		Catalog:       testfuncs.Catalog,
		Config:        &cfg,
		WorkerOptions: []worker.Option{worker.WithLogger(zerolog.New(io.Discard))},
	})

	_, res, err := h.LoadFunction("sync_logging")
	require.NoError(t, err)
	require.True(t, res.Response.Result.IsSuccess())
	for _, rec := range res.Logs {
		require.NotEqual(t, protocol.LogCategorySystem, rec.Category, rec.Message)
	}

	// User logs are not filtered.
	invocationID, res2, err := h.InvokeFunction("sync_logging", []protocol.ParameterBinding{
		mockhost.HTTPInput("req", "GET", nil, ""),
	})
	require.NoError(t, err)
	require.Len(t, mockhost.LogsFor(res2.Logs, invocationID), 1)
}

func TestWorker_WorkerID(t *testing.T) {
	cfg := config.Default().Worker
	cfg.ID = "worker-42"

	h := mockhost.Start(t, testfuncs.FunctionsDir(), mockhost.Options{
		Catalog: testfuncs.Catalog,
		Config:  &cfg,
	})
	require.Equal(t, "worker-42", h.WorkerID())
	require.Equal(t, "worker-42", h.Worker().ID())
	require.True(t, h.Worker().Ready())
}

func TestWorker_RequestsBeforeInit(t *testing.T) {
	cfg := config.Default().Worker
	w := worker.New(&cfg, testfuncs.Catalog, worker.WithLogger(zerolog.New(io.Discard)))

	hostEnd, workerEnd := transport.Pipe()
	done := make(chan error, 1)
	go func() { done <- w.Serve(context.Background(), workerEnd) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	recv := func(typ protocol.MessageType) *protocol.Message {
		for {
			msg, err := hostEnd.Recv(ctx)
			require.NoError(t, err)
			if msg.Type == typ {
				return msg
			}
		}
	}

	recv(protocol.MessageTypeStartStream)
	require.False(t, w.Ready())

	md, err := functions.MetadataFromDir(testfuncs.FunctionsDir() + "/sync_logging")
	require.NoError(t, err)

	msg, err := protocol.NewMessage(protocol.MessageTypeFunctionLoadRequest, "load-1", &protocol.FunctionLoadRequest{
		FunctionID: "fn-1",
		Metadata:   md.Proto(),
	})
	require.NoError(t, err)
	require.NoError(t, hostEnd.Send(ctx, msg))

	var loadResp protocol.FunctionLoadResponse
	require.NoError(t, recv(protocol.MessageTypeFunctionLoadResponse).Decode(&loadResp))
	require.Equal(t, "fn-1", loadResp.FunctionID)
	require.Equal(t, protocol.StatusFailure, loadResp.Result.Status)
	require.Equal(t, "worker is not initialized", loadResp.Result.Exception.Message)

	msg, err = protocol.NewMessage(protocol.MessageTypeInvocationRequest, "inv-1", &protocol.InvocationRequest{
		InvocationID: "inv-1",
		FunctionID:   "fn-1",
	})
	require.NoError(t, err)
	require.NoError(t, hostEnd.Send(ctx, msg))

	var invResp protocol.InvocationResponse
	require.NoError(t, recv(protocol.MessageTypeInvocationResponse).Decode(&invResp))
	require.Equal(t, "inv-1", invResp.InvocationID)
	require.Equal(t, protocol.StatusFailure, invResp.Result.Status)

	require.NoError(t, hostEnd.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_ServeStopsOnCancel(t *testing.T) {
	cfg := config.Default().Worker
	w := worker.New(&cfg, testfuncs.Catalog, worker.WithLogger(zerolog.New(io.Discard)))

	hostEnd, workerEnd := transport.Pipe()
	defer hostEnd.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx, workerEnd) }()

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer recvCancel()
	msg, err := hostEnd.Recv(recvCtx)
	require.NoError(t, err)
	require.Equal(t, protocol.MessageTypeStartStream, msg.Type)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
