// Package testfuncs registers the functions used by the worker's own tests.
// Their manifests live under testdata/functions and
// testdata/broken_functions, one directory per function.
package testfuncs

import (
	"errors"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/watzon/alyx-worker/pkg/fn"
)

// Catalog holds every test function. It is separate from fn.Default so
// tests never see functions registered by other packages.
var Catalog = fn.NewCatalog()

// Dir returns the absolute path of testdata/<name>.
func Dir(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata", name)
}

// FunctionsDir holds functions that load and run.
func FunctionsDir() string { return Dir("functions") }

// BrokenFunctionsDir holds functions that fail to load.
func BrokenFunctionsDir() string { return Dir("broken_functions") }

func init() {
	registerFunctions(Catalog)
	registerBroken(Catalog)
}

func registerFunctions(c *fn.Catalog) {
	c.Register("sync_logging/main.go", "Main", SyncLogging, fn.Params("context", "req"))
	c.Register("async_logging/main.go", "Main", AsyncLogging, fn.Params("context", "req"), fn.Async())
	c.Register("return_out/main.go", "Main", ReturnOut, fn.Params("req", "foo"))
	c.Register("return_http/main.go", "Main", ReturnHTTP, fn.Params("req"))
	c.Register("return_error/main.go", "Main", ReturnError, fn.Params("req"))
	c.Register("panicking/main.go", "Main", Panicking, fn.Params("req"))
	c.Register("queue_echo/main.go", "Main", QueueEcho, fn.Params("context", "msg", "out"))
	c.Register("blob_size/main.go", "Main", BlobSize, fn.Params("blob"))
	c.Register("slow_sync/main.go", "Main", SlowSync, fn.Params("context", "req"))
	c.Register("custom_entry/main.go", "Handle", CustomEntry, fn.Params("req"))
}

// SyncLogging logs one error and returns a plain body.
func SyncLogging(ctx *fn.Context, req *fn.HTTPRequest) string {
	ctx.Logger().Error().Msg("a gracefully handled error")
	return "OK-sync"
}

// AsyncLogging logs twice with a pause in between.
func AsyncLogging(ctx *fn.Context, req *fn.HTTPRequest) (string, error) {
	ctx.Logger().Error().Msg("one error")

	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	ctx.Logger().Error().Msg("and another error")
	return "OK-async", nil
}

// ReturnOut writes its response through an output binding.
func ReturnOut(req *fn.HTTPRequest, foo *fn.Out[*fn.HTTPResponse]) {
	foo.Set(fn.NewHTTPResponse(200, "FOO"))
}

// ReturnHTTP echoes the request method in an HTML body.
func ReturnHTTP(req *fn.HTTPRequest) *fn.HTTPResponse {
	resp := fn.NewHTTPResponse(201, "<h1>"+req.Method+"</h1>")
	resp.Headers["Content-Type"] = "text/html; charset=utf-8"
	return resp
}

// ReturnError fails unless a name is given.
func ReturnError(req *fn.HTTPRequest) (string, error) {
	name := req.Query["name"]
	if name == "" {
		return "", errors.New("name is required")
	}
	return "hello " + name, nil
}

// Panicking always panics.
func Panicking(req *fn.HTTPRequest) string {
	panic("something went very wrong")
}

// QueueEcho copies a queue message to an output queue.
func QueueEcho(ctx *fn.Context, msg *fn.QueueMessage, out *fn.Out[string]) {
	ctx.Logger().Info().
		Str("message_id", msg.ID).
		Int64("dequeue_count", msg.DequeueCount).
		Msg("processing message")
	out.Set("echo: " + string(msg.Body))
}

// BlobSize reports the length of a blob.
func BlobSize(blob *fn.InputStream) string {
	return strconv.FormatInt(blob.Length, 10)
}

// SlowSync sleeps for the duration given in the body.
func SlowSync(ctx *fn.Context, req *fn.HTTPRequest) string {
	d, err := time.ParseDuration(string(req.Body))
	if err != nil {
		d = 50 * time.Millisecond
	}
	time.Sleep(d)
	ctx.Logger().Info().Msg("slept " + d.String())
	return "done"
}

// CustomEntry is registered under a non-default entry point.
func CustomEntry(req *fn.HTTPRequest) string {
	return "custom " + req.Method
}
