// Package fn is the API that function authors program against.
//
// A function is a plain Go func registered in a Catalog under the script
// file and entry point named by its function.json. The worker matches the
// func's parameters against the manifest bindings by name, so every
// registration lists its parameter names in declaration order:
//
//	func init() {
//		fn.Register("hello/main.go", "Main", Hello, fn.Params("context", "req"))
//	}
//
//	func Hello(ctx *fn.Context, req *fn.HTTPRequest) *fn.HTTPResponse {
//		ctx.Logger().Info().Str("method", req.Method).Msg("Hello called")
//		return fn.NewHTTPResponse(200, "hello")
//	}
package fn

import (
	"context"

	"github.com/rs/zerolog"
)

// Context is passed to a function's "context" parameter. It carries the
// invocation's cancellation and a logger whose output is forwarded to the
// host, tagged with the invocation id.
type Context struct {
	context.Context

	invocationID string
	functionName string
	directory    string
}

// NewContext wraps ctx for one invocation. The logger is taken from ctx
// (see zerolog.Ctx).
func NewContext(ctx context.Context, invocationID, functionName, directory string) *Context {
	return &Context{
		Context:      ctx,
		invocationID: invocationID,
		functionName: functionName,
		directory:    directory,
	}
}

// InvocationID returns the host-assigned id of the current invocation.
func (c *Context) InvocationID() string {
	return c.invocationID
}

// FunctionName returns the name of the function being invoked.
func (c *Context) FunctionName() string {
	return c.functionName
}

// FunctionDirectory returns the directory holding the function's manifest.
func (c *Context) FunctionDirectory() string {
	return c.directory
}

// Logger returns the invocation logger.
func (c *Context) Logger() *zerolog.Logger {
	return zerolog.Ctx(c.Context)
}

// Logger returns the invocation logger carried by ctx. It works with any
// context derived from the one the worker hands to a function.
func Logger(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
