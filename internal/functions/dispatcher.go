package functions

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/watzon/alyx-worker/internal/bindings"
	"github.com/watzon/alyx-worker/internal/protocol"
	"github.com/watzon/alyx-worker/internal/requestctx"
	"github.com/watzon/alyx-worker/pkg/fn"
)

// Failure sources reported in RPCException.Source.
const (
	SourceFunction = "FunctionError"
	SourcePanic    = "FunctionPanic"
	SourceBinding  = "BindingError"
	SourceNotFound = "FunctionNotFound"
	SourceWorker   = "WorkerError"
	SourceLoad     = "LoadError"
)

// Invocation is one request to run a loaded function.
type Invocation struct {
	ID              string
	FunctionID      string
	Inputs          map[string]*protocol.TypedData
	TriggerMetadata map[string]*protocol.TypedData
}

// InvocationFromProto converts the wire form of an invocation request.
func InvocationFromProto(req *protocol.InvocationRequest) *Invocation {
	inputs := make(map[string]*protocol.TypedData, len(req.InputData))
	for _, b := range req.InputData {
		inputs[b.Name] = b.Data
	}
	return &Invocation{
		ID:              req.InvocationID,
		FunctionID:      req.FunctionID,
		Inputs:          inputs,
		TriggerMetadata: req.TriggerMetadata,
	}
}

// Result is the outcome of one invocation.
type Result struct {
	Status      protocol.Status
	Exception   *protocol.RPCException
	ReturnValue *protocol.TypedData
	Outputs     []protocol.ParameterBinding
	Duration    time.Duration
}

// Succeeded reports whether the invocation succeeded.
func (r *Result) Succeeded() bool {
	return r.Status == protocol.StatusSuccess
}

// Response builds the InvocationResponse for r.
func (r *Result) Response(invocationID string) *protocol.InvocationResponse {
	resp := &protocol.InvocationResponse{
		InvocationID: invocationID,
		ReturnValue:  r.ReturnValue,
		OutputData:   r.Outputs,
	}
	if r.Succeeded() {
		resp.Result = protocol.Success()
	} else {
		resp.Result = protocol.Failure(r.Exception)
	}
	return resp
}

// Failed returns a failed result.
func Failed(source string, err error) *Result {
	exc := &protocol.RPCException{Source: source, Message: err.Error()}

	var pe *PanicError
	if errors.As(err, &pe) {
		exc.StackTrace = string(pe.Stack)
	}
	return &Result{Status: protocol.StatusFailure, Exception: exc}
}

// PanicError wraps a value recovered from a panicking function.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Dispatcher runs invocations against loaded definitions.
type Dispatcher struct {
	bindings *bindings.Registry
	pool     *Pool
}

// NewDispatcher creates a dispatcher. Synchronous entry points run on pool.
func NewDispatcher(reg *bindings.Registry, pool *Pool) *Dispatcher {
	return &Dispatcher{bindings: reg, pool: pool}
}

type outParam struct {
	name        string
	bindingType string
	value       fn.OutBinding
}

// Invoke runs one invocation. Failures of any kind are reported in the
// result; Invoke never panics because of user code. The duration counts
// from the start time carried in ctx, if any.
func (d *Dispatcher) Invoke(ctx context.Context, def *FunctionDefinition, inv *Invocation) *Result {
	start := requestctx.StartTime(ctx)
	if start.IsZero() {
		start = time.Now()
	}
	res := d.invoke(ctx, def, inv)
	res.Duration = time.Since(start)
	return res
}

func (d *Dispatcher) invoke(ctx context.Context, def *FunctionDefinition, inv *Invocation) *Result {
	args, outs, err := d.buildArgs(ctx, def, inv)
	if err != nil {
		return Failed(SourceBinding, err)
	}

	var (
		results []reflect.Value
		callErr error
	)
	run := func() {
		results, callErr = call(def.fn, args)
	}

	if def.Async {
		run()
	} else if err := d.pool.Run(ctx, run); err != nil {
		return Failed(SourceWorker, err)
	}

	if callErr != nil {
		zerolog.Ctx(ctx).Error().Err(callErr).Msg("Function panicked")
		return Failed(SourcePanic, callErr)
	}

	var (
		returned    any
		hasReturned bool
	)
	i := 0
	if def.returnsValue {
		returned = results[i].Interface()
		hasReturned = !results[i].IsZero()
		i++
	}
	if def.returnsError {
		if err, _ := results[i].Interface().(error); err != nil {
			return Failed(SourceFunction, err)
		}
	}

	if def.Return == nil && hasReturned {
		return Failed(SourceBinding, fmt.Errorf("function %s without a %s binding returned a non-zero value", def.Name, ReturnBindingName))
	}

	res := &Result{Status: protocol.StatusSuccess}

	if def.Return != nil && def.returnsValue {
		desc, _ := d.bindings.Lookup(def.Return.Type)
		data, err := desc.Encode(returned)
		if err != nil {
			return Failed(SourceBinding, fmt.Errorf("binding %s: %w", ReturnBindingName, err))
		}
		res.ReturnValue = data
	}

	for _, o := range outs {
		v, set := o.value.Value()
		if !set {
			continue
		}
		desc, _ := d.bindings.Lookup(o.bindingType)
		data, err := desc.Encode(v)
		if err != nil {
			return Failed(SourceBinding, fmt.Errorf("binding %s: %w", o.name, err))
		}
		res.Outputs = append(res.Outputs, protocol.ParameterBinding{Name: o.name, Data: data})
	}

	return res
}

func (d *Dispatcher) buildArgs(ctx context.Context, def *FunctionDefinition, inv *Invocation) ([]reflect.Value, []outParam, error) {
	args := make([]reflect.Value, 0, len(def.Params))
	var outs []outParam

	for _, p := range def.Params {
		switch {
		case p.Context:
			v := reflect.ValueOf(fn.NewContext(ctx, inv.ID, def.Name, def.Directory))
			if !v.Type().AssignableTo(p.Type) {
				return nil, nil, fmt.Errorf("parameter %s of type %s cannot receive %s", p.Name, p.Type, v.Type())
			}
			args = append(args, v)

		case p.Out:
			v, err := newOut(p.Type)
			if err != nil {
				return nil, nil, fmt.Errorf("binding %s: %w", p.Name, err)
			}
			outs = append(outs, outParam{
				name:        p.Name,
				bindingType: p.BindingType,
				value:       v.Interface().(fn.OutBinding),
			})
			args = append(args, v)

		default:
			data, ok := inv.Inputs[p.Name]
			if !ok {
				return nil, nil, fmt.Errorf("binding %s: no input data in invocation request", p.Name)
			}
			desc, ok := d.bindings.Lookup(p.BindingType)
			if !ok {
				return nil, nil, fmt.Errorf("binding %s: unknown type %q", p.Name, p.BindingType)
			}
			v, err := desc.Decode(data, inv.TriggerMetadata, p.Type)
			if err != nil {
				return nil, nil, fmt.Errorf("binding %s: %w", p.Name, err)
			}
			args = append(args, v)
		}
	}

	return args, outs, nil
}

func newOut(t reflect.Type) (reflect.Value, error) {
	if fn.IsOutType(t) {
		return reflect.New(t.Elem()), nil
	}
	v := reflect.ValueOf(&fn.Out[any]{})
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	return reflect.Value{}, fmt.Errorf("parameter of type %s cannot receive an output value", t)
}

func call(f reflect.Value, args []reflect.Value) (results []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return f.Call(args), nil
}
