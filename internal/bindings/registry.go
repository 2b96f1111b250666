// Package bindings maps host binding types to the Go types a function may
// declare for them, and converts values between the wire and Go.
package bindings

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/watzon/alyx-worker/internal/protocol"
)

// GenericType is the binding type used for parameters annotated string or
// []byte, whatever type the manifest declares.
const GenericType = "generic"

// Binding describes one binding type.
type Binding interface {
	// Name returns the manifest type name, e.g. "httpTrigger".
	Name() string
	// CheckInput reports whether t may annotate an input of this type.
	CheckInput(t reflect.Type) bool
	// CheckOutput reports whether t may annotate an output of this type.
	CheckOutput(t reflect.Type) bool
	// Decode converts wire data into a call argument of type target.
	Decode(data *protocol.TypedData, meta map[string]*protocol.TypedData, target reflect.Type) (reflect.Value, error)
	// Encode converts a returned or Out value into wire data.
	Encode(v any) (*protocol.TypedData, error)
}

// Registry holds the known binding types.
type Registry struct {
	bindings map[string]Binding
	mu       sync.RWMutex
}

// NewRegistry creates a registry holding bs.
func NewRegistry(bs ...Binding) *Registry {
	r := &Registry{bindings: make(map[string]Binding, len(bs))}
	for _, b := range bs {
		r.bindings[b.Name()] = b
	}
	return r
}

// Default returns a registry with every built-in binding type.
func Default() *Registry {
	return NewRegistry(
		genericBinding(),
		httpTriggerBinding(),
		httpBinding(),
		timerTriggerBinding(),
		queueTriggerBinding(),
		queueBinding(),
		blobTriggerBinding(),
		blobBinding(),
	)
}

// Register adds or replaces a binding type.
func (r *Registry) Register(b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[b.Name()] = b
}

// Lookup returns the binding registered for typ.
func (r *Registry) Lookup(typ string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[typ]
	return b, ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptor is a table-driven Binding. A nil DecodeFunc makes the type
// output-only; a nil EncodeFunc makes it input-only.
type Descriptor struct {
	Type       string
	Inputs     []reflect.Type
	Outputs    []reflect.Type
	DecodeFunc func(data *protocol.TypedData, meta map[string]*protocol.TypedData) (any, error)
	EncodeFunc func(v any) (*protocol.TypedData, error)
}

func (d *Descriptor) Name() string { return d.Type }

func (d *Descriptor) CheckInput(t reflect.Type) bool {
	return accepts(d.Inputs, t)
}

func (d *Descriptor) CheckOutput(t reflect.Type) bool {
	return accepts(d.Outputs, t)
}

func (d *Descriptor) Decode(data *protocol.TypedData, meta map[string]*protocol.TypedData, target reflect.Type) (reflect.Value, error) {
	if d.DecodeFunc == nil {
		return reflect.Value{}, fmt.Errorf("binding type %q cannot be used as an input", d.Type)
	}
	v, err := d.DecodeFunc(data, meta)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("decoding %s data: %w", d.Type, err)
	}
	return assign(v, target)
}

func (d *Descriptor) Encode(v any) (*protocol.TypedData, error) {
	if d.EncodeFunc == nil {
		return nil, fmt.Errorf("binding type %q cannot be used as an output", d.Type)
	}
	data, err := d.EncodeFunc(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s data: %w", d.Type, err)
	}
	return data, nil
}

// accepts reports whether t equals one of the accepted types, or is a
// non-empty interface one of them implements.
func accepts(accepted []reflect.Type, t reflect.Type) bool {
	for _, a := range accepted {
		if t == a {
			return true
		}
		if t.Kind() == reflect.Interface && t.NumMethod() > 0 && a.Implements(t) {
			return true
		}
	}
	return false
}

// assign turns a decoded value into an argument of type target.
func assign(v any, target reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(target), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(target) {
		return rv, nil
	}
	if isText(rv.Type()) && isText(target) {
		return rv.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot bind %s value to parameter of type %s", rv.Type(), target)
}

func isText(t reflect.Type) bool {
	return t.Kind() == reflect.String ||
		t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}
