// Package functions loads, validates and runs the Go functions hosted by the worker.
package functions

import (
	"fmt"
	"reflect"

	"github.com/watzon/alyx-worker/internal/protocol"
)

const (
	// ReturnBindingName names the binding that receives a function's result.
	ReturnBindingName = "$return"
	// ContextParam names the parameter that receives the invocation context.
	ContextParam = "context"
)

// Direction is the data flow of a binding.
type Direction string

const (
	DirectionIn    Direction = "in"
	DirectionOut   Direction = "out"
	DirectionInOut Direction = "inout"
)

// Binding is one entry of a function manifest.
type Binding struct {
	Name      string    `json:"name" yaml:"name"`
	Type      string    `json:"type" yaml:"type"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// Metadata is everything the host tells the worker about a function.
type Metadata struct {
	Name       string
	Directory  string
	ScriptFile string
	EntryPoint string
	Bindings   []Binding
}

// MetadataFromProto converts the wire form of a function description.
func MetadataFromProto(md protocol.FunctionMetadata) *Metadata {
	bindings := make([]Binding, 0, len(md.Bindings))
	for _, b := range md.Bindings {
		bindings = append(bindings, Binding{
			Name:      b.Name,
			Type:      b.Type,
			Direction: Direction(b.Direction),
		})
	}
	return &Metadata{
		Name:       md.Name,
		Directory:  md.Directory,
		ScriptFile: md.ScriptFile,
		EntryPoint: md.EntryPoint,
		Bindings:   bindings,
	}
}

// Proto returns the wire form of m.
func (m *Metadata) Proto() protocol.FunctionMetadata {
	bindings := make([]protocol.BindingInfo, 0, len(m.Bindings))
	for _, b := range m.Bindings {
		bindings = append(bindings, protocol.BindingInfo{
			Name:      b.Name,
			Type:      b.Type,
			Direction: protocol.BindingDirection(b.Direction),
		})
	}
	return protocol.FunctionMetadata{
		Name:       m.Name,
		Directory:  m.Directory,
		ScriptFile: m.ScriptFile,
		EntryPoint: m.EntryPoint,
		Bindings:   bindings,
	}
}

// Annotation is what a parameter or result is declared as. It is either
// absent, a Go type, or some other value that is not a type.
type Annotation struct {
	Type  reflect.Type
	Value any
	set   bool
}

// TypeAnnotation returns an annotation naming t.
func TypeAnnotation(t reflect.Type) Annotation {
	return Annotation{Type: t, set: true}
}

// ValueAnnotation returns a non-type annotation. A reflect.Type value is
// treated as a type annotation.
func ValueAnnotation(v any) Annotation {
	if t, ok := v.(reflect.Type); ok {
		return TypeAnnotation(t)
	}
	return Annotation{Value: v, set: true}
}

// Present reports whether there is any annotation.
func (a Annotation) Present() bool { return a.set }

// IsType reports whether the annotation is a Go type.
func (a Annotation) IsType() bool { return a.set && a.Type != nil }

func (a Annotation) String() string {
	switch {
	case !a.set:
		return "<none>"
	case a.Type != nil:
		return a.Type.String()
	default:
		return fmt.Sprintf("%v", a.Value)
	}
}

// Parameter is one parameter of an entry point.
type Parameter struct {
	Name       string
	Annotation Annotation
	// Type is the parameter's Go type, used to build call arguments.
	Type reflect.Type
}

// Signature is the introspected shape of an entry point.
type Signature struct {
	Params       []Parameter
	Return       Annotation
	ReturnsValue bool
	ReturnsError bool
	Async        bool
}

// BoundParameter is a validated parameter together with its binding.
type BoundParameter struct {
	Parameter

	// Binding is nil for the context parameter.
	Binding *Binding
	// BindingType is the type used to convert the value. It is "generic"
	// for string and []byte annotations.
	BindingType string
	Context     bool
	Out         bool
}

// FunctionDefinition is a validated, loaded function. It is never
// modified after registration.
type FunctionDefinition struct {
	ID         string
	Name       string
	Directory  string
	ScriptFile string
	EntryPoint string
	Bindings   []Binding
	Params     []BoundParameter
	// Return is the "$return" binding, or nil.
	Return          *Binding
	RequiresContext bool
	Async           bool

	fn           reflect.Value
	returnsValue bool
	returnsError bool
}
