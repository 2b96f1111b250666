package functions

import (
	"fmt"
	"reflect"

	"github.com/watzon/alyx-worker/pkg/fn"
)

// Introspector derives a Signature from a registered entry point.
type Introspector interface {
	Introspect(entry *fn.Entry) (*Signature, error)
}

// ReflectIntrospector reads signatures with package reflect. Parameters
// typed any carry no annotation; fn.Annotate and fn.AnnotateReturn
// override what reflection sees.
type ReflectIntrospector struct{}

func (ReflectIntrospector) Introspect(entry *fn.Entry) (*Signature, error) {
	t := reflect.TypeOf(entry.Func)
	if t == nil || t.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", entry.EntryPoint)
	}
	if t.NumIn() != len(entry.Params) {
		return nil, fmt.Errorf("function %s takes %d parameters but %d are named", entry.EntryPoint, t.NumIn(), len(entry.Params))
	}

	sig := &Signature{Async: entry.Async}

	for i := 0; i < t.NumIn(); i++ {
		p := Parameter{Name: entry.Params[i], Type: t.In(i)}
		if a, ok := entry.Annotation(p.Name); ok {
			p.Annotation = ValueAnnotation(a)
		} else if p.Type != emptyInterface {
			p.Annotation = TypeAnnotation(p.Type)
		}
		sig.Params = append(sig.Params, p)
	}

	var result reflect.Type
	switch {
	case t.NumOut() == 0:
	case t.NumOut() == 1 && t.Out(0) == errorType:
		sig.ReturnsError = true
	case t.NumOut() == 1:
		sig.ReturnsValue = true
		result = t.Out(0)
	case t.NumOut() == 2 && t.Out(1) == errorType && t.Out(0) != errorType:
		sig.ReturnsValue = true
		sig.ReturnsError = true
		result = t.Out(0)
	default:
		return nil, fmt.Errorf("function %s must return at most a value and an error, got %s", entry.EntryPoint, t)
	}

	if a, ok := entry.ReturnAnnotation(); ok {
		sig.Return = ValueAnnotation(a)
	} else if result != nil && result != emptyInterface {
		sig.Return = TypeAnnotation(result)
	}

	return sig, nil
}
