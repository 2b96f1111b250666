package fn

import (
	"reflect"
	"sync"
)

// Out is a writable handle for an "out" binding. Declare the parameter as
// *fn.Out[T]; whatever is passed to Set when the function returns is sent
// back to the host as that binding's output.
type Out[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
}

// Set stores the output value. Later calls overwrite earlier ones.
func (o *Out[T]) Set(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = v
	o.set = true
}

// Get returns the stored value, or the zero value when Set was not called.
func (o *Out[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// IsSet reports whether Set has been called.
func (o *Out[T]) IsSet() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.set
}

// ElemType returns T.
func (o *Out[T]) ElemType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Value returns the stored value as an interface.
func (o *Out[T]) Value() (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value, o.set
}

// OutBinding is implemented by every *Out[T].
type OutBinding interface {
	ElemType() reflect.Type
	Value() (any, bool)
}

var outBindingType = reflect.TypeOf((*OutBinding)(nil)).Elem()

// IsOutType reports whether t is a *Out[T] type.
func IsOutType(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.Pointer && t.Implements(outBindingType)
}

// OutElemType returns T for t = *Out[T].
func OutElemType(t reflect.Type) reflect.Type {
	return reflect.New(t.Elem()).Interface().(OutBinding).ElemType()
}
