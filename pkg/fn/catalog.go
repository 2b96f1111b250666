package fn

import (
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Entry is one registered entry point.
type Entry struct {
	// Script is the function's script file relative to the script root,
	// e.g. "hello/main.go".
	Script string
	// EntryPoint is the name function.json uses to select the func.
	EntryPoint string
	// Func is the Go func itself.
	Func any
	// Params names Func's parameters in declaration order.
	Params []string
	// Async marks the entry point as scheduled on its own goroutine
	// rather than on the worker's bounded pool.
	Async bool

	annotations      map[string]any
	returnAnnotation any
	hasReturn        bool
}

// Annotation returns the explicit annotation recorded for a parameter.
func (e *Entry) Annotation(param string) (any, bool) {
	a, ok := e.annotations[param]
	return a, ok
}

// ReturnAnnotation returns the explicit annotation recorded for the result.
func (e *Entry) ReturnAnnotation() (any, bool) {
	return e.returnAnnotation, e.hasReturn
}

// Option configures an Entry at registration.
type Option func(*Entry)

// Params names the func's parameters, in order.
func Params(names ...string) Option {
	return func(e *Entry) {
		e.Params = append([]string(nil), names...)
	}
}

// Async runs the entry point on its own goroutine.
func Async() Option {
	return func(e *Entry) {
		e.Async = true
	}
}

// Annotate overrides the annotation of a parameter. A reflect.Type value
// replaces the parameter's Go type for binding checks; any other value is
// recorded as-is and rejected when the function is loaded.
func Annotate(param string, annotation any) Option {
	return func(e *Entry) {
		if e.annotations == nil {
			e.annotations = make(map[string]any)
		}
		e.annotations[param] = annotation
	}
}

// AnnotateReturn overrides the annotation of the func's result.
func AnnotateReturn(annotation any) Option {
	return func(e *Entry) {
		e.returnAnnotation = annotation
		e.hasReturn = true
	}
}

// Catalog maps script files and entry points to Go funcs.
type Catalog struct {
	mu      sync.RWMutex
	scripts map[string]map[string]*Entry
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{scripts: make(map[string]map[string]*Entry)}
}

// Default is the catalog used by the worker binary.
var Default = NewCatalog()

// Register adds f to the Default catalog.
func Register(script, entryPoint string, f any, opts ...Option) {
	Default.Register(script, entryPoint, f, opts...)
}

// Register adds f under script and entryPoint. It panics if f is not a
// func, if the parameter names do not match f's arity, or if the pair is
// already registered.
func (c *Catalog) Register(script, entryPoint string, f any, opts ...Option) {
	script = CleanScript(script)
	where := script + ":" + entryPoint

	t := reflect.TypeOf(f)
	if t == nil || t.Kind() != reflect.Func {
		panic(fmt.Sprintf("fn: Register(%s): expected a func, got %T", where, f))
	}
	if t.IsVariadic() {
		panic(fmt.Sprintf("fn: Register(%s): variadic funcs are not supported", where))
	}

	e := &Entry{Script: script, EntryPoint: entryPoint, Func: f}
	for _, opt := range opts {
		opt(e)
	}

	if len(e.Params) != t.NumIn() {
		panic(fmt.Sprintf("fn: Register(%s): func takes %d parameters, %d names given", where, t.NumIn(), len(e.Params)))
	}
	seen := make(map[string]bool, len(e.Params))
	for _, name := range e.Params {
		if name == "" || seen[name] {
			panic(fmt.Sprintf("fn: Register(%s): invalid or repeated parameter name %q", where, name))
		}
		seen[name] = true
	}
	for name := range e.annotations {
		if !seen[name] {
			panic(fmt.Sprintf("fn: Register(%s): annotation for unknown parameter %q", where, name))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.scripts[script]
	if !ok {
		entries = make(map[string]*Entry)
		c.scripts[script] = entries
	}
	if _, dup := entries[entryPoint]; dup {
		panic(fmt.Sprintf("fn: Register(%s): already registered", where))
	}
	entries[entryPoint] = e
}

// HasScript reports whether anything is registered under script.
func (c *Catalog) HasScript(script string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.scripts[CleanScript(script)]
	return ok
}

// Lookup returns the entry registered under script and entryPoint.
func (c *Catalog) Lookup(script, entryPoint string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.scripts[CleanScript(script)][entryPoint]
	return e, ok
}

// Scripts lists the registered script files in sorted order.
func (c *Catalog) Scripts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	scripts := make([]string, 0, len(c.scripts))
	for s := range c.scripts {
		scripts = append(scripts, s)
	}
	sort.Strings(scripts)
	return scripts
}

// CleanScript normalizes a catalog script key.
func CleanScript(script string) string {
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(script, "\\", "/")), "./")
}
