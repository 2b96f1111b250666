package functions

import (
	"errors"
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"
	"os"
	"path/filepath"
	"reflect"

	"github.com/rs/zerolog/log"

	"github.com/watzon/alyx-worker/internal/bindings"
	"github.com/watzon/alyx-worker/pkg/fn"
)

// DefaultEntryPoint is used when the manifest names no entry point.
const DefaultEntryPoint = "Main"

// Loader turns function metadata into validated definitions.
type Loader struct {
	catalog      *fn.Catalog
	introspector Introspector
	validator    *Validator
}

// NewLoader creates a loader resolving entry points in catalog.
func NewLoader(catalog *fn.Catalog, reg *bindings.Registry) *Loader {
	return &Loader{
		catalog:      catalog,
		introspector: ReflectIntrospector{},
		validator:    NewValidator(reg),
	}
}

// SetIntrospector replaces the signature introspector.
func (l *Loader) SetIntrospector(i Introspector) {
	l.introspector = i
}

// Load imports, introspects and validates one function. Every error it
// returns is a *LoadError.
func (l *Loader) Load(functionID string, md *Metadata) (*FunctionDefinition, error) {
	entry, err := l.importEntry(md)
	if err != nil {
		return nil, importError(md.Name, err)
	}

	sig, err := l.introspector.Introspect(entry)
	if err != nil {
		return nil, importError(md.Name, err)
	}

	def, err := l.validator.Validate(functionID, md, sig)
	if err != nil {
		return nil, err
	}

	def.EntryPoint = entry.EntryPoint
	def.fn = reflect.ValueOf(entry.Func)
	def.returnsValue = sig.ReturnsValue
	def.returnsError = sig.ReturnsError

	log.Debug().
		Str("function", def.Name).
		Str("function_id", functionID).
		Str("script", entry.Script).
		Bool("async", def.Async).
		Msg("Function validated")

	return def, nil
}

func (l *Loader) importEntry(md *Metadata) (*fn.Entry, error) {
	if md.ScriptFile == "" {
		return nil, errors.New("no script file is set in function metadata")
	}

	entryPoint := md.EntryPoint
	if entryPoint == "" {
		entryPoint = DefaultEntryPoint
	}

	if err := checkSource(md.ScriptFile); err != nil {
		return nil, err
	}

	script := ScriptKey(md.ScriptFile)
	if !l.catalog.HasScript(script) {
		return nil, fmt.Errorf("script %s is not registered in this worker", script)
	}

	entry, ok := l.catalog.Lookup(script, entryPoint)
	if !ok {
		return nil, fmt.Errorf("function %s is not found in %s", entryPoint, script)
	}
	return entry, nil
}

// ScriptKey returns the catalog key for a script file: its function
// directory name joined with its file name.
func ScriptKey(scriptFile string) string {
	return fn.CleanScript(filepath.ToSlash(filepath.Join(
		filepath.Base(filepath.Dir(scriptFile)),
		filepath.Base(scriptFile),
	)))
}

// checkSource parses a Go script file that is present on disk. Deployments
// that ship only manifests skip the check.
func checkSource(scriptFile string) error {
	if filepath.Ext(scriptFile) != ".go" {
		return nil
	}

	if _, err := os.Stat(scriptFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading script file: %w", err)
	}

	_, err := parser.ParseFile(token.NewFileSet(), scriptFile, nil, parser.AllErrors)
	if err == nil {
		return nil
	}

	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		first.Pos.Filename = filepath.Base(first.Pos.Filename)
		return fmt.Errorf("syntax error: %s: %s", first.Pos, first.Msg)
	}
	return fmt.Errorf("syntax error: %w", err)
}
