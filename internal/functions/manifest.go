package functions

import (
	"reflect"
	"sort"
	"strings"

	"github.com/watzon/alyx-worker/internal/bindings"
	"github.com/watzon/alyx-worker/pkg/fn"
)

var (
	stringType      = reflect.TypeOf("")
	bytesType       = reflect.TypeOf([]byte(nil))
	fnContextType   = reflect.TypeOf((*fn.Context)(nil))
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
	emptyInterface  = reflect.TypeOf((*any)(nil)).Elem()
	fnContextTypeID = fnContextType.String()
)

// Validator checks a function's signature against its manifest bindings.
type Validator struct {
	bindings *bindings.Registry
}

// NewValidator creates a validator that resolves binding types in reg.
func NewValidator(reg *bindings.Registry) *Validator {
	return &Validator{bindings: reg}
}

// Validate checks sig against md and returns the resulting definition.
// Checks run in a fixed order and the first failure is returned as a
// *LoadError.
//
//nolint:gocyclo // Validation logic is inherently sequential
func (v *Validator) Validate(functionID string, md *Metadata, sig *Signature) (*FunctionDefinition, error) {
	name := md.Name
	manifest := append([]Binding(nil), md.Bindings...)

	bound := make(map[string]*Binding, len(manifest))
	var ret *Binding
	for i := range manifest {
		b := &manifest[i]

		switch b.Direction {
		case DirectionIn, DirectionOut:
		case DirectionInOut:
			return nil, loadError(name, ErrUnsupportedDirection, `binding %s: "inout" bindings are not supported`, b.Name)
		default:
			return nil, loadError(name, ErrUnsupportedDirection, "binding %s has unsupported direction %q", b.Name, b.Direction)
		}

		if b.Name == ReturnBindingName {
			if ret != nil {
				return nil, loadError(name, ErrDuplicateBinding, "binding %s is declared more than once", b.Name)
			}
			ret = b
			continue
		}
		if _, dup := bound[b.Name]; dup {
			return nil, loadError(name, ErrDuplicateBinding, "binding %s is declared more than once", b.Name)
		}
		bound[b.Name] = b
	}

	_, contextBound := bound[ContextParam]
	isContext := func(p Parameter) bool {
		return p.Name == ContextParam && !contextBound
	}

	declared := make(map[string]bool, len(sig.Params))
	var extra []string
	for _, p := range sig.Params {
		if isContext(p) {
			continue
		}
		declared[p.Name] = true
		if _, ok := bound[p.Name]; !ok {
			extra = append(extra, p.Name)
		}
	}
	if len(extra) > 0 {
		return nil, loadError(name, ErrMissingBinding,
			"the following parameters are declared in Go but not in function.json: %s", quoteNames(extra))
	}

	var missing []string
	for _, b := range manifest {
		if b.Name != ReturnBindingName && !declared[b.Name] {
			missing = append(missing, b.Name)
		}
	}
	if len(missing) > 0 {
		return nil, loadError(name, ErrMissingParameter,
			"the following parameters are declared in function.json but not in Go: %s", quoteNames(missing))
	}

	if ret != nil && ret.Direction != DirectionOut {
		return nil, loadError(name, ErrReturnDirection, `"$return" binding must have direction set to "out"`)
	}

	for _, p := range sig.Params {
		if isContext(p) && p.Annotation.Present() && !isContextAnnotation(p.Annotation) {
			return nil, loadError(name, ErrContextParameter,
				`the "context" parameter is expected to be of type %s, got %s`, fnContextTypeID, p.Annotation)
		}
	}

	for _, b := range manifest {
		if _, ok := v.bindings.Lookup(b.Type); !ok {
			return nil, loadError(name, ErrUnknownType, "unknown type for binding %s: %q", b.Name, b.Type)
		}
	}

	def := &FunctionDefinition{
		ID:         functionID,
		Name:       name,
		Directory:  md.Directory,
		ScriptFile: md.ScriptFile,
		EntryPoint: md.EntryPoint,
		Bindings:   manifest,
		Return:     ret,
		Async:      sig.Async,
	}

	for _, p := range sig.Params {
		if isContext(p) {
			def.Params = append(def.Params, BoundParameter{Parameter: p, Context: true})
			def.RequiresContext = true
			continue
		}

		bp, err := v.bindParameter(name, p, bound[p.Name])
		if err != nil {
			return nil, err
		}
		def.Params = append(def.Params, bp)
	}

	if ret != nil && sig.Return.Present() {
		if err := v.checkReturn(name, sig.Return, ret); err != nil {
			return nil, err
		}
	}

	return def, nil
}

func (v *Validator) bindParameter(function string, p Parameter, b *Binding) (BoundParameter, error) {
	bp := BoundParameter{
		Parameter:   p,
		Binding:     b,
		BindingType: b.Type,
		Out:         b.Direction == DirectionOut,
	}

	anno := p.Annotation
	if !anno.Present() {
		return bp, nil
	}
	if !anno.IsType() {
		return bp, loadError(function, ErrNonTypeAnnotation,
			"binding %s has invalid non-type annotation %v", b.Name, anno.Value)
	}

	isOut := fn.IsOutType(anno.Type)
	if b.Direction == DirectionOut && !isOut {
		return bp, loadError(function, ErrDirectionMismatch,
			`binding %s is declared to have the "out" direction, but its annotation in Go is not *fn.Out`, b.Name)
	}
	if b.Direction == DirectionIn && isOut {
		return bp, loadError(function, ErrDirectionMismatch,
			`binding %s is declared to have the "in" direction in function.json, but its annotation is *fn.Out in Go`, b.Name)
	}

	goType := anno.Type
	if isOut {
		goType = fn.OutElemType(anno.Type)
	}
	if goType == stringType || goType == bytesType {
		bp.BindingType = bindings.GenericType
	}
	if goType == emptyInterface {
		return bp, nil
	}

	desc, _ := v.bindings.Lookup(bp.BindingType)
	ok := desc.CheckInput(goType)
	if isOut {
		ok = desc.CheckOutput(goType)
	}
	if !ok {
		return bp, loadError(function, ErrTypeMismatch,
			"type of %s binding in function.json %q does not match its Go annotation %q", b.Name, bp.BindingType, goType)
	}

	return bp, nil
}

func (v *Validator) checkReturn(function string, anno Annotation, ret *Binding) error {
	if anno.IsType() && fn.IsOutType(anno.Type) {
		return loadError(function, ErrDirectionMismatch, "return annotation should not be *fn.Out")
	}
	if !anno.IsType() {
		return loadError(function, ErrNonTypeAnnotation, "has invalid non-type return annotation %v", anno.Value)
	}
	if anno.Type == emptyInterface {
		return nil
	}

	desc, _ := v.bindings.Lookup(ret.Type)
	if !desc.CheckOutput(anno.Type) {
		return loadError(function, ErrTypeMismatch,
			"Go return annotation %q does not match binding type %q", anno.Type, ret.Type)
	}
	return nil
}

func isContextAnnotation(a Annotation) bool {
	if !a.IsType() {
		return false
	}
	if a.Type == fnContextType {
		return true
	}
	return a.Type.Kind() == reflect.Interface && fnContextType.Implements(a.Type)
}

func quoteNames(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	quoted := make([]string, len(sorted))
	for i, n := range sorted {
		quoted[i] = "'" + n + "'"
	}
	return strings.Join(quoted, ", ")
}
