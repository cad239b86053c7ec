package param

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed registry.cue
var builtinRegistryCUE []byte

// Builtin returns the registry compiled from the embedded registry.cue.
// The embedded file is validated at load time; an error here means the
// binary shipped with a broken registry.
func Builtin() (*Registry, error) {
	return parseRegistryCUE(builtinRegistryCUE, "registry.cue (embedded)")
}

// LoadFile compiles a registry overlay from a CUE file on disk.
// The file uses the same shape as the built-in registry.cue.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return parseRegistryCUE(data, path)
}

// parseRegistryCUE compiles CUE source into descriptors.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
func parseRegistryCUE(src []byte, filename string) (*Registry, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", filename, err)
	}

	paramsVal := value.LookupPath(cue.ParsePath("params"))
	if !paramsVal.Exists() {
		return nil, fmt.Errorf("%s: missing top-level params struct", filename)
	}

	iter, err := paramsVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("%s: iterate params: %w", filename, err)
	}

	var descs []Descriptor
	for iter.Next() {
		path := iter.Label()
		d, err := parseDescriptor(path, iter.Value())
		if err != nil {
			return nil, fmt.Errorf("%s: parameter %q: %w", filename, path, err)
		}
		descs = append(descs, d)
	}

	return NewRegistry(descs)
}

// parseDescriptor decodes one #Param struct into a Descriptor.
func parseDescriptor(path string, v cue.Value) (Descriptor, error) {
	d := Descriptor{Path: path}

	typeName, err := lookupString(v, "type")
	if err != nil {
		return d, err
	}
	d.Type, err = ParseType(typeName)
	if err != nil {
		return d, err
	}

	if minVal := v.LookupPath(cue.ParsePath("min")); minVal.Exists() {
		d.Min, err = minVal.Float64()
		if err != nil {
			return d, fmt.Errorf("min: %w", err)
		}
	}
	if maxVal := v.LookupPath(cue.ParsePath("max")); maxVal.Exists() {
		d.Max, err = maxVal.Float64()
		if err != nil {
			return d, fmt.Errorf("max: %w", err)
		}
	}
	if d.Type == TypeInt || d.Type == TypeFloat {
		if d.Max < d.Min {
			return d, fmt.Errorf("max %v below min %v", d.Max, d.Min)
		}
	}

	if enumVal := v.LookupPath(cue.ParsePath("enum")); enumVal.Exists() {
		enumIter, err := enumVal.List()
		if err != nil {
			return d, fmt.Errorf("enum: %w", err)
		}
		for enumIter.Next() {
			s, err := enumIter.Value().String()
			if err != nil {
				return d, fmt.Errorf("enum entry: %w", err)
			}
			d.Enum = append(d.Enum, s)
		}
	}

	if unitVal := v.LookupPath(cue.ParsePath("unit")); unitVal.Exists() {
		d.Unit, err = unitVal.String()
		if err != nil {
			return d, fmt.Errorf("unit: %w", err)
		}
	}

	updateName, err := lookupString(v, "update")
	if err != nil {
		return d, err
	}
	d.SafeUpdateMode, err = ParseSafeUpdateMode(updateName)
	if err != nil {
		return d, err
	}

	if smoothVal := v.LookupPath(cue.ParsePath("minSmoothingMs")); smoothVal.Exists() {
		ms, err := smoothVal.Int64()
		if err != nil {
			return d, fmt.Errorf("minSmoothingMs: %w", err)
		}
		d.MinSmoothingMs = int(ms)
	}

	riskName, err := lookupString(v, "risk")
	if err != nil {
		return d, err
	}
	d.RiskClass, err = ParseRiskClass(riskName)
	if err != nil {
		return d, err
	}

	d.Default, err = parseDefault(v.LookupPath(cue.ParsePath("default")), d.Type)
	if err != nil {
		return d, err
	}

	return d, nil
}

// parseDefault decodes the default field using the declared type, so an
// integer literal in the CUE source becomes a Float for float params.
func parseDefault(v cue.Value, t Type) (Value, error) {
	if !v.Exists() {
		return nil, fmt.Errorf("default: missing")
	}
	switch t {
	case TypeBool:
		b, err := v.Bool()
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		return Bool(b), nil
	case TypeInt:
		i, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		return Int(i), nil
	case TypeFloat:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		return Float(f), nil
	case TypeString:
		s, err := v.String()
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		return String(s), nil
	default:
		return nil, fmt.Errorf("default: unsupported type %s", t)
	}
}

func lookupString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", fmt.Errorf("%s: missing", field)
	}
	s, err := fv.String()
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	return s, nil
}
