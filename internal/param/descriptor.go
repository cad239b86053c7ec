package param

import (
	"fmt"
	"strings"
)

// RiskClass is the policy tier controlling whether a change needs
// confirmation before commit.
type RiskClass int

const (
	// RiskLow changes apply without confirmation (most continuous controls).
	RiskLow RiskClass = iota + 1
	// RiskMedium changes are allowed for validated bundles but never in
	// best-effort mode (feedback, recording mode).
	RiskMedium
	// RiskHigh changes require a confirmation token (recording arm/disarm,
	// destructive scene operations).
	RiskHigh
)

// String returns the lowercase name used in registry files.
func (r RiskClass) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return fmt.Sprintf("RiskClass(%d)", int(r))
	}
}

// ParseRiskClass converts a registry risk name to a RiskClass.
func ParseRiskClass(s string) (RiskClass, error) {
	switch s {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	default:
		return 0, fmt.Errorf("unknown risk class %q", s)
	}
}

// MaxRisk returns the higher of two risk classes.
func MaxRisk(a, b RiskClass) RiskClass {
	if b > a {
		return b
	}
	return a
}

// SafeUpdateMode describes how the real-time engine must apply a change
// to avoid audible artifacts.
type SafeUpdateMode int

const (
	// UpdateImmediate applies on the next processing quantum.
	UpdateImmediate SafeUpdateMode = iota + 1
	// UpdateSmoothed interpolates over at least MinSmoothingMs.
	UpdateSmoothed
	// UpdateQuantized applies only on a musical grid boundary.
	UpdateQuantized
)

// String returns the lowercase name used in registry files.
func (m SafeUpdateMode) String() string {
	switch m {
	case UpdateImmediate:
		return "immediate"
	case UpdateSmoothed:
		return "smoothed"
	case UpdateQuantized:
		return "quantized"
	default:
		return fmt.Sprintf("SafeUpdateMode(%d)", int(m))
	}
}

// ParseSafeUpdateMode converts a registry mode name to a SafeUpdateMode.
func ParseSafeUpdateMode(s string) (SafeUpdateMode, error) {
	switch s {
	case "immediate":
		return UpdateImmediate, nil
	case "smoothed":
		return UpdateSmoothed, nil
	case "quantized":
		return UpdateQuantized, nil
	default:
		return 0, fmt.Errorf("unknown safe update mode %q", s)
	}
}

// Descriptor is the immutable metadata record for one parameter path.
// Looked up on every validation; never mutated after registry load.
type Descriptor struct {
	// Path is the absolute dot-separated parameter address,
	// e.g. "granular.voiceA.recording.feedback".
	Path string

	// Type constrains the value type accepted for this path.
	Type Type

	// Min and Max bound numeric parameters (inclusive). Ignored for
	// bool and string parameters.
	Min float64
	Max float64

	// Enum lists the accepted values for string parameters. Empty
	// means any string is accepted.
	Enum []string

	// Unit is a display unit ("ms", "dB", "st", "norm"). Informative only.
	Unit string

	// SafeUpdateMode tells the real-time consumer how to apply changes.
	SafeUpdateMode SafeUpdateMode

	// MinSmoothingMs is the minimum interpolation window for smoothed
	// parameters. Zero for immediate/quantized parameters.
	MinSmoothingMs int

	// RiskClass is the confirmation policy tier for this parameter.
	RiskClass RiskClass

	// Default seeds CanonicalState at process start.
	Default Value
}

// CheckValue verifies a value against the descriptor's type, range,
// and enum constraints. Returns nil if the value is acceptable.
func (d *Descriptor) CheckValue(v Value) error {
	if !Finite(v) {
		return fmt.Errorf("parameter %s: value must be a finite %s", d.Path, d.Type)
	}
	coerced, ok := Coerce(v, d.Type)
	if !ok {
		return fmt.Errorf("parameter %s: expected %s, got %s", d.Path, d.Type, v.Type())
	}
	switch d.Type {
	case TypeInt, TypeFloat:
		n, _ := Numeric(coerced)
		if n < d.Min || n > d.Max {
			return fmt.Errorf("parameter %s: value %s outside range [%s, %s]",
				d.Path, Format(coerced),
				Format(Float(d.Min)), Format(Float(d.Max)))
		}
	case TypeString:
		if len(d.Enum) > 0 {
			s := string(coerced.(String))
			for _, allowed := range d.Enum {
				if s == allowed {
					return nil
				}
			}
			return fmt.Errorf("parameter %s: %q is not one of %v", d.Path, s, d.Enum)
		}
	}
	return nil
}

// ModuleOf returns the module prefix of a path: its first two segments
// ("granular.voiceA"), or the whole path when it has fewer segments.
// Module prefixes are the unit of lock policy enforcement.
func ModuleOf(path string) string {
	first := strings.IndexByte(path, '.')
	if first < 0 {
		return path
	}
	second := strings.IndexByte(path[first+1:], '.')
	if second < 0 {
		return path
	}
	return path[:first+1+second]
}
