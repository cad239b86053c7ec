package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/azsmith/grainulator-sub004/internal/param"
)

// DescriptorView is the JSON shape of one registry entry.
type DescriptorView struct {
	Path           string   `json:"path"`
	Type           string   `json:"type"`
	Min            float64  `json:"min,omitempty"`
	Max            float64  `json:"max,omitempty"`
	Enum           []string `json:"enum,omitempty"`
	Unit           string   `json:"unit,omitempty"`
	Update         string   `json:"update"`
	MinSmoothingMs int      `json:"minSmoothingMs,omitempty"`
	Risk           string   `json:"risk"`
	Default        string   `json:"default"`
}

// RegistryResult holds the registry listing.
type RegistryResult struct {
	Source     string           `json:"source"`
	Parameters []DescriptorView `json:"parameters"`
}

// NewRegistryCommand creates the registry command.
func NewRegistryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry [registry.cue]",
		Short: "Compile and list the parameter registry",
		Long: `Compile the parameter registry and list every descriptor.

With no argument, lists the registry embedded in the binary. With a CUE
file argument, compiles that file instead, so registry overlays can be
checked before deployment.

Exit codes:
  0 - registry compiled cleanly
  2 - registry failed to compile

Examples:
  grainulator registry
  grainulator registry ./overlay.cue --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runRegistry(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runRegistry(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	source := "embedded"
	var (
		reg *param.Registry
		err error
	)
	if path == "" {
		reg, err = param.Builtin()
	} else {
		source = path
		reg, err = param.LoadFile(path)
	}
	if err != nil {
		_ = formatter.Error("E_REGISTRY", err.Error(), nil)
		return WrapExitError(ExitCommandError, "registry failed to compile", err)
	}

	formatter.VerboseLog("compiled %d parameter(s) from %s", reg.Len(), source)

	result := RegistryResult{Source: source, Parameters: make([]DescriptorView, 0, reg.Len())}
	for _, p := range reg.Paths() {
		d, _ := reg.Lookup(p)
		result.Parameters = append(result.Parameters, descriptorView(d))
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputRegistryText(formatter, result)
}

func descriptorView(d *param.Descriptor) DescriptorView {
	v := DescriptorView{
		Path:    d.Path,
		Type:    d.Type.String(),
		Unit:    d.Unit,
		Update:  d.SafeUpdateMode.String(),
		Risk:    d.RiskClass.String(),
		Default: param.Format(d.Default),
	}
	if d.Type == param.TypeInt || d.Type == param.TypeFloat {
		v.Min = d.Min
		v.Max = d.Max
	}
	if len(d.Enum) > 0 {
		v.Enum = d.Enum
	}
	if d.MinSmoothingMs > 0 {
		v.MinSmoothingMs = d.MinSmoothingMs
	}
	return v
}

func outputRegistryText(formatter *OutputFormatter, result RegistryResult) error {
	w := formatter.Writer
	fmt.Fprintf(w, "Registry: %s (%d parameters)\n\n", result.Source, len(result.Parameters))

	for _, p := range result.Parameters {
		fmt.Fprintf(w, "%s\n", p.Path)
		fmt.Fprintf(w, "  type=%s update=%s risk=%s default=%s\n", p.Type, p.Update, p.Risk, p.Default)

		var extras []string
		if p.Type == "int" || p.Type == "float" {
			extras = append(extras, fmt.Sprintf("range=[%g, %g]", p.Min, p.Max))
		}
		if len(p.Enum) > 0 {
			extras = append(extras, fmt.Sprintf("enum=%v", p.Enum))
		}
		if p.Unit != "" {
			extras = append(extras, "unit="+p.Unit)
		}
		if p.MinSmoothingMs > 0 {
			extras = append(extras, fmt.Sprintf("minSmoothingMs=%d", p.MinSmoothingMs))
		}
		if len(extras) > 0 {
			fmt.Fprintf(w, "  %s\n", strings.Join(extras, " "))
		}
	}
	return nil
}
