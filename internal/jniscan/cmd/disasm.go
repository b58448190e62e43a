package cmd

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ianlancetaylor/demangle"
	"github.com/spf13/cobra"

	"jniscan/internal/arch"
	"jniscan/internal/correlate"
	"jniscan/internal/disasm"
	"jniscan/internal/toolrun"
	"jniscan/internal/ui/colorize"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <library> [function]",
	Short: "Print the disassembly a correlator works on",
	Long: `Print the disassembly jniscan feeds to the correlator of the library's
architecture: the whole .text section from objdump, or a single function from
gdb or the builtin decoder when a function is named.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadToolchain(cmd)
		if err != nil {
			return err
		}
		lib := args[0]
		var fn string
		if len(args) > 1 {
			fn = args[1]
		}
		demangled, _ := cmd.Flags().GetBool("demangle")
		archName, _ := cmd.Flags().GetString("arch")

		r := toolrun.Exec{Log: logger}
		a, err := listingArch(cmd.Context(), r, tc.File, lib, archName)
		if err != nil {
			return err
		}
		_, objdump, _ := tc.Binutils(a)
		src, err := disasm.New(tc.Disassembler, r, objdump, tc.GDB)
		if err != nil {
			return err
		}
		lines, err := dumpListing(cmd.Context(), src, lib, fn, demangled)
		if err != nil {
			return err
		}
		text := strings.Join(lines, "\n") + "\n"
		fmt.Fprint(cmd.OutOrStdout(), colorize.Listing(text, a))
		return nil
	},
}

func init() {
	disasmCmd.Flags().Bool("demangle", false, "Demangle C++ symbols in <label> references")
	disasmCmd.Flags().String("arch", "", "Architecture of the library (x86, x86_64, aarch64, armeabi, mips), detected when empty")
	rootCmd.AddCommand(disasmCmd)
}

// listingArch returns the architecture named by the --arch flag, or detects it
// with the file tool when the flag is empty.
func listingArch(ctx context.Context, r toolrun.Runner, fileTool, lib, name string) (arch.Arch, error) {
	if name == "" {
		return arch.Detect(ctx, r, fileTool, lib, logger), nil
	}
	a, ok := arch.Parse(name)
	if !ok {
		return a, fmt.Errorf("unknown architecture %q", name)
	}
	return a, nil
}

func dumpListing(ctx context.Context, src disasm.Source, lib, fn string, demangled bool) ([]string, error) {
	var (
		lines []string
		err   error
	)
	if fn == "" {
		lines, err = src.DumpSection(ctx, lib, correlate.TextSection)
	} else {
		lines, err = src.DumpFunction(ctx, lib, fn)
	}
	if err != nil {
		return nil, err
	}
	if demangled {
		lines = demangleLabels(lines)
	}
	return lines, nil
}

var labelRef = regexp.MustCompile(`<([^<>+]+)`)

// demangleLabels rewrites "<_ZN...>" and "<_ZN...+0x10>" symbol references.
func demangleLabels(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = labelRef.ReplaceAllStringFunc(line, func(m string) string {
			return "<" + demangle.Filter(m[1:], demangle.NoClones)
		})
	}
	return out
}
