package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"jniscan/internal/apk"
	"jniscan/internal/config"
	"jniscan/internal/facts"
	jlog "jniscan/internal/jniscan/log"
	"jniscan/internal/scanner"
	"jniscan/internal/toolrun"
)

type scanOptions struct {
	Inputs []string
	OutDir string
	Append bool
}

var scanCmd = &cobra.Command{
	Use:   "scan [input...]",
	Short: "Scan native libraries and write fact tables",
	Long: `Scan native libraries and write NativeLibEntryPoint, NativeNameCandidate and
NativeMethodTypeCandidate facts. Inputs may be shared libraries, libs.xzs or
libs.zstd payloads, or APK/AAR/JAR archives whose native entries are scanned.`,
	Example: `
# Scan two libraries with four workers
jniscan scan -j 4 libfoo.so libbar.so -o out/

# Only report strings attributed to a function
jniscan scan --precise app.apk
  `,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadToolchain(cmd)
		if err != nil {
			return err
		}
		applyScanFlags(cmd, tc)

		out, _ := cmd.Flags().GetString("out")
		appendRows, _ := cmd.Flags().GetBool("append")
		opts := scanOptions{Inputs: args, OutDir: out, Append: appendRows}

		reports, err := runScan(cmd.Context(), tc, toolrun.Exec{Log: logger}, logger, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderSummary(reports, out))
		return nil
	},
}

func init() {
	f := scanCmd.Flags()
	f.StringP("out", "o", ".", "Directory for the .facts files")
	f.Bool("append", false, "Append to existing .facts files instead of truncating them")
	f.IntP("jobs", "j", 0, "Libraries scanned in parallel (default: number of CPUs)")
	f.Bool("precise", false, "Only emit strings attributed to a function")
	f.Bool("heuristic", false, "Also run $DOOP_HOME/bin/radare-strings.py")
	f.Bool("defined-only", false, "Pass --defined-only to nm")
	f.Bool("demangle", false, "Pass --demangle to nm")
	f.Bool("check-jnienv", false, "Report weak JNIEnv GetMethodID/GetFieldID definitions")
	f.String("method-strings", "", "File of known method names and descriptors, one per line")

	rootCmd.AddCommand(scanCmd)
}

func applyScanFlags(cmd *cobra.Command, tc *config.Toolchain) {
	f := cmd.Flags()
	if f.Changed("jobs") {
		tc.Jobs, _ = f.GetInt("jobs")
	}
	boolFlag := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}
	boolFlag("precise", &tc.PreciseOnly)
	boolFlag("heuristic", &tc.UseHeuristic)
	boolFlag("defined-only", &tc.DefinedOnly)
	boolFlag("demangle", &tc.Demangle)
	boolFlag("check-jnienv", &tc.CheckJNIEnv)
	if f.Changed("method-strings") {
		tc.MethodStrings, _ = f.GetString("method-strings")
	}
	if tc.Jobs < 1 {
		tc.Jobs = 1
	}
}

// runScan scans every input with at most tc.Jobs libraries in flight, then
// writes the facts of each library in input order so repeated runs produce
// identical files.
func runScan(ctx context.Context, tc *config.Toolchain, r toolrun.Runner, logger *log.Logger, opts scanOptions) ([]*scanner.Report, error) {
	s, err := scanner.New(tc, r, logger)
	if err != nil {
		return nil, err
	}
	libs, cleanup, err := expandInputs(opts.Inputs, logger)
	defer cleanup()
	if err != nil {
		return nil, err
	}

	reports := make([]*scanner.Report, len(libs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tc.Jobs)
	for i, lib := range libs {
		g.Go(func() error {
			defer jlog.RecoverPanic("scan "+lib, func() {
				reports[i] = &scanner.Report{Lib: lib, Skipped: "panic"}
			})
			rep, err := s.Scan(gctx, lib)
			if err != nil {
				logger.Error("Library scan aborted", "lib", lib, "err", err)
				if rep == nil {
					rep = &scanner.Report{Lib: lib}
				}
				rep.Skipped, rep.Facts = err.Error(), nil
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return reports, err
	}

	w, err := facts.Create(opts.OutDir, opts.Append)
	if err != nil {
		return reports, err
	}
	for _, rep := range reports {
		if rep.Facts == nil {
			continue
		}
		if err := w.Write(rep.Facts); err != nil {
			w.Close()
			return reports, err
		}
	}
	return reports, w.Close()
}

// expandInputs replaces archives by their extracted native entries. The
// returned cleanup removes the extraction directories.
func expandInputs(inputs []string, logger *log.Logger) ([]string, func(), error) {
	var dirs []string
	cleanup := func() {
		for _, d := range dirs {
			os.RemoveAll(d)
		}
	}

	var libs []string
	for _, in := range inputs {
		if !apk.IsArchive(in) {
			libs = append(libs, in)
			continue
		}
		dir, err := os.MkdirTemp("", "jniscan-native-")
		if err != nil {
			return nil, cleanup, fmt.Errorf("extract %s: %w", in, err)
		}
		dirs = append(dirs, dir)

		entries, err := apk.Extract(in, dir)
		if err != nil {
			logger.Error("Could not read archive", "input", in, "err", err)
			continue
		}
		logger.Info("Processing native code in input", "input", in, "libraries", len(entries))
		for _, e := range entries {
			libs = append(libs, e.Path)
		}
	}
	return libs, cleanup, nil
}
