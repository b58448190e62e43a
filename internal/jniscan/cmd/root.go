// Package cmd implements the jniscan command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"jniscan/internal/config"
	jlog "jniscan/internal/jniscan/log"
	"jniscan/internal/logging"
	"jniscan/internal/ui/colorize"
)

// logger is set up by the root command before any subcommand runs.
var (
	logger    = logging.Discard()
	logCloser *logging.LoggerCloser
)

var rootCmd = &cobra.Command{
	Use:   "jniscan",
	Short: "Find JNI method names and descriptors in native libraries",
	Long: `jniscan scans the native libraries of an Android app for strings that look
like Java method names, class names and method descriptors, attributes them to
the JNI functions that load them, and writes the results as .facts tables.`,
	Example: `
# Scan every native library of an APK
jniscan scan app.apk -o facts/

# Show the disassembly the correlator sees for one entry point
jniscan disasm libfoo.so Java_com_example_Foo_bar
  `,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logCloser = logging.NewLogger()
		debug, _ := cmd.Flags().GetBool("debug")
		jlog.Setup(logCloser.Logger, debug || logging.IsDebug())
		logger = logCloser.Logger
		if !term.IsTerminal(os.Stdout.Fd()) {
			os.Setenv(colorize.EnvNoColor, "1")
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "C", "", "YAML toolchain configuration file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().String("disassembler", "", "Function disassembler: auto, gdb or builtin")
}

// loadToolchain resolves the configuration file, environment and the flags
// shared by every subcommand.
func loadToolchain(cmd *cobra.Command) (*config.Toolchain, error) {
	path, _ := cmd.Flags().GetString("config")
	tc, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("disassembler") {
		tc.Disassembler, _ = cmd.Flags().GetString("disassembler")
		if err := tc.Validate(); err != nil {
			return nil, err
		}
	}
	return tc, nil
}

func Execute() {
	// fang renders help and errors for a terminal; plain cobra serves pipes.
	if !term.IsTerminal(os.Stdout.Fd()) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err := rootCmd.ExecuteContext(ctx)
		stop()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
