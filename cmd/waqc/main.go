// Command waqc is a thin CLI driver around api.Compile: it reads a
// WebAssembly binary module, compiles it to QBE IL text, and writes the
// result to a file or stdout. It owns no compilation logic of its own —
// argument parsing, logging setup, and file I/O are the whole of it.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wasmqbe/waqc/api"
)

// logrusSink adapts a *logrus.Logger to logging.Sink, the only point in
// this repository where the core's diagnostic interface meets a
// concrete logging backend.
type logrusSink struct {
	log *logrus.Logger
}

func (s logrusSink) Log(level api.LogLevel, stage, message string, fields map[string]any) {
	entry := s.log.WithField("stage", stage)
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	switch level {
	case api.LogLevelDebug:
		entry.Debug(message)
	case api.LogLevelWarn:
		entry.Warn(message)
	case api.LogLevelError:
		entry.Error(message)
	default:
		entry.Info(message)
	}
}

func main() {
	var (
		outPath string
		target  string
		verbose bool
	)

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	root := &cobra.Command{
		Use:           "waqc <input.wasm>",
		Short:         "compile a WebAssembly binary module to QBE IL text",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}

			input, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			var t api.Target
			switch target {
			case "native", "":
				t = api.TargetNative
			case "freestanding":
				t = api.TargetFreestanding
			default:
				return fmt.Errorf("unknown target %q (want native or freestanding)", target)
			}

			il, err := api.Compile(input, api.Options{Target: t, Sink: logrusSink{logger}})
			if err != nil {
				return err
			}

			if outPath == "" || outPath == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), il)
				return err
			}
			return os.WriteFile(outPath, []byte(il), 0o644)
		},
	}

	root.Flags().StringVarP(&outPath, "output", "o", "", "output path for the generated IL ('-' or unset for stdout)")
	root.Flags().StringVarP(&target, "target", "t", "native", "codegen target: native or freestanding")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level diagnostics")

	if err := root.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
