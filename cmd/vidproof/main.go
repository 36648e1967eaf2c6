package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/roach88/vidproof/internal/cli"
)

const programName = "vidproof"

func slogPrintf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", programName)
}

// setupLogging installs the JSON logger. Logs go to stderr so that stdout
// carries only command output.
func setupLogging(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: debug,
		Level:     level,
	})))
	if _, err := maxprocs.Set(maxprocs.Logger(slogPrintf)); err != nil {
		slog.Error(err.Error())
		os.Exit(cli.ExitCommandError)
	}
}

func main() {
	root := cli.NewRootCommand()
	cobra.OnInitialize(func() {
		debug, _ := root.PersistentFlags().GetBool("debug")
		setupLogging(debug)
	})

	if err := root.Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
