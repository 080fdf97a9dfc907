package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

func main() {
	doMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, stdIn io.Reader, stdOut, stdErr io.Writer, exit func(code int)) {
	var colorMode string
	root := newRootCmd(&colorMode)
	root.SetArgs(args)
	root.SetIn(stdIn)
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		p, perr := newPalette(colorMode)
		if perr != nil {
			p = plainPalette()
		}
		p.err.Fprintf(stdErr, "error: %v\n", err)
		exit(1)
		return
	}
	exit(0)
}

func newRootCmd(colorMode *string) *cobra.Command {
	root := &cobra.Command{
		Use:           "shaderlive",
		Short:         "Liveness and register pressure analysis of SSA shader functions",
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(colorMode, "color", "auto", "colorize output (auto|on|off)")

	root.AddCommand(newAnalyzeCmd(colorMode))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "shaderlive %s\n", getVersion())
			return err
		},
	})
	return root
}

func getVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
