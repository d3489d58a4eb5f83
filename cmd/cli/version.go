package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, headerStyle.Render("agentdesk"))
			fmt.Fprintln(w)
			fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Version:"), idStyle.Render(Version))
			fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Git Commit:"), idStyle.Render(GitCommit))
			fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Build Date:"), idStyle.Render(BuildDate))
			fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Go Version:"), idStyle.Render(runtime.Version()))
			fmt.Fprintf(w, "%s %s/%s\n", dimStyle.Render("Platform:"), idStyle.Render(runtime.GOOS), idStyle.Render(runtime.GOARCH))
		},
	}
}
