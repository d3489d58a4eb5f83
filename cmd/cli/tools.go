package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashutoshrp06/agentdesk/internal/orchestrator"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newToolsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools bound to an agent",
		Long: `List the tools bound to an agent.

Examples:
  agentdesk tools                 # List tools of the default agent
  agentdesk tools --agent a1 -v   # Include each tool's commands`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts, false)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := s.bound(cmd.Context())
			defer cancel()
			if err := s.start(ctx); err != nil {
				return err
			}

			tools, err := s.desk.OpenToolPanel(ctx)
			if err != nil {
				return err
			}

			var lists map[string][]types.ToolCommand
			if opts.verbose && len(tools) > 0 {
				ids := make([]string, len(tools))
				for i, t := range tools {
					ids[i] = t.ID
				}
				lists, err = s.desk.LoadCommands(ctx, ids...)
				if err != nil {
					s.logger.Warn("some command lists failed to load", zap.Error(err))
				}
			}

			agent, _ := s.desk.SelectedAgent()
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, headerStyle.Render("Tools of "+agent.Name))
			fmt.Fprintln(w)

			paramStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
			for _, t := range tools {
				state := ""
				if !t.Enabled {
					state = dimStyle.Render(" (disabled)")
				}
				fmt.Fprintf(w, "  %s %s%s\n", nameStyle.Render(t.Name), idStyle.Render(t.ID), state)
				if t.Description != "" {
					fmt.Fprintf(w, "    %s\n", dimStyle.Render(t.Description))
				}
				if !opts.verbose {
					continue
				}
				cmds, ok := lists[t.ID]
				if !ok {
					cmds, ok = s.desk.CachedCommands(t.ID)
				}
				if !ok {
					fmt.Fprintf(w, "    %s\n", warnStyle.Render("commands unavailable"))
					continue
				}
				for _, c := range cmds {
					fmt.Fprintf(w, "    %s %s\n", paramStyle.Render(c.ID), c.Name)
					if c.Description != "" {
						fmt.Fprintf(w, "      %s\n", dimStyle.Render(c.Description))
					}
					if len(c.ExampleParams) > 0 {
						fmt.Fprintf(w, "      example: %s\n", string(c.ExampleParams))
					}
				}
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  Total: %d tools", len(tools))))
			if !opts.verbose {
				fmt.Fprintln(w, dimStyle.Render("  Use --verbose for commands"))
			}
			return nil
		},
	}
}

// errRunFailed marks a run the backend reported as unsuccessful.
var errRunFailed = errors.New("tool command failed")

func newRunCmd(opts *options) *cobra.Command {
	var (
		toolID  string
		cmdType string
		mode    string
		params  string
		confirm bool
	)

	cmd := &cobra.Command{
		Use:   "run <command-id>",
		Short: "Test or execute a tool command",
		Long: fmt.Sprintf(`Test or execute a tool command and print the formatted result.

Test mode is a dry run. Execute mode may have side effects and needs
--confirm unless tools.require_execute_confirmation is off.

Types: %s

Examples:
  agentdesk run k1 --tool t1 --type query --params '{"id": 7}'
  agentdesk run k1 --type update --mode execute --confirm`, typeNames()),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts, false)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := s.bound(cmd.Context())
			defer cancel()
			if err := s.start(ctx); err != nil {
				return err
			}

			tools, err := s.desk.OpenToolPanel(ctx)
			if err != nil {
				return err
			}
			ids := []string{toolID}
			if toolID == "" {
				ids = ids[:0]
				for _, t := range tools {
					ids = append(ids, t.ID)
				}
			}
			if _, err := s.desk.LoadCommands(ctx, ids...); err != nil {
				s.logger.Warn("some command lists failed to load", zap.Error(err))
			}

			out, err := s.desk.RunCommand(ctx, orchestrator.RunRequest{
				CommandID: args[0],
				Mode:      types.RunMode(strings.ToLower(mode)),
				Type:      types.CommandType(strings.ToLower(cmdType)),
				Params:    params,
				Confirmed: confirm,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), out.Text)
			if !out.Result.Success {
				return errRunFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&toolID, "tool", "", "Tool that owns the command (default: search all tools)")
	cmd.Flags().StringVar(&cmdType, "type", "", "Command type (required)")
	cmd.Flags().StringVar(&mode, "mode", string(types.ModeTest), "Run mode: test or execute")
	cmd.Flags().StringVar(&params, "params", "", "JSON object of parameters")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm side effects in execute mode")
	return cmd
}

func typeNames() string {
	names := make([]string, len(types.CommandTypes))
	for i, t := range types.CommandTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
