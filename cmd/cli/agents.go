package main

import (
	"fmt"
	"io"

	"github.com/ashutoshrp06/agentdesk/internal/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
)

func newAgentsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts, false)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := s.bound(cmd.Context())
			defer cancel()
			if err := s.desk.Start(ctx); err != nil {
				printConnectionHelp(cmd.ErrOrStderr(), s.cfg)
				return err
			}
			selected, _ := s.desk.SelectedAgent()
			printAgents(cmd.OutOrStdout(), s.desk.Agents(), selected.ID)
			return nil
		},
	}
}

func printAgents(w io.Writer, agents []types.Agent, selected string) {
	fmt.Fprintln(w, headerStyle.Render("Agents"))
	fmt.Fprintln(w)
	if len(agents) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  No agents configured."))
		return
	}
	for _, a := range agents {
		marker := " "
		if a.ID == selected {
			marker = "*"
		}
		status := "inactive"
		if a.IsActive {
			status = "active"
		}
		fmt.Fprintf(w, "%s %s %s [%s]\n", marker, nameStyle.Render(a.Name), idStyle.Render(a.ID), status)
		if model := a.Model.String(); model != "" {
			fmt.Fprintf(w, "    model: %s\n", model)
		}
		if a.Description != "" {
			fmt.Fprintf(w, "    %s\n", dimStyle.Render(a.Description))
		}
	}
}

func newConversationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"convs"},
		Short:   "List the conversations of an agent",
		Args:    cobra.NoArgs,
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

			agent, _ := s.desk.SelectedAgent()
			convs, err := s.desk.ReloadConversations(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, headerStyle.Render("Conversations of "+agent.Name))
			fmt.Fprintln(w)
			if len(convs) == 0 {
				fmt.Fprintln(w, dimStyle.Render("  No conversations yet."))
				return nil
			}
			for _, c := range convs {
				line := fmt.Sprintf("  %s %s", idStyle.Render(c.ID), c.Title)
				if c.Counts != nil {
					line += dimStyle.Render(fmt.Sprintf(" (%d messages)", c.Counts.Messages))
				}
				fmt.Fprintln(w, line)
				if c.LastMessage != nil && c.LastMessage.Content != "" {
					fmt.Fprintf(w, "      %s\n", dimStyle.Render(truncate(c.LastMessage.Content, 72)))
				}
			}
			return nil
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
