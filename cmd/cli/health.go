package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts, false)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), s.cfg.Timeout())
			defer cancel()

			w := cmd.OutOrStdout()
			start := time.Now()
			if err := s.desk.Ping(ctx); err != nil {
				fmt.Fprintln(w, errStyle.Render("✗ offline"))
				printConnectionHelp(w, s.cfg)
				return err
			}
			fmt.Fprintf(w, "%s %s\n", okStyle.Render("✓ online"),
				dimStyle.Render(fmt.Sprintf("%s (%s)", s.cfg.Gateway.BaseURL, time.Since(start).Round(time.Millisecond))))
			return nil
		},
	}
}
