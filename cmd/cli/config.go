package main

import (
	"fmt"
	"os"

	"github.com/ashutoshrp06/agentdesk/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(opts *options) *cobra.Command {
	var (
		initFile bool
		show     bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "View or create configuration",
		Long:  "View the current configuration or create a default config file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if initFile {
				path := opts.configPath
				if path == "" {
					path = "config.yaml"
				}
				return initConfig(cmd, path)
			}
			// Only show config when --show is true (default) or explicitly set
			if show {
				return showConfig(cmd, opts)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&initFile, "init", false, "Create default config file")
	cmd.Flags().BoolVar(&show, "show", true, "Show current configuration")
	return cmd
}

func initConfig(cmd *cobra.Command, path string) error {
	w := cmd.OutOrStdout()
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintln(w, warnStyle.Render(path+" already exists. Use --show to view it."))
		return nil
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("create config: %w", err)
	}

	fmt.Fprintln(w, okStyle.Render("Created "+path+" with default settings."))
	fmt.Fprintln(w, "\nEdit this file to configure:")
	fmt.Fprintln(w, "  - gateway.base_url and credentials")
	fmt.Fprintln(w, "  - attachment size limits")
	fmt.Fprintln(w, "  - execute confirmation for tool commands")
	fmt.Fprintln(w, "  - chat widget preferences (reloaded live in --it mode)")
	return nil
}

func showConfig(cmd *cobra.Command, opts *options) error {
	w := cmd.OutOrStdout()
	cfg, path, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintln(w, warnStyle.Render("No config file found. Showing defaults:\n"))
	} else {
		fmt.Fprintln(w, headerStyle.Render("Current Configuration ("+path+"):\n"))
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprintln(w, string(data))

	fmt.Fprintln(w, dimStyle.Render("Config file locations (in order of precedence):"))
	fmt.Fprintln(w, "  1. --config <path>")
	fmt.Fprintln(w, "  2. ./config.local.yaml")
	fmt.Fprintln(w, "  3. ./config.yaml")
	fmt.Fprintln(w, "  4. ~/.agentdesk/config.yaml")
	fmt.Fprintln(w, dimStyle.Render("Environment overrides use the "+config.EnvPrefix+"_ prefix, e.g. "+config.EnvPrefix+"_GATEWAY_TOKEN."))
	return nil
}
