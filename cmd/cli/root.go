package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ashutoshrp06/agentdesk/internal/config"
	"github.com/ashutoshrp06/agentdesk/internal/orchestrator"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// options holds the persistent flags shared by every command.
type options struct {
	configPath   string
	verbose      bool
	interactive  bool
	agentID      string
	conversation string
	attach       []string
}

var (
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	userStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true)
	botStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
)

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "agentdesk [message]",
		Short: "Operator console for conversational agents",
		Long: `agentdesk talks to the agent console backend: pick an agent, chat in its
conversations with file context attached, and test or execute the tool
commands bound to it.

Usage:
  agentdesk --it
  agentdesk --agent a1 "Summarise the last refund request"
  agentdesk tools --verbose`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.interactive {
				return runInteractive(cmd.Context(), opts)
			}
			if len(args) > 0 {
				return runOneShot(cmd.Context(), cmd.OutOrStdout(), opts, strings.Join(args, " "))
			}
			return cmd.Help()
		},
	}

	cmd.Flags().BoolVar(&opts.interactive, "it", false, "Start interactive mode")
	cmd.Flags().StringVar(&opts.conversation, "conversation", "", "Conversation to send to (default: a new one)")
	cmd.Flags().StringSliceVar(&opts.attach, "attach", nil, "File to attach to the message (repeatable)")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().StringVar(&opts.agentID, "agent", "", "Agent id (default: first active agent)")

	cmd.AddCommand(newAgentsCmd(opts))
	cmd.AddCommand(newConversationsCmd(opts))
	cmd.AddCommand(newToolsCmd(opts))
	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newHealthCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// session is a loaded config, logger and desk for one command invocation.
type session struct {
	cfg     *config.Config
	cfgPath string
	logger  *zap.Logger
	desk    *orchestrator.Desk
	opts    *options
}

// openSession loads configuration and builds the desk. Interactive sessions
// log to the configured file so the terminal stays clean.
func openSession(opts *options, toFile bool) (*session, error) {
	cfg, path, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := createLogger(cfg, opts.verbose, toFile)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	desk, err := orchestrator.New(orchestrator.Config{
		AppConfig: cfg,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("session opened",
		zap.String("config", path),
		zap.String("base_url", cfg.Gateway.BaseURL))

	return &session{cfg: cfg, cfgPath: path, logger: logger, desk: desk, opts: opts}, nil
}

func (s *session) Close() {
	_ = s.logger.Sync()
}

// bound limits a whole command to a few request timeouts.
func (s *session) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 3*s.cfg.Timeout())
}

// start loads the desk and switches to the --agent flag if given.
func (s *session) start(ctx context.Context) error {
	if err := s.desk.Start(ctx); err != nil {
		return fmt.Errorf("load agents from %s: %w", s.cfg.Gateway.BaseURL, err)
	}
	if s.opts.agentID != "" {
		if _, err := s.desk.SelectAgent(ctx, s.opts.agentID); err != nil {
			return err
		}
	}
	if _, ok := s.desk.SelectedAgent(); !ok {
		return &types.ValidationError{Field: "agent", Reason: "no active agent; pass --agent"}
	}
	return nil
}

func loadConfig(opts *options) (*config.Config, string, error) {
	if opts.configPath != "" {
		cfg, err := config.Load(opts.configPath)
		return cfg, opts.configPath, err
	}
	return config.LoadFromPaths(
		"config.local.yaml",
		"config.yaml",
	)
}

func createLogger(cfg *config.Config, verbose, toFile bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if verbose {
		zc = zap.NewDevelopmentConfig()
	} else if level, err := zap.ParseAtomicLevel(cfg.Logging.Level); err == nil {
		zc.Level = level
	}
	if toFile && cfg.Logging.File != "" {
		zc.OutputPaths = []string{cfg.Logging.File}
		zc.ErrorOutputPaths = []string{cfg.Logging.File}
	}
	return zc.Build()
}

func runOneShot(ctx context.Context, w io.Writer, opts *options, text string) error {
	s, err := openSession(opts, false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.start(ctx); err != nil {
		return err
	}

	if opts.conversation != "" {
		if _, err := s.desk.SelectConversation(ctx, opts.conversation); err != nil {
			return err
		}
	} else {
		conv, err := s.desk.CreateConversation(ctx, "")
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		fmt.Fprintln(w, dimStyle.Render("Conversation "+conv.ID+": "+conv.Title))
	}

	for _, path := range opts.attach {
		f, err := s.desk.Attach(path)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("Attached %s (%s, %d bytes)", f.Name, f.Type, f.Size)))
	}

	res, err := s.desk.Send(ctx, text)
	if err != nil {
		printError(w, "Send failed", err)
		return err
	}
	if res.Warning != nil {
		fmt.Fprintln(w, warnStyle.Render("Warning: "+res.Warning.Error()))
	}

	agent, _ := s.desk.SelectedAgent()
	printMessages(w, agent.Name, s.desk.Messages())
	return nil
}

func printMessages(w io.Writer, agentName string, msgs []types.Message) {
	if agentName == "" {
		agentName = "Agent"
	}
	for _, m := range msgs {
		if m.Sender == types.SenderUser {
			fmt.Fprintf(w, "%s %s\n", userStyle.Render("You:"), m.Content)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", botStyle.Render(agentName+":"), m.Content)
	}
}

func printError(w io.Writer, msg string, err error) {
	fmt.Fprintln(w, errStyle.Render(fmt.Sprintf("Error: %s: %v", msg, err)))
}

func printConnectionHelp(w io.Writer, cfg *config.Config) {
	cmdStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))

	fmt.Fprintln(w, errStyle.Render("Could not reach the backend at "+cfg.Gateway.BaseURL))
	fmt.Fprintln(w)
	fmt.Fprintln(w, dimStyle.Render("Check that the console API is running, or point agentdesk at it:"))
	fmt.Fprintln(w, cmdStyle.Render("  AGENTDESK_GATEWAY_BASE_URL=http://host:3000/api agentdesk --it"))
	fmt.Fprintln(w, dimStyle.Render("Or edit gateway.base_url in config.yaml (agentdesk config --init)."))
}
