package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ashutoshrp06/agentdesk/internal/config"
	"github.com/ashutoshrp06/agentdesk/internal/gateway"
	"github.com/ashutoshrp06/agentdesk/internal/orchestrator"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"github.com/ashutoshrp06/agentdesk/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

func runInteractive(ctx context.Context, opts *options) error {
	s, err := openSession(opts, true)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Print(warnStyle.Render("Connecting to " + s.cfg.Gateway.BaseURL + "... "))
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout())
	err = s.desk.Ping(pingCtx)
	cancel()
	if err != nil {
		fmt.Println(errStyle.Render("✗"))
		fmt.Println()
		printConnectionHelp(os.Stdout, s.cfg)
		return err
	}
	fmt.Println(okStyle.Render("✓"))

	if opts.agentID != "" {
		startCtx, cancel := s.bound(ctx)
		err := s.start(startCtx)
		cancel()
		if err != nil {
			return err
		}
	}

	model := ui.NewModel(s.desk, ui.Options{
		Prefs:   s.cfg.UI,
		Logger:  s.logger.Named("ui"),
		Started: opts.agentID != "",
	})
	p := tea.NewProgram(model, tea.WithAltScreen())

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// Health checks use their own client so they never queue behind chat requests.
	poller := gateway.NewHealthPoller(orchestrator.NewGateway(s.cfg, s.logger), gateway.HealthConfig{
		Path:     s.cfg.Gateway.HealthPath,
		Interval: s.cfg.HealthInterval(),
		Logger:   s.logger.Named("health"),
		OnChange: func(status types.HealthStatus, err error) {
			p.Send(ui.HealthMsg{Status: status, Err: err})
		},
	})
	go poller.Run(ctx)

	if s.cfgPath != "" {
		err := config.Watch(s.cfgPath,
			func(cfg *config.Config) {
				s.logger.Info("config reloaded", zap.String("path", s.cfgPath))
				p.Send(ui.PrefsMsg{UI: cfg.UI})
			},
			func(err error) {
				s.logger.Warn("ignoring invalid config change", zap.Error(err))
			})
		if err != nil {
			s.logger.Warn("config watch disabled", zap.Error(err))
		}
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run UI: %w", err)
	}
	return nil
}
