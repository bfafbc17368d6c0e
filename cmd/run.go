package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser"
	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/lifecycle"
	"github.com/xkilldash9x/scalpel-e2e/internal/reporting"
	"github.com/xkilldash9x/scalpel-e2e/internal/store"
	"github.com/xkilldash9x/scalpel-e2e/internal/suites"
)

// errTestsFailed is returned when the run completed but some tests failed.
var errTestsFailed = errors.New("tests failed")

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs the checkout suite against the configured base URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := runSuite(cmd.Context(), a.cfg, runDeps{Stdout: cmd.OutOrStdout()}, a.logger)
			if err != nil {
				return err
			}
			if !summary.OK() {
				return fmt.Errorf("%w: %d of %d", errTestsFailed, summary.Failed, len(summary.Cases))
			}
			return nil
		},
	}
}

// runDeps are the seams runSuite accepts. Zero values select production behavior.
type runDeps struct {
	// Launcher overrides the driver chosen by configuration.
	Launcher browser.Launcher
	// Writers replaces the configured report formats.
	Writers []reporting.Writer
	Stdout  io.Writer
}

// runSuite wires the harness from configuration, runs the checkout cases and
// prints the summary table.
func runSuite(ctx context.Context, cfg config.Interface, deps runDeps, logger *zap.Logger) (*lifecycle.Summary, error) {
	if err := validateBaseURL(cfg.Run().BaseURL); err != nil {
		return nil, err
	}

	cases, err := suites.Checkout(cfg)
	if err != nil {
		return nil, err
	}

	launcher := deps.Launcher
	if launcher == nil {
		if launcher, err = browser.NewLauncher(cfg.Browser().Driver, logger); err != nil {
			return nil, err
		}
	}
	manager := browser.NewManager(cfg.Browser(), launcher, logger)

	writers := deps.Writers
	if writers == nil {
		if writers, err = reporting.NewWriters(cfg.Report().Formats); err != nil {
			return nil, err
		}
	}
	if dsn := cfg.Report().DatabaseURL; dsn != "" {
		history, err := openHistory(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		defer history.Close()
		writers = append(writers, &store.ReportWriter{Store: history})
	}

	sink := reporting.NewSink(reporting.Options{
		BaseDir:     cfg.Report().Dir,
		Environment: cfg.Run().Env,
		Author:      cfg.Report().Author,
		Browser:     cfg.Browser().Kind,
		Writers:     writers,
	}, logger)

	ctrl, err := lifecycle.NewController(manager, sink, lifecycle.OptionsFromConfig(cfg), logger)
	if err != nil {
		return nil, err
	}

	summary, runErr := ctrl.Run(ctx, cases)
	if report := sink.Report(); report != nil && deps.Stdout != nil {
		if err := reporting.RenderSummary(deps.Stdout, report); err != nil {
			logger.Warn("Failed to render summary.", zap.Error(err))
		}
		fmt.Fprintf(deps.Stdout, "Report: %s\n", sink.Dir())
	}
	return summary, runErr
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is not configured (E2E_BASE_URL)", config.KeyBaseURL)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s %q is not an absolute URL", config.KeyBaseURL, raw)
	}
	return nil
}

func openHistory(ctx context.Context, dsn string, logger *zap.Logger) (*store.Store, error) {
	history, err := store.Open(ctx, dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	if err := history.EnsureSchema(ctx); err != nil {
		history.Close()
		return nil, err
	}
	return history, nil
}
