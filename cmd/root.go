// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/observability"
)

// flagKeys maps root flags onto configuration keys.
var flagKeys = map[string]string{
	"browser":    config.KeyBrowser,
	"driver":     config.KeyDriver,
	"headless":   config.KeyHeadless,
	"workers":    config.KeyWorkers,
	"retry":      config.KeyRetryCount,
	"base-url":   config.KeyBaseURL,
	"env":        config.KeyEnv,
	"report-dir": config.KeyReportDir,
	"data-file":  config.KeyDataFile,
}

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	cfgFile   string
	overrides []string

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "scalpel-e2e",
		Short:         "Runs browser driven end to end suites and records step level reports.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseOverrides(a.overrides)
			if err != nil {
				return err
			}
			cfg, err := config.Load(config.LoadOptions{
				File:      a.cfgFile,
				Flags:     cmd.Flags(),
				FlagKeys:  flagKeys,
				Overrides: overrides,
			})
			if err != nil {
				return err
			}
			a.cfg = cfg

			observability.InitializeLogger(cfg.Logger())
			a.logger = observability.GetLogger()
			a.logger.Debug("Configuration resolved.", zap.String("version", Version))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.properties or ./configs/config.*)")
	pf.StringArrayVar(&a.overrides, "set", nil, "override a configuration key, e.g. --set retry.count=2 (repeatable)")
	pf.String("browser", "", "browser to launch: chrome, msedge, firefox or webkit")
	pf.String("driver", "", "automation driver: playwright or cdp")
	pf.Bool("headless", true, "run the browser without a window")
	pf.IntP("workers", "j", 0, "number of tests run in parallel")
	pf.Int("retry", 0, "retries granted to a failing test")
	pf.String("base-url", "", "URL of the application under test")
	pf.String("env", "", "environment label shown in reports")
	pf.String("report-dir", "", "directory that receives run reports")
	pf.String("data-file", "", "xlsx workbook holding test data")

	rootCmd.AddCommand(newRunCmd(a), newHistoryCmd(a), newVersionCmd())
	return rootCmd
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	defer observability.Sync()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// parseOverrides turns key=value pairs into a map.
func parseOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set value %q, want key=value", p)
		}
		out[strings.ToLower(key)] = strings.TrimSpace(value)
	}
	return out, nil
}
