package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/app"
	"github.com/Zorrojurro/project-aarna/internal/config"
)

type globalFlags struct {
	configPath string
	dataDir    string
	identity   string
	demo       bool
	verbose    bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "aarnactl",
		Short:         "Operate the Aarna blue-carbon registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "config.json", "path to the JSON config file")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "directory for local registry and simulated ledger state")
	root.PersistentFlags().StringVar(&flags.identity, "as", "", "demo identity label to act as")
	root.PersistentFlags().BoolVar(&flags.demo, "demo", false, "run against the simulated ledger with demo identities")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newDeployCommand(flags),
		newValidatorCommand(flags),
		newAdminCommand(flags),
		newTokenCommand(flags),
		newOptInCommand(flags),
		newSubmitCommand(flags),
		newApproveCommand(flags),
		newRejectCommand(flags),
		newIssueCommand(flags),
		newListCommand(flags),
		newBuyCommand(flags),
		newCancelCommand(flags),
		newStateCommand(flags),
		newExportCommand(flags),
		newKeygenCommand(),
		newAddressCommand(),
	)
	return root
}

func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.demo {
		cfg.Session.Demo = true
	}
	if f.verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.Development = true
	cfg.Reconcile.Enabled = false

	if f.dataDir != "" {
		cfg.Persistence.Driver = config.DriverFile
		cfg.Persistence.Path = filepath.Join(f.dataDir, "aarna-state.json")
		cfg.Ledger.SimulatedStatePath = filepath.Join(f.dataDir, "aarna-ledger.json")
	}
	if cfg.UseSimulatedLedger() && cfg.Ledger.SimulatedStatePath == "" {
		cfg.Ledger.SimulatedStatePath = "aarna-ledger.json"
	}
	return cfg, nil
}

// withApp runs fn against a freshly wired and loaded portal and saves
// simulated state afterwards.
func (f *globalFlags) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return err
	}
	logger := zap.NewNop()
	if f.verbose {
		if logger, err = cfg.Logging.Build(); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, app.Options{}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to save state: %w", cerr)
		}
	}()

	if err := a.ConnectFromConfig(f.identity); err != nil {
		return err
	}
	if err := a.Registry.Load(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
