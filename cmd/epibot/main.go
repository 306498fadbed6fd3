// Command epibot runs the pedigree epilepsy bot and its maintenance commands.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"epibot/internal/config"
	"epibot/internal/logging"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

// cli runs the root command and maps the result to an exit status.
func cli(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "epibot: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	return 0
}

// cliState carries what PersistentPreRunE prepared for the subcommands.
type cliState struct {
	configPath string
	verbose    bool
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	state := &cliState{}
	root := &cobra.Command{
		Use:   "epibot",
		Short: "Cane Corso pedigree epilepsy bot",
		Long: `epibot collects pedigree records of dogs with epilepsy through a
step-by-step form and lets users search them by name.

Run "epibot serve" to talk to the bot on this terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skip-setup"] == "true" {
				return nil
			}
			cfg, err := config.Load(state.configPath)
			if err != nil {
				return err
			}
			if state.verbose {
				cfg.Logging.Level = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			state.cfg = cfg
			state.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if state.logger != nil {
				_ = state.logger.Sync()
			}
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&state.configPath, "config", "c", "epibot.yaml", "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&state.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(state),
		newSearchCmd(state),
		newDeleteCmd(state),
		newExportCmd(state),
		newConfigCmd(state),
	)
	return root
}
