package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"epibot/internal/adapters/export"
	"epibot/internal/blob"
	"epibot/internal/config"
	"epibot/internal/logging"
)

func newSearchCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find records whose name contains the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd.Context(), state.cfg, state.logger)
			if err != nil {
				return err
			}
			defer closeInto(a, &err)

			results, err := a.svc.Lookup(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				_, err = fmt.Fprintln(out, "no matching records")
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tMOTHER\tFATHER\tADDED")
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, dash(r.MotherName), dash(r.FatherName), r.CreatedAt.Format("2006.01.02"))
			}
			return tw.Flush()
		},
	}
}

func newDeleteCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete every record with exactly this name, ignoring case",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd.Context(), state.cfg, state.logger)
			if err != nil {
				return err
			}
			defer closeInto(a, &err)

			n, err := a.svc.DeleteByName(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d record(s)\n", n)
			return err
		},
	}
}

func newExportCmd(state *cliState) *cobra.Command {
	var (
		formats []string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every record to the configured blob store as JSON and CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg := state.cfg
			a, err := newApp(cmd.Context(), cfg, state.logger)
			if err != nil {
				return err
			}
			defer closeInto(a, &err)

			store, err := blob.Open(cmd.Context(), cfg.Blob)
			if err != nil {
				return err
			}
			worker := export.NewWorker(a.records, store,
				export.WithPrefix(cfg.Export.Prefix),
				export.WithQueueSize(cfg.Export.QueueSize),
				export.WithLogger(logging.Wrap(state.logger).Named("export")),
				export.WithAuditRecorder(logging.NewAuditLogger(state.logger)),
			)
			worker.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				err = errors.Join(err, worker.Stop(stopCtx))
			}()

			req := export.Request{RequestedBy: "cli"}
			for _, f := range formats {
				req.Formats = append(req.Formats, export.Format(f))
			}
			job, err := worker.Enqueue(cmd.Context(), req)
			if err != nil {
				return err
			}
			waitCtx, cancel := contextWithTimeout(cmd, timeout)
			defer cancel()
			job, err = worker.Wait(waitCtx, job.ID)
			if err != nil {
				return err
			}
			if job.Status != export.StatusSucceeded {
				return fmt.Errorf("export %s failed: %s", job.ID, job.Error)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "exported %d record(s) as job %s\n", job.Records, job.ID)
			for _, art := range job.Artifacts {
				line := fmt.Sprintf("  %s (%s, %d bytes)", art.Key, art.ContentType, art.SizeBytes)
				if art.URL != "" {
					line += " " + art.URL
				}
				if _, err := fmt.Fprintln(out, line); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "output formats: json, csv (default both)")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "how long to wait for the export")
	return cmd
}

func newConfigCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the default config file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skip-setup": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(state.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", state.configPath)
			}
			if err := config.DefaultConfig().Save(state.configPath); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", state.configPath)
			return err
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the config, apply EPIBOT_* overrides and validate it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "config ok: storage=%s blob=%s\n", state.cfg.Storage.Driver, state.cfg.Blob.Driver)
			return err
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}

func dash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
