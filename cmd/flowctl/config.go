package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/c360/formflow/config"
	"github.com/c360/formflow/store"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and inspect formflow configuration",
	}
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init <path.json>",
		Short: "Write the default configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().SaveToFile(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [path.json]...",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}
}

func newSubmissionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "Inspect stored submissions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "count [path.json]...",
		Short: "Count submissions per flow in the sqlite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args)
			if err != nil {
				return err
			}
			if cfg.Storage.Backend != store.BackendSQLite {
				return fmt.Errorf("submissions count needs the sqlite backend, config uses %q", cfg.Storage.Backend)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := store.OpenSQLite(ctx, cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			counts, err := st.CountByFlow(ctx)
			if err != nil {
				return err
			}
			flows := make([]string, 0, len(counts))
			for flow := range counts {
				flows = append(flows, flow)
			}
			sort.Strings(flows)
			for _, flow := range flows {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", flow, counts[flow])
			}
			return nil
		},
	})
	return cmd
}

func loadConfig(paths []string) (*config.Config, error) {
	loader := config.NewLoader()
	for _, p := range paths {
		loader.AddLayer(p)
	}
	loader.EnableValidation(true)
	return loader.Load()
}
