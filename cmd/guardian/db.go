package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"guardian/internal/vectorstore"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect or reset the regulatory document store",
	}
	cmd.AddCommand(newDBInfoCmd(), newDBClearCmd())
	return cmd
}

func newDBInfoCmd() *cobra.Command {
	var count bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show where the document store lives and how large it is",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out := map[string]any{}
			if cfg.VectorPGDSN != "" {
				out["backend"] = "postgres"
			} else {
				info, err := vectorstore.Info(cfg.VectorDir)
				if err != nil {
					return err
				}
				out["backend"] = "disk"
				out["disk"] = info
			}
			if count {
				a, err := loadApp(cmd)
				if err != nil {
					return err
				}
				defer a.Close()
				b, err := a.Brief(cmd.Context())
				if err != nil {
					return err
				}
				n, err := b.ChunkCount(cmd.Context())
				if err != nil {
					return err
				}
				out["chunks"] = n
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&count, "count", false, "open the store and count its passages")
	return cmd
}

func newDBClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every ingested passage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			backup, err := a.ClearDatabase(cmd.Context())
			if err != nil {
				return err
			}
			if backup != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "store was in use; moved aside to %s\n", backup)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "document store cleared")
			return nil
		},
	}
}
