package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newPatternsCmd() *cobra.Command {
	var (
		src        briefSource
		extensions bool
	)
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Print the searchable violation patterns derived from a brief",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			text, err := src.resolve(ctx, a)
			if err != nil {
				return err
			}
			set, err := a.Patterns.Generate(ctx, text)
			if err != nil {
				return err
			}
			out := map[string]any{"patterns": set}
			if extensions {
				exts, err := a.Patterns.Extensions(ctx, text)
				if err != nil {
					a.Log.Warn("extension suggestion failed", "error", err)
				}
				out["extensions"] = exts
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	src.register(cmd)
	cmd.Flags().BoolVar(&extensions, "extensions", false, "also ask which file extensions are likely relevant")
	return cmd
}
