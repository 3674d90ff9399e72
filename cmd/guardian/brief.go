package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"guardian/internal/brief"
	"guardian/internal/config"
)

func newBriefCmd() *cobra.Command {
	var (
		question string
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "brief <document.pdf>",
		Short: "Ingest a regulatory PDF and print a technical brief",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.RequireFile(args[0]); err != nil {
				return err
			}
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			b, err := a.Brief(cmd.Context())
			if err != nil {
				return err
			}
			scope := brief.ScopeCurrentDocument
			if all {
				scope = brief.ScopeAllDocuments
			}
			res, err := b.AnalyzeDetailed(cmd.Context(), args[0], question, scope)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			if len(res.Sources) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "\nSources: %s\n", strings.Join(res.Sources, ", "))
			}
			if res.Fallback {
				fmt.Fprintln(cmd.ErrOrStderr(), "Note: no passages matched this document; answered from all documents.")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "question to answer (defaults to a requirements extraction prompt)")
	cmd.Flags().BoolVar(&all, "all", false, "use passages from every ingested document")
	return cmd
}

func newQueryCmd() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question over every ingested document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			b, err := a.Brief(cmd.Context())
			if err != nil {
				return err
			}
			res, err := b.QueryAll(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Answer)
			fmt.Fprintln(out, "\nChunks per document:")
			for _, src := range res.Sources {
				name := filepath.Base(src)
				fmt.Fprintf(out, "  %s: %d\n", name, res.ChunkDistribution[name])
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", brief.DefaultAllK, "passages to retrieve")
	return cmd
}
