package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"guardian/internal/qa"
)

func newAskCmd() *cobra.Command {
	var (
		questions  []string
		insights   bool
		guidelines []string
	)
	cmd := &cobra.Command{
		Use:   "ask <repository>",
		Short: "Index a repository and answer questions about it",
		Long: `Ask indexes the repository's source and documentation files and answers
each --question in order. Without questions, insights or checks it reads
questions from stdin, one per line, until EOF or "exit".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			s, stats, err := a.QA.Init(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(cmd.ErrOrStderr(), "indexed %d documents into %d chunks\n", stats.Documents, stats.Chunks)

			if insights {
				res, err := s.Insights(ctx)
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(res))
				for k := range res {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, q := range keys {
					fmt.Fprintf(out, "## %s\n%s\n\n", q, res[q])
				}
			}
			if len(guidelines) > 0 {
				checks, err := s.CheckCompliance(ctx, guidelines)
				if err != nil {
					return err
				}
				for _, c := range checks {
					fmt.Fprintf(out, "## %s\n%s\n", c.Guideline, c.Assessment)
					printSources(out, c.Evidence)
				}
			}
			for _, q := range questions {
				ans, err := s.Ask(ctx, q)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Q: %s\nA: %s\n", q, ans.Answer)
				printSources(out, ans.Sources)
			}
			if len(questions) > 0 || insights || len(guidelines) > 0 {
				return nil
			}
			return interactive(cmd, s)
		},
	}
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "question to ask (repeatable)")
	cmd.Flags().BoolVar(&insights, "insights", false, "answer the standard repository overview questions")
	cmd.Flags().StringArrayVar(&guidelines, "check", nil, "guideline to check compliance with (repeatable)")
	return cmd
}

func interactive(cmd *cobra.Command, s *qa.Session) error {
	out := cmd.OutOrStdout()
	sc := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		q := strings.TrimSpace(sc.Text())
		switch strings.ToLower(q) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		ans, err := s.Ask(cmd.Context(), q)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, ans.Answer)
		printSources(out, ans.Sources)
	}
}

func printSources(w io.Writer, sources []string) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintf(w, "Sources: %s\n\n", strings.Join(sources, ", "))
}
