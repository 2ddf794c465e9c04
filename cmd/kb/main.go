package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"itsmehi/internal/app"
	"itsmehi/internal/chunker"
	"itsmehi/internal/index"
	"itsmehi/internal/kb"
	"itsmehi/internal/store"
)

func main() {
	if err := newRootCommand(app.BuildKB).Execute(); err != nil {
		os.Exit(1)
	}
}

type buildFunc func() (app.KBDeps, error)

func newRootCommand(build buildFunc) *cobra.Command {
	root := &cobra.Command{
		Use:          "kb",
		Short:        "Manage the chatbot knowledge base",
		SilenceUsage: true,
	}
	root.AddCommand(newSeedCommand(build), newListCommand(build), newDropCommand(build), newHistoryCommand(build))
	return root
}

func newSeedCommand(build buildFunc) *cobra.Command {
	var (
		sample bool
		opts   chunker.Options
	)
	cmd := &cobra.Command{
		Use:   "seed [path...]",
		Short: "Embed documents and load them into the index",
		Long:  "Seed reads .txt, .md, .pdf and .json files (or directories of them), splits them into passages and upserts their embeddings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !sample {
				return fmt.Errorf("nothing to seed: pass one or more paths or --sample")
			}
			deps, err := build()
			if err != nil {
				return err
			}
			defer deps.Index.Close()
			return runSeed(cmd, deps, args, sample, opts)
		},
	}
	cmd.Flags().BoolVar(&sample, "sample", false, "load the built-in sample passages")
	cmd.Flags().IntVar(&opts.MaxTokens, "max-tokens", chunker.DefaultMaxTokens, "maximum words per passage")
	cmd.Flags().IntVar(&opts.Overlap, "overlap", chunker.DefaultOverlap, "words shared by consecutive windows of a long paragraph")
	return cmd
}

func runSeed(cmd *cobra.Command, deps app.KBDeps, paths []string, sample bool, opts chunker.Options) error {
	var all []index.Passage
	if sample {
		all = kb.SamplePassages()
	}
	for _, p := range paths {
		loaded, err := kb.LoadPath(p, opts)
		if err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
		deps.Log.Info("loaded source", "path", p, "passages", len(loaded))
		all = append(all, loaded...)
	}

	n, err := kb.NewSeeder(deps.Log, deps.Embedder, deps.Index).Seed(cmd.Context(), all)
	if err != nil {
		return err
	}
	if deps.Persist != nil {
		if err := deps.Persist(); err != nil {
			return fmt.Errorf("save index: %w", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %d passages loaded into the knowledge base.\n", n)
	return nil
}

func newListCommand(build buildFunc) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the passages stored in the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := build()
			if err != nil {
				return err
			}
			defer deps.Index.Close()
			return runList(cmd, deps, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum passages to print")
	return cmd
}

func runList(cmd *cobra.Command, deps app.KBDeps, limit int) error {
	passages, err := deps.Index.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d passages found:\n\n", len(passages))
	for _, p := range passages {
		fmt.Fprintf(out, "ID: %s | Source: %s | Text: %s\n", p.ID, p.Source, p.Text)
	}
	return nil
}

func newDropCommand(build buildFunc) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Delete the whole collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to drop the collection without --yes")
			}
			deps, err := build()
			if err != nil {
				return err
			}
			defer deps.Index.Close()
			return runDrop(cmd, deps)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func runDrop(cmd *cobra.Command, deps app.KBDeps) error {
	if err := deps.Index.Drop(cmd.Context()); err != nil {
		return err
	}
	if deps.Persist != nil {
		if err := deps.Persist(); err != nil {
			return fmt.Errorf("save index: %w", err)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "🗑️ Collection dropped.")
	return nil
}

func newHistoryCommand(build buildFunc) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := build()
			if err != nil {
				return err
			}
			defer deps.Index.Close()
			if deps.OpenConversations == nil {
				return fmt.Errorf("DB_URL is required to read the conversation log")
			}
			st, err := deps.OpenConversations()
			if err != nil {
				return err
			}
			if index.Index(st) != deps.Index {
				defer st.Close()
			}
			return runHistory(cmd, st, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum conversations to print")
	return cmd
}

func runHistory(cmd *cobra.Command, st store.Store, limit int) error {
	out := cmd.OutOrStdout()
	entries, err := st.RecentConversations(cmd.Context(), limit)
	if errors.Is(err, store.ErrConversationNotFound) {
		fmt.Fprintln(out, "No conversations recorded yet.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d conversations found:\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(out, "%s [%s] Q: %s\n", e.At.UTC().Format(time.RFC3339), e.Language, e.Question)
		if e.Fallback != "" {
			fmt.Fprintf(out, "  fallback: %s\n", e.Fallback)
		}
		fmt.Fprintf(out, "  A: %s\n", e.Answer)
		if len(e.Sources) > 0 {
			fmt.Fprintf(out, "  sources: %s\n", strings.Join(e.Sources, ", "))
		}
	}
	return nil
}
