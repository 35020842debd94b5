package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeanpaul/recall/internal/analysis"
	"github.com/jeanpaul/recall/internal/config"
	"github.com/jeanpaul/recall/internal/engine"
	"github.com/jeanpaul/recall/internal/headless"
	"github.com/jeanpaul/recall/internal/knowledge"
	"github.com/jeanpaul/recall/internal/metrics"
)

func newAskCommand(a *app) *cobra.Command {
	var render, showMetrics bool

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Answer a request from learned knowledge",
		Example: `  recall ask "How do I paginate results?"
  recall ask --render "Create a login screen in React"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := openStore(a.cfg, false)
			if err != nil {
				return err
			}
			defer closeStore()

			reg := prometheus.NewRegistry()
			eng := engine.New(store, newClassifier(a.cfg, a.log), engine.Options{
				TrustedSources: a.cfg.Engine.TrustedSources,
				Concurrency:    a.cfg.Engine.Concurrency,
				Logger:         a.log,
				Metrics:        metrics.NewWithRegistry(reg),
			})

			runner := headless.NewRunner(a.cfg.Theme, render)
			runner.Stdout = cmd.OutOrStdout()
			runner.Stderr = cmd.ErrOrStderr()
			runErr := runner.Run(ctx, eng, strings.Join(args, " "))

			if showMetrics {
				if err := writeMetrics(cmd, reg); err != nil {
					return err
				}
			}
			if errors.Is(runErr, context.Canceled) {
				return nil
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&render, "render", false, "Render the answer as markdown when it is complete")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print pipeline metrics after the answer")
	return cmd
}

// newClassifier builds the configured classifier. No local model ships with
// recall, so the model classifier reports not ready until one is provided.
func newClassifier(cfg *config.Config, log *zap.Logger) analysis.Classifier {
	if cfg.Engine.Classifier == config.ClassifierModel {
		return analysis.NewModelClassifier(nil, log.Named("classifier"))
	}
	return analysis.HeuristicClassifier{}
}

func writeMetrics(cmd *cobra.Command, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(cmd.ErrOrStderr(), mf); err != nil {
			return err
		}
	}
	return nil
}

func newLearnCommand(a *app) *cobra.Command {
	var (
		category string
		source   string
		score    float64
		meta     map[string]string
	)

	cmd := &cobra.Command{
		Use:   "learn <content>",
		Short: "Store a learned entry",
		Example: `  recall learn --category code_snippet --score 0.9 "func {function}() error { return nil }"
  recall learn --category metadata_transformation --meta question="What is X?" --meta answer="X is Y." "X notes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := knowledge.ParseCategory(category)
			if err != nil {
				return err
			}

			store, closeStore, err := openStore(a.cfg, true)
			if err != nil {
				return err
			}
			stored, err := store.Add(cmd.Context(), knowledge.LearnedEntry{
				Category: cat,
				Content:  strings.Join(args, " "),
				Source:   source,
				Score:    score,
				Metadata: metadataFromFlags(meta),
			})
			if err != nil {
				closeStore()
				return err
			}
			if err := closeStore(); err != nil {
				return err
			}

			a.log.Info("entry learned", zap.String("id", stored.ID), zap.Stringer("category", stored.Category))
			fmt.Fprintln(cmd.OutOrStdout(), stored.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "code_snippet", "Entry category (code_snippet, api_usage, fix_patch, metadata_transformation, framework_knowledge)")
	cmd.Flags().StringVar(&source, "source", "user", "Provenance tag")
	cmd.Flags().Float64Var(&score, "score", 0.5, "Ranking score, higher is better")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "Metadata key=value pairs")
	return cmd
}

// metadataFromFlags turns --meta pairs into typed metadata. Tags are
// separated by semicolons because the flag itself splits on commas.
func metadataFromFlags(pairs map[string]string) knowledge.Metadata {
	if len(pairs) == 0 {
		return knowledge.Metadata{}
	}
	fields := make(map[string]any, len(pairs))
	for k, v := range pairs {
		if k == "tags" {
			fields[k] = strings.Split(v, ";")
			continue
		}
		fields[k] = v
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return knowledge.Metadata{}
	}
	return knowledge.DecodeMetadata(raw)
}

func newLearnFixCommand(a *app) *cobra.Command {
	var (
		oldCode, newCode, reason, source string
		score                            float64
	)

	cmd := &cobra.Command{
		Use:     "learn-fix",
		Short:   "Store a before/after fix",
		Example: `  recall learn-fix --old "u.Name" --new "if u != nil { u.Name }" --reason "nil user" --score 0.8`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(a.cfg, true)
			if err != nil {
				return err
			}
			stored, err := knowledge.RecordFix(cmd.Context(), store, knowledge.FixRecord{
				OldCode: oldCode,
				NewCode: newCode,
				Reason:  reason,
				Score:   score,
			}, source)
			if err != nil {
				closeStore()
				return err
			}
			if err := closeStore(); err != nil {
				return err
			}

			a.log.Info("fix learned", zap.String("id", stored.ID))
			fmt.Fprintln(cmd.OutOrStdout(), stored.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&oldCode, "old", "", "Code before the fix")
	cmd.Flags().StringVar(&newCode, "new", "", "Code after the fix")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the fix was needed")
	cmd.Flags().StringVar(&source, "source", "user", "Provenance tag")
	cmd.Flags().Float64Var(&score, "score", 0.5, "Ranking score, higher is better")
	return cmd
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "import <glob>...",
		Short:   "Import YAML seed files",
		Example: `  recall import "seeds/**/*.yaml"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(a.cfg, true)
			if err != nil {
				return err
			}
			report, err := knowledge.Import(cmd.Context(), store, args)
			if cerr := closeStore(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}

			a.log.Info("import complete",
				zap.Strings("files", report.Files),
				zap.Int("entries", report.Entries),
				zap.Int("fixes", report.Fixes))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries and %d fixes from %d files\n",
				report.Entries, report.Fixes, len(report.Files))
			return nil
		},
	}
}

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(a.cfg, false)
			if err != nil {
				return err
			}
			defer closeStore()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			total := 0
			for _, cat := range knowledge.Categories {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d\n", cat, stats[cat])
				total += stats[cat]
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d\n", "total", total)
			return nil
		},
	}
}
