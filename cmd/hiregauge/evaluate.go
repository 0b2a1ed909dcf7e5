package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/hiregauge/hiregauge/infrastructure/storage"
	"github.com/hiregauge/hiregauge/internal/config"
	"github.com/hiregauge/hiregauge/internal/domain"
)

var (
	signalsPath string
	evalRole    string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a batch of signals from a file, without the server",
	Long: `Load a JSON array of phase signals, evaluate every candidate in it,
and print one evaluation per candidate followed by its compensation
band. Duplicate signals in the file are skipped.`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&signalsPath, "signals", "",
		"path to a JSON array of phase signals")
	evaluateCmd.Flags().StringVar(&evalRole, "role", "",
		"role whose weight profile applies (empty means the configured default)")
	_ = evaluateCmd.MarkFlagRequired("signals")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(signalsPath)
	if err != nil {
		return fmt.Errorf("read signals file: %w", err)
	}
	var signals []domain.PhaseSignal
	if err := json.Unmarshal(data, &signals); err != nil {
		return fmt.Errorf("parse signals file: %w", err)
	}
	if len(signals) == 0 {
		return fmt.Errorf("signals file %s holds no signals", signalsPath)
	}

	ctx := cmd.Context()
	store := storage.NewMemoryStore()
	engine, err := newEngine(ctx, cfg, store)
	if err != nil {
		return err
	}

	for i, signal := range signals {
		if _, err := engine.SubmitSignal(ctx, signal); err != nil {
			if errors.Is(err, domain.ErrDuplicateSignal) {
				continue
			}
			return fmt.Errorf("signal %d (%s/%s): %w", i, signal.Phase, signal.Metric, err)
		}
	}

	var results map[string]*domain.EvaluationResult
	if evalRole == "" {
		results, err = engine.EvaluateAll(ctx)
		if err != nil {
			return err
		}
	} else {
		candidates, err := store.Candidates(ctx)
		if err != nil {
			return err
		}
		results = make(map[string]*domain.EvaluationResult, len(candidates))
		for _, id := range candidates {
			result, err := engine.Evaluate(ctx, id, evalRole)
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", id, err)
			}
			results[id] = result
		}
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	for _, id := range ids {
		result := results[id]
		if err := enc.Encode(result); err != nil {
			return err
		}
		if result.Compensation != nil {
			fmt.Fprintf(out, "%s: %s\n", id, result.Compensation.Format(language.English))
		}
	}
	return nil
}
