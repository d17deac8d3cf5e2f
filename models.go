package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"laborcond/registry"
)

var usageWindow time.Duration

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model registry and its artifacts",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered model with its artifact status and recent usage",
	RunE:  runModelsList,
}

var modelsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load every registered artifact and verify its capability",
	RunE:  runModelsCheck,
}

func init() {
	modelsListCmd.Flags().DurationVar(&usageWindow, "since", 7*24*time.Hour, "usage window read from the prediction log")
	modelsCmd.AddCommand(modelsListCmd, modelsCheckCmd)
	rootCmd.AddCommand(modelsCmd)
}

func runModelsList(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var usage map[string]int
	if a.db != nil {
		usage, err = a.db.UsageByArtifact(cmd.Context(), time.Now().Add(-usageWindow))
		if err != nil {
			return fmt.Errorf("read prediction log: %w", err)
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tARTIFACT\tSTATUS\tUSES")
	for _, b := range a.registry.Benefits() {
		fmt.Fprintf(w, "benefit\t%s\t%s\t%s\t%s\n", b.Name, b.Artifact, a.artifactStatus(b.Artifact), usageCell(usage, b.Artifact))
	}
	for _, d := range a.registry.Disabilities() {
		fmt.Fprintf(w, "wage\t%s\t%s\t%s\t%s\n", d.Label, d.Artifact, a.artifactStatus(d.Artifact), usageCell(usage, d.Artifact))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if a.db == nil {
		return nil
	}
	logs, err := a.db.LoadEvaluationLog(cmd.Context())
	if err != nil {
		return fmt.Errorf("read evaluation log: %w", err)
	}
	if len(logs) == 0 {
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout())
	w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVALUATED\tMODEL\tACCURACY\tPRECISION\tRECALL\tROWS")
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\t%.3f\t%d\n",
			l.EvaluatedAt.Format(time.DateTime), l.ModelName, l.Accuracy, l.Precision, l.Recall, l.DataPoints)
	}
	return w.Flush()
}

func (a *app) artifactStatus(id string) string {
	path, err := a.loader.Path(id)
	if err != nil {
		return "invalid id"
	}
	if _, err := os.Stat(path); err != nil {
		return "missing"
	}
	return "present"
}

func usageCell(usage map[string]int, artifact string) string {
	if usage == nil {
		return "-"
	}
	return fmt.Sprint(usage[artifact])
}

func runModelsCheck(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	failures := checkArtifacts(cmd.Context(), a, a.registry)
	out := cmd.OutOrStdout()
	for _, f := range failures {
		fmt.Fprintf(out, "FAIL %s: %v\n", f.artifact, f.err)
	}
	total := len(a.registry.Benefits()) + len(a.registry.Disabilities())
	fmt.Fprintf(out, "%d/%d artifacts usable\n", total-len(failures), total)
	if len(failures) > 0 {
		return errors.New("some model artifacts are unusable")
	}
	return nil
}

type artifactFailure struct {
	artifact string
	err      error
}

// checkArtifacts loads each benefit artifact as a classifier and each wage
// artifact as a regressor.
func checkArtifacts(ctx context.Context, a *app, reg *registry.Registry) []artifactFailure {
	var failures []artifactFailure
	for _, b := range reg.Benefits() {
		if _, err := a.store.Classifier(ctx, b.Artifact); err != nil {
			failures = append(failures, artifactFailure{artifact: b.Artifact, err: err})
		}
	}
	for _, d := range reg.Disabilities() {
		if _, err := a.store.Regressor(ctx, d.Artifact); err != nil {
			failures = append(failures, artifactFailure{artifact: d.Artifact, err: err})
		}
	}
	a.logger.Debug("artifact check finished", zap.Int("failures", len(failures)))
	return failures
}
