package main

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/report"
)

var showCmd = &cobra.Command{
	Use:   "show <report.json|report.yaml>",
	Short: "Print the summary stored in a saved report",
	Long: `show loads a report written by "analyze --report" and prints the same
three-line summary that run produced, plus the run metadata and the
signal-delay scalars when present.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	env, err := report.ReadFile(args[0])
	if err != nil {
		return err
	}
	m := env.Meta
	if m.SchemaVersion != report.SchemaVersion {
		glog.Warningf("[show] %s: schema version %d, this build writes %d", args[0], m.SchemaVersion, report.SchemaVersion)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: bin width %d ms, analyzed %s (run %s)\n", m.Input, m.BinWidthMs, m.TimestampUTC, m.RunID)
	printSummary(w, env.Summary)
	if sd := env.SignalDelay; sd != nil {
		fmt.Fprintf(w, "Signal delay: %d observed, %d inferred samples, p95 %g ms\n", sd.Observed, sd.Inferred, sd.P95Ms)
	}
	return nil
}
