package main

import (
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/analysis"
	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/plot"
	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/report"
	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/trace"
)

const (
	graphThroughput = "throughput"
	graphDelay      = "delay"

	formatGnuplot = "gnuplot"
	formatPNG     = "png"
)

var (
	analyzeOutput string
	analyzeReport string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [trace-file]",
	Short: "Analyze a link trace and export its summary and graphs",
	Long: `analyze reads a link trace (a file, or stdin when omitted), prints the
three-line summary report to stdout, and exports the selected graph. The
gnuplot backend writes a script with inline data blocks; the png backend
renders directly. "-" as output writes the graph to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.Int64("bin-width", 0, "aggregation bin width in milliseconds (required, positive)")
	f.Int64("time-begin", 0, "discard events with corrected timestamp below this (ms)")
	f.String("graph", graphThroughput, "graph to export: throughput or delay")
	f.String("format", formatGnuplot, "graph backend: gnuplot or png")
	f.String("title", "", "graph title override")
	f.Int("chart-width", plot.DefaultChartWidth, "png width in pixels")
	f.Int("chart-height", plot.DefaultChartHeight, "png height in pixels")
	f.StringVar(&analyzeOutput, "output", "", "graph destination (default linkgraph-<graph>.<ext>, \"-\" for stdout)")
	f.StringVar(&analyzeReport, "report", "", "also write a machine-readable report (.json or .yaml by extension)")

	viper.BindPFlag("bin_width", f.Lookup("bin-width"))
	viper.BindPFlag("time_begin", f.Lookup("time-begin"))
	viper.BindPFlag("graph", f.Lookup("graph"))
	viper.BindPFlag("format", f.Lookup("format"))
	viper.BindPFlag("title", f.Lookup("title"))
	viper.BindPFlag("chart_width", f.Lookup("chart-width"))
	viper.BindPFlag("chart_height", f.Lookup("chart-height"))
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	binWidth := viper.GetInt64("bin_width")
	timeBegin := viper.GetInt64("time_begin")
	graph := viper.GetString("graph")
	format := viper.GetString("format")
	title := viper.GetString("title")

	if graph != graphThroughput && graph != graphDelay {
		return fmt.Errorf("unknown graph %q (want %s or %s)", graph, graphThroughput, graphDelay)
	}
	if format != formatGnuplot && format != formatPNG {
		return fmt.Errorf("unknown format %q (want %s or %s)", format, formatGnuplot, formatPNG)
	}
	agg, err := analysis.New(binWidth)
	if err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	name := "stdin"
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
		name = args[0]
	}
	glog.Infof("[analyze] %s: bin width %d ms, time begin %d ms", name, binWidth, timeBegin)

	rd := trace.NewReader(in, name, timeBegin)
	if err := agg.Consume(rd); err != nil {
		return err
	}
	sum, err := agg.Summarize()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	sd, err := agg.ReconstructSignalDelay()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	var pts []plot.Point
	if graph == graphThroughput {
		// Build before printing anything so a too-coarse bin width produces
		// no partial output.
		if pts, err = plot.Series(agg); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	stdout := cmd.OutOrStdout()
	printSummary(stdout, sum)

	if err := writeGraph(stdout, graph, format, title, pts, sum, sd); err != nil {
		return err
	}
	if analyzeReport != "" {
		base, _ := rd.Base()
		env := &report.Envelope{
			Meta:        report.NewMeta(name, toolVersion, binWidth, timeBegin, base),
			Summary:     sum,
			SignalDelay: sd,
		}
		if err := report.WriteFile(analyzeReport, env); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(w io.Writer, s *analysis.Summary) {
	if s.UtilizationPct != nil {
		fmt.Fprintf(w, "Average throughput: %.2f Mbits/s (%.1f%% utilization)\n", s.AvgThroughputMbps, *s.UtilizationPct)
	} else {
		fmt.Fprintf(w, "Average throughput: %.2f Mbits/s (utilization n/a)\n", s.AvgThroughputMbps)
	}
	fmt.Fprintf(w, "95th percentile per-packet queueing delay: %g ms\n", s.DelayP95Ms)
	fmt.Fprintf(w, "Average per-packet queueing delay: %g ms\n", s.DelayAvgMs)
}

func defaultGraphPath(graph, format string) string {
	ext := formatGnuplot
	if format == formatPNG {
		ext = formatPNG
	}
	return fmt.Sprintf("linkgraph-%s.%s", graph, ext)
}

func writeGraph(stdout io.Writer, graph, format, title string, pts []plot.Point, sum *analysis.Summary, sd *analysis.SignalDelay) error {
	out := analyzeOutput
	if out == "" {
		out = defaultGraphPath(graph, format)
	}
	w := stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	cw := viper.GetInt("chart_width")
	chh := viper.GetInt("chart_height")

	var err error
	switch {
	case graph == graphThroughput && format == formatGnuplot:
		err = plot.WriteThroughputScript(w, pts, sum, title)
	case graph == graphThroughput && format == formatPNG:
		err = plot.RenderThroughputPNG(w, pts, sum, title, cw, chh)
	case graph == graphDelay && format == formatGnuplot:
		err = plot.WriteDelayScript(w, sd, title)
	case graph == graphDelay && format == formatPNG:
		err = plot.RenderDelayPNG(w, sd, title, cw, chh)
	}
	if err != nil {
		return fmt.Errorf("write %s graph: %w", graph, err)
	}
	if out != "-" {
		glog.Infof("[analyze] wrote %s graph to %s", graph, out)
	}
	return nil
}
