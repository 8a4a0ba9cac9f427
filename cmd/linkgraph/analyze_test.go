package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/analysis"
	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/plot"
	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/trace"
)

// setAnalyzeDefaults pins every viper key runAnalyze reads so values set by
// one test cannot leak into the next, and resets the output path globals.
func setAnalyzeDefaults(t *testing.T) {
	t.Helper()
	viper.Set("bin_width", int64(20))
	viper.Set("time_begin", int64(0))
	viper.Set("graph", graphThroughput)
	viper.Set("format", formatGnuplot)
	viper.Set("title", "")
	viper.Set("chart_width", plot.DefaultChartWidth)
	viper.Set("chart_height", plot.DefaultChartHeight)
	analyzeOutput = ""
	analyzeReport = ""
	t.Cleanup(func() {
		analyzeOutput = ""
		analyzeReport = ""
	})
}

func writeTrace(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write trace: %v", err)
	}
	return path
}

func runAnalyzeCapture(t *testing.T, args []string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	analyzeCmd.SetOut(&buf)
	defer analyzeCmd.SetOut(nil)
	err := runAnalyze(analyzeCmd, args)
	return buf.String(), err
}

func TestAnalyzeEndToEnd(t *testing.T) {
	setAnalyzeDefaults(t)
	path := writeTrace(t, "# base timestamp: 1000\n"+
		"1050 # 1500\n"+
		"1050 + 1500\n"+
		"1060 - 1500 10\n")
	dir := t.TempDir()
	analyzeOutput = filepath.Join(dir, "graph.gnuplot")
	analyzeReport = filepath.Join(dir, "report.json")

	out, err := runAnalyzeCapture(t, []string{path})
	if err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}

	// One 1500 B departure over the 10 ms span is 1.2 Mbits/s, equal to the
	// lone capacity sample.
	want := "Average throughput: 1.20 Mbits/s (100.0% utilization)\n" +
		"95th percentile per-packet queueing delay: 10 ms\n" +
		"Average per-packet queueing delay: 10 ms\n"
	if out != want {
		t.Fatalf("summary mismatch:\n got: %q\nwant: %q", out, want)
	}

	script, err := os.ReadFile(analyzeOutput)
	if err != nil {
		t.Fatalf("read graph: %v", err)
	}
	if !strings.HasPrefix(string(script), "set terminal svg") {
		t.Fatalf("graph script missing header: %q", string(script[:40]))
	}
	if got := strings.Count(string(script), "\ne\n"); got != 3 {
		t.Fatalf("expected 3 inline data blocks, found %d", got)
	}

	raw, err := os.ReadFile(analyzeReport)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	meta, ok := parsed["meta"].(map[string]interface{})
	if !ok {
		t.Fatalf("report missing meta: %s", raw)
	}
	if got := meta["base_timestamp"]; got != float64(1000) {
		t.Fatalf("base_timestamp = %v, want 1000", got)
	}
	if got := meta["schema_version"]; got != float64(1) {
		t.Fatalf("schema_version = %v, want 1", got)
	}
	if _, ok := parsed["signal_delay"]; !ok {
		t.Fatalf("report missing signal_delay: %s", raw)
	}
}

func TestAnalyzeRejectsUnknownGraph(t *testing.T) {
	setAnalyzeDefaults(t)
	viper.Set("graph", "pie")
	_, err := runAnalyzeCapture(t, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown graph") {
		t.Fatalf("expected unknown graph error, got %v", err)
	}
}

func TestAnalyzeRejectsUnknownFormat(t *testing.T) {
	setAnalyzeDefaults(t)
	viper.Set("format", "svg")
	_, err := runAnalyzeCapture(t, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}

func TestAnalyzeRejectsBadBinWidth(t *testing.T) {
	setAnalyzeDefaults(t)
	viper.Set("bin_width", int64(0))
	_, err := runAnalyzeCapture(t, nil)
	if !errors.Is(err, analysis.ErrBinWidth) {
		t.Fatalf("expected ErrBinWidth, got %v", err)
	}
}

func TestAnalyzeMissingInputFile(t *testing.T) {
	setAnalyzeDefaults(t)
	_, err := runAnalyzeCapture(t, []string{filepath.Join(t.TempDir(), "absent.txt")})
	if err == nil {
		t.Fatal("expected error for missing input file")
	}
}

func TestAnalyzeSingleBinPrintsNothing(t *testing.T) {
	setAnalyzeDefaults(t)
	viper.Set("bin_width", int64(1000))
	path := writeTrace(t, "# base timestamp: 0\n"+
		"10 + 100\n"+
		"20 - 100 5\n")
	out, err := runAnalyzeCapture(t, []string{path})
	if !errors.Is(err, plot.ErrBinWidthTooLarge) {
		t.Fatalf("expected ErrBinWidthTooLarge, got %v", err)
	}
	if out != "" {
		t.Fatalf("expected no partial output, got %q", out)
	}
}

func TestAnalyzeDelayGraphToStdout(t *testing.T) {
	setAnalyzeDefaults(t)
	viper.Set("graph", graphDelay)
	analyzeOutput = "-"
	path := writeTrace(t, "# base timestamp: 0\n"+
		"10 - 100 5\n"+
		"30 - 100 7\n")
	out, err := runAnalyzeCapture(t, []string{path})
	if err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}
	if !strings.Contains(out, "Average per-packet queueing delay: 6 ms\n") {
		t.Fatalf("summary missing from stdout: %q", out)
	}
	// Dense series runs from origin 5 ms (delay 5) up to 23 ms (delay 7)
	// with the gap backfilled as successor+1, so its p95 is the 24 ms at
	// the left edge of the gap.
	if !strings.Contains(out, "set title") || !strings.Contains(out, "95th percentile 24 ms") {
		t.Fatalf("delay script missing from stdout: %q", out)
	}
}

func TestAnalyzeReadsStdinWhenNoFileGiven(t *testing.T) {
	setAnalyzeDefaults(t)
	viper.Set("graph", graphDelay)
	analyzeOutput = "-"
	path := writeTrace(t, "# base timestamp: 0\n"+
		"10 - 100 5\n"+
		"40 - 100 5\n")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	orig := os.Stdin
	os.Stdin = f
	defer func() { os.Stdin = orig }()

	for _, args := range [][]string{nil, {"-"}} {
		if _, err := f.Seek(0, 0); err != nil {
			t.Fatalf("seek: %v", err)
		}
		out, err := runAnalyzeCapture(t, args)
		if err != nil {
			t.Fatalf("runAnalyze(%v): %v", args, err)
		}
		if !strings.Contains(out, "Average per-packet queueing delay: 5 ms\n") {
			t.Fatalf("args %v: summary missing: %q", args, out)
		}
	}
}

func TestAnalyzePropagatesTraceErrors(t *testing.T) {
	setAnalyzeDefaults(t)
	path := writeTrace(t, "10 + 100\n")
	_, err := runAnalyzeCapture(t, []string{path})
	if !errors.Is(err, trace.ErrMissingBase) {
		t.Fatalf("expected missing base error, got %v", err)
	}
}

func TestDefaultGraphPath(t *testing.T) {
	cases := map[[2]string]string{
		{graphThroughput, formatGnuplot}: "linkgraph-throughput.gnuplot",
		{graphThroughput, formatPNG}:     "linkgraph-throughput.png",
		{graphDelay, formatGnuplot}:      "linkgraph-delay.gnuplot",
		{graphDelay, formatPNG}:          "linkgraph-delay.png",
	}
	for in, want := range cases {
		if got := defaultGraphPath(in[0], in[1]); got != want {
			t.Fatalf("defaultGraphPath(%s, %s) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)
	versionCmd.Run(versionCmd, nil)
	if got := buf.String(); got != "linkgraph "+toolVersion+"\n" {
		t.Fatalf("version output %q", got)
	}
}
