package plot

import (
	"fmt"
	"io"
	"math"

	"github.com/golang/glog"
	"github.com/wcharczuk/go-chart/v2"

	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/analysis"
)

// Default pixel size of rendered charts, matching the svg terminal size the
// gnuplot backend requests.
const (
	DefaultChartWidth  = 1024
	DefaultChartHeight = 560
)

// RenderThroughputPNG draws the same three series the gnuplot backend emits,
// rendered natively: capacity as a filled region behind ingress and egress
// lines, averages in the legend.
func RenderThroughputPNG(w io.Writer, pts []Point, s *analysis.Summary, title string, width, height int) error {
	if len(pts) == 0 {
		return analysis.ErrNoEvents
	}
	if title == "" {
		title = "link throughput"
	}
	if width <= 0 {
		width = DefaultChartWidth
	}
	if height <= 0 {
		height = DefaultChartHeight
	}
	xs := make([]float64, len(pts))
	capY := make([]float64, len(pts))
	inY := make([]float64, len(pts))
	outY := make([]float64, len(pts))
	maxY := 0.0
	for i, p := range pts {
		xs[i] = p.TimeSec
		capY[i] = p.CapacityMbps
		inY[i] = p.IngressMbps
		outY[i] = p.EgressMbps
		for _, v := range [3]float64{p.CapacityMbps, p.IngressMbps, p.EgressMbps} {
			if v > maxY {
				maxY = v
			}
		}
	}
	if maxY <= 0 {
		maxY = 1
	}
	_, yMax := niceAxisBounds(0, maxY)
	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    fmt.Sprintf("Capacity (avg %.2f Mbits/s)", s.AvgCapacityMbps),
			XValues: xs,
			YValues: capY,
			Style: chart.Style{
				StrokeColor: chart.ColorAlternateGray,
				FillColor:   chart.ColorAlternateGray.WithAlpha(110),
			},
		},
		chart.ContinuousSeries{
			Name:    fmt.Sprintf("Ingress (avg %.2f Mbits/s)", s.AvgIngressMbps),
			XValues: xs,
			YValues: inY,
			Style:   chart.Style{StrokeColor: chart.ColorGreen, StrokeWidth: 2},
		},
		chart.ContinuousSeries{
			Name:    fmt.Sprintf("Throughput (avg %.2f Mbits/s)", s.AvgThroughputMbps),
			XValues: xs,
			YValues: outY,
			Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeWidth: 2},
		},
	}
	ch := chart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 14, Left: 16, Right: 12, Bottom: 48}},
		XAxis: chart.XAxis{
			Name:  "time (s)",
			Range: &chart.ContinuousRange{Min: xs[0], Max: xs[len(xs)-1]},
			Ticks: niceTicks(xs[0], xs[len(xs)-1], 8),
		},
		YAxis: chart.YAxis{
			Name:  "Mbits/s",
			Range: &chart.ContinuousRange{Min: 0, Max: yMax},
			Ticks: niceTicks(0, yMax, 6),
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render throughput chart: %w", err)
	}
	glog.V(1).Infof("[plot] throughput png: %d bins, %dx%d", len(pts), width, height)
	return nil
}

// RenderDelayPNG draws the densified signal delay over origination time.
func RenderDelayPNG(w io.Writer, sd *analysis.SignalDelay, title string, width, height int) error {
	if sd == nil || len(sd.DelaysMs) == 0 {
		return analysis.ErrNoDepartures
	}
	if title == "" {
		title = "signal delay"
	}
	if width <= 0 {
		width = DefaultChartWidth
	}
	if height <= 0 {
		height = DefaultChartHeight
	}
	xs := make([]float64, len(sd.DelaysMs))
	ys := make([]float64, len(sd.DelaysMs))
	maxY := 0.0
	for i, d := range sd.DelaysMs {
		xs[i] = float64(sd.OriginMinMs+int64(i)) / 1000
		ys[i] = d
		if d > maxY {
			maxY = d
		}
	}
	if len(xs) == 1 {
		// go-chart cannot range a single x value
		xs = append(xs, xs[0]+0.001)
		ys = append(ys, ys[0])
	}
	if maxY <= 0 {
		maxY = 1
	}
	_, yMax := niceAxisBounds(0, maxY)
	ch := chart.Chart{
		Title:      fmt.Sprintf("%s (p95 %g ms)", title, sd.P95Ms),
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 14, Left: 16, Right: 12, Bottom: 48}},
		XAxis: chart.XAxis{
			Name:  "time (s)",
			Range: &chart.ContinuousRange{Min: xs[0], Max: xs[len(xs)-1]},
			Ticks: niceTicks(xs[0], xs[len(xs)-1], 8),
		},
		YAxis: chart.YAxis{
			Name:  "delay (ms)",
			Range: &chart.ContinuousRange{Min: 0, Max: yMax},
			Ticks: niceTicks(0, yMax, 6),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "signal delay",
				XValues: xs,
				YValues: ys,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2},
			},
		},
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render delay chart: %w", err)
	}
	glog.V(1).Infof("[plot] delay png: %d points, %dx%d", len(sd.DelaysMs), width, height)
	return nil
}

// niceAxisBounds expands [min,max] by a small margin and rounds both ends to
// the span's order of magnitude.
func niceAxisBounds(min, max float64) (float64, float64) {
	if math.IsNaN(min) || math.IsNaN(max) {
		return min, max
	}
	if max <= min {
		max = min + 1
	}
	span := max - min
	pad := span * 0.05
	if pad <= 0 {
		pad = 1
	}
	a := min - pad
	b := max + pad
	mag := math.Pow(10, math.Floor(math.Log10(span)))
	if !math.IsInf(mag, 0) && mag > 0 {
		a = math.Floor(a/mag) * mag
		b = math.Ceil(b/mag) * mag
	}
	return a, b
}

// niceTicks places up to roughly n ticks across [min,max] on a 1/2/2.5/5/10
// step grid.
func niceTicks(min, max float64, n int) []chart.Tick {
	if n < 2 || math.IsNaN(min) || math.IsNaN(max) {
		return nil
	}
	if max <= min {
		max = min + 1
	}
	span := max - min
	mag := math.Pow(10, math.Floor(math.Log10(span/float64(n-1))))
	bestStep := mag
	bestScore := math.MaxFloat64
	for _, c := range []float64{1, 2, 2.5, 5, 10} {
		step := c * mag
		count := math.Ceil(span / step)
		if count < 2 {
			count = 2
		}
		if score := math.Abs(count - float64(n)); score < bestScore {
			bestScore = score
			bestStep = step
		}
	}
	start := math.Floor(min/bestStep) * bestStep
	end := math.Ceil(max/bestStep) * bestStep
	var ticks []chart.Tick
	for v := start; v <= end+bestStep/2; v += bestStep {
		ticks = append(ticks, chart.Tick{Value: v, Label: formatTick(v)})
		if len(ticks) > n+2 {
			break
		}
	}
	return ticks
}

func formatTick(v float64) string {
	if v == 0 {
		return "0"
	}
	switch av := math.Abs(v); {
	case av >= 100:
		return fmt.Sprintf("%.0f", v)
	case av >= 10:
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}
