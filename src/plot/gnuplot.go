package plot

import (
	"bufio"
	"fmt"
	"io"

	"github.com/golang/glog"

	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/analysis"
)

// WriteThroughputScript emits a self-contained gnuplot script: a header, one
// plot command, and three inline data blocks (capacity as a filled region,
// ingress and egress as lines). Each block holds the same five-column rows so
// the plot command only selects columns; each ends with the "e" marker. The
// legend carries the whole-trace averages.
func WriteThroughputScript(w io.Writer, pts []Point, s *analysis.Summary, title string) error {
	if title == "" {
		title = "link throughput"
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "set terminal svg size 1024,560 fixed enhanced\n")
	fmt.Fprintf(bw, "set title %q\n", title)
	fmt.Fprintf(bw, "set xlabel \"time (s)\"\n")
	fmt.Fprintf(bw, "set ylabel \"throughput (Mbits/s)\"\n")
	fmt.Fprintf(bw, "set key below\n")
	fmt.Fprintf(bw, "plot [0:*] [0:*] "+
		"\"-\" using 1:2 title \"Capacity (avg %.2f Mbits/s)\" with filledcurves x1 fc rgb \"#d0d0f8\", "+
		"\"-\" using 1:3 title \"Ingress (avg %.2f Mbits/s)\" with lines lw 2 lc rgb \"#00a000\", "+
		"\"-\" using 1:4 title \"Throughput (avg %.2f Mbits/s)\" with lines lw 2 lc rgb \"#c00000\"\n",
		s.AvgCapacityMbps, s.AvgIngressMbps, s.AvgThroughputMbps)
	for i := 0; i < 3; i++ {
		writeRows(bw, pts)
	}
	glog.V(1).Infof("[plot] throughput script: %d rows x 3 blocks", len(pts))
	return bw.Flush()
}

func writeRows(w io.Writer, pts []Point) {
	for _, p := range pts {
		fmt.Fprintf(w, "%.3f %.6f %.6f %.6f %d\n", p.TimeSec, p.CapacityMbps, p.IngressMbps, p.EgressMbps, p.BufferBits)
	}
	fmt.Fprintln(w, "e")
}

// WriteDelayScript emits a gnuplot script of the densified signal delay over
// origination time, one inline data block of "time_s delay_ms" rows. The 95th
// percentile goes into the title so the rendered graph is self-describing.
func WriteDelayScript(w io.Writer, sd *analysis.SignalDelay, title string) error {
	if title == "" {
		title = "signal delay"
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "set terminal svg size 1024,560 fixed enhanced\n")
	fmt.Fprintf(bw, "set title %q\n", fmt.Sprintf("%s (95th percentile %g ms)", title, sd.P95Ms))
	fmt.Fprintf(bw, "set xlabel \"time (s)\"\n")
	fmt.Fprintf(bw, "set ylabel \"delay (ms)\"\n")
	fmt.Fprintf(bw, "set key below\n")
	fmt.Fprintf(bw, "plot [0:*] [0:*] \"-\" using 1:2 title \"signal delay\" with lines lw 2 lc rgb \"#0000c0\"\n")
	for i, d := range sd.DelaysMs {
		t := float64(sd.OriginMinMs+int64(i)) / 1000
		fmt.Fprintf(bw, "%.3f %g\n", t, d)
	}
	fmt.Fprintln(bw, "e")
	glog.V(1).Infof("[plot] delay script: %d rows", len(sd.DelaysMs))
	return bw.Flush()
}
