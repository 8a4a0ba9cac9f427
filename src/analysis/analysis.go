package analysis

import (
	"errors"
	"math"
	"sort"

	"github.com/golang/glog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"

	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/trace"
)

// Degenerate-trace preconditions. All of them abort the run; none is
// recoverable by skipping data.
var (
	ErrBinWidth     = errors.New("bin width must be a positive integer")
	ErrNoEvents     = errors.New("must have at least one event")
	ErrNoDepartures = errors.New("must have at least one departure event")
	ErrZeroDuration = errors.New("trace spans zero duration")
)

// Aggregate owns every accumulator of the analysis pass: sparse per-bin bit
// totals for each event kind, whole-trace running sums, the trace span, the
// ordered delay sample set, and the sparse signal-delay observations. It is
// mutated only by Add; the pipeline is a single sequential pass and the
// struct is not safe for concurrent use.
type Aggregate struct {
	binWidthMs int64

	capacityBits  map[int64]int64
	arrivalBits   map[int64]int64
	departureBits map[int64]int64

	totalCapacityBits  int64
	totalArrivalBits   int64
	totalDepartureBits int64

	firstTs  int64
	lastTs   int64
	haveSpan bool

	delays    []float64
	signalObs map[int64]float64

	events          int64
	arrivals        int64
	departures      int64
	capacitySamples int64
}

// New returns an empty Aggregate binning at binWidthMs milliseconds.
func New(binWidthMs int64) (*Aggregate, error) {
	if binWidthMs <= 0 {
		return nil, ErrBinWidth
	}
	return &Aggregate{
		binWidthMs:    binWidthMs,
		capacityBits:  map[int64]int64{},
		arrivalBits:   map[int64]int64{},
		departureBits: map[int64]int64{},
		signalObs:     map[int64]float64{},
	}, nil
}

// BinWidthMs returns the configured bin width.
func (a *Aggregate) BinWidthMs() int64 { return a.binWidthMs }

// Events returns how many events have been accumulated.
func (a *Aggregate) Events() int64 { return a.events }

// Span returns the smallest and largest event timestamp seen so far.
func (a *Aggregate) Span() (firstMs, lastMs int64, ok bool) {
	return a.firstTs, a.lastTs, a.haveSpan
}

// Add accumulates one event: its bits into the bin matching its kind, the
// running per-kind sums, the span, and for departures the delay sample set
// and the signal-delay observation at the origination millisecond.
func (a *Aggregate) Add(ev trace.Event) {
	bits := ev.Bytes * 8
	bin := a.binOf(ev.Timestamp)
	a.events++
	switch ev.Kind {
	case trace.Capacity:
		a.capacitySamples++
		a.capacityBits[bin] += bits
		a.totalCapacityBits += bits
	case trace.Arrival:
		a.arrivals++
		a.arrivalBits[bin] += bits
		a.totalArrivalBits += bits
	case trace.Departure:
		a.departures++
		a.departureBits[bin] += bits
		a.totalDepartureBits += bits
		a.delays = append(a.delays, ev.DelayMs)
		origin := int64(math.Floor(float64(ev.Timestamp) - ev.DelayMs))
		if cur, ok := a.signalObs[origin]; !ok || ev.DelayMs < cur {
			a.signalObs[origin] = ev.DelayMs
		}
	}
	if !a.haveSpan {
		a.firstTs, a.lastTs, a.haveSpan = ev.Timestamp, ev.Timestamp, true
		return
	}
	if ev.Timestamp < a.firstTs {
		a.firstTs = ev.Timestamp
	}
	if ev.Timestamp > a.lastTs {
		a.lastTs = ev.Timestamp
	}
}

// binOf floors rather than truncates; corrected timestamps may be negative
// when time_begin is.
func (a *Aggregate) binOf(ts int64) int64 {
	bin := ts / a.binWidthMs
	if ts < 0 && ts%a.binWidthMs != 0 {
		bin--
	}
	return bin
}

// Consume drains rd into the aggregate and returns the reader's terminal
// error, if any.
func (a *Aggregate) Consume(rd *trace.Reader) error {
	for rd.Scan() {
		a.Add(rd.Event())
	}
	return rd.Err()
}

// BinRange returns the smallest and largest bin index present in any of the
// three accumulators.
func (a *Aggregate) BinRange() (lo, hi int64, ok bool) {
	scan := func(m map[int64]int64) {
		for b := range m {
			if !ok {
				lo, hi, ok = b, b, true
				continue
			}
			if b < lo {
				lo = b
			}
			if b > hi {
				hi = b
			}
		}
	}
	scan(a.capacityBits)
	scan(a.arrivalBits)
	scan(a.departureBits)
	return
}

// BinBits returns the accumulated bit totals for one bin, zero for kinds with
// no events in that bin.
func (a *Aggregate) BinBits(bin int64) (capacityBits, arrivalBits, departureBits int64) {
	return a.capacityBits[bin], a.arrivalBits[bin], a.departureBits[bin]
}

// Totals returns the whole-trace bit sums per kind.
func (a *Aggregate) Totals() (capacityBits, arrivalBits, departureBits int64) {
	return a.totalCapacityBits, a.totalArrivalBits, a.totalDepartureBits
}

// Summary carries the whole-trace statistics. Utilization is a pointer
// because a trace without capacity samples has no defined utilization.
type Summary struct {
	Events          int64 `json:"events" yaml:"events"`
	Arrivals        int64 `json:"arrivals" yaml:"arrivals"`
	Departures      int64 `json:"departures" yaml:"departures"`
	CapacitySamples int64 `json:"capacity_samples" yaml:"capacity_samples"`

	FirstTimestampMs int64   `json:"first_timestamp_ms" yaml:"first_timestamp_ms"`
	LastTimestampMs  int64   `json:"last_timestamp_ms" yaml:"last_timestamp_ms"`
	DurationSec      float64 `json:"duration_s" yaml:"duration_s"`
	Bins             int64   `json:"bins" yaml:"bins"`

	AvgCapacityMbps   float64  `json:"avg_capacity_mbps" yaml:"avg_capacity_mbps"`
	AvgIngressMbps    float64  `json:"avg_ingress_mbps" yaml:"avg_ingress_mbps"`
	AvgThroughputMbps float64  `json:"avg_throughput_mbps" yaml:"avg_throughput_mbps"`
	UtilizationPct    *float64 `json:"utilization_pct,omitempty" yaml:"utilization_pct,omitempty"`

	DelayMinMs    float64 `json:"delay_min_ms" yaml:"delay_min_ms"`
	DelayMaxMs    float64 `json:"delay_max_ms" yaml:"delay_max_ms"`
	DelayAvgMs    float64 `json:"delay_avg_ms" yaml:"delay_avg_ms"`
	DelayStddevMs float64 `json:"delay_stddev_ms" yaml:"delay_stddev_ms"`
	DelayP50Ms    float64 `json:"delay_p50_ms" yaml:"delay_p50_ms"`
	DelayP90Ms    float64 `json:"delay_p90_ms" yaml:"delay_p90_ms"`
	DelayP95Ms    float64 `json:"delay_p95_ms" yaml:"delay_p95_ms"`
	DelayP99Ms    float64 `json:"delay_p99_ms" yaml:"delay_p99_ms"`
}

// Summarize computes the whole-trace statistics from the accumulated state.
func (a *Aggregate) Summarize() (*Summary, error) {
	if a.events == 0 {
		return nil, ErrNoEvents
	}
	if len(a.delays) == 0 {
		return nil, ErrNoDepartures
	}
	durationSec := float64(a.lastTs-a.firstTs) / 1000
	if durationSec <= 0 {
		// Rates over zero elapsed time are non-finite; refuse rather than
		// propagate them into reports.
		return nil, ErrZeroDuration
	}
	s := &Summary{
		Events:            a.events,
		Arrivals:          a.arrivals,
		Departures:        a.departures,
		CapacitySamples:   a.capacitySamples,
		FirstTimestampMs:  a.firstTs,
		LastTimestampMs:   a.lastTs,
		DurationSec:       durationSec,
		AvgCapacityMbps:   mbps(a.totalCapacityBits, durationSec),
		AvgIngressMbps:    mbps(a.totalArrivalBits, durationSec),
		AvgThroughputMbps: mbps(a.totalDepartureBits, durationSec),
	}
	if lo, hi, ok := a.BinRange(); ok {
		s.Bins = hi - lo + 1
	}
	if a.totalCapacityBits > 0 {
		u := 100 * s.AvgThroughputMbps / s.AvgCapacityMbps
		s.UtilizationPct = &u
	}
	s.DelayMinMs = slices.Min(a.delays)
	s.DelayMaxMs = slices.Max(a.delays)
	s.DelayAvgMs = stat.Mean(a.delays, nil)
	if len(a.delays) > 1 {
		s.DelayStddevMs = stat.StdDev(a.delays, nil)
	}
	s.DelayP50Ms = Percentile(a.delays, 50)
	s.DelayP90Ms = Percentile(a.delays, 90)
	s.DelayP95Ms = Percentile(a.delays, 95)
	s.DelayP99Ms = Percentile(a.delays, 99)
	glog.Infof("[analysis] %d events over %.3fs: throughput %.2f Mbit/s, delay p95 %g ms",
		s.Events, s.DurationSec, s.AvgThroughputMbps, s.DelayP95Ms)
	return s, nil
}

func mbps(bits int64, durationSec float64) float64 {
	return float64(bits) / durationSec / 1e6
}

// Percentile returns the nearest-rank percentile of samples: the element of
// the ascending-sorted sample set at 0-based index floor(p/100 * N), with no
// interpolation between neighbors. Downstream comparisons to published
// results depend on this exact convention. Returns 0 for an empty set.
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)
	idx := int(math.Floor(p / 100 * float64(len(cp))))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(cp) {
		idx = len(cp) - 1
	}
	return cp[idx]
}

// SignalDelay is the densified minimum-achievable-delay series. DelaysMs[i]
// holds the delay for a message originating at millisecond OriginMinMs+i.
type SignalDelay struct {
	OriginMinMs int64     `json:"origin_min_ms" yaml:"origin_min_ms"`
	DelaysMs    []float64 `json:"-" yaml:"-"`
	Observed    int64     `json:"observed_samples" yaml:"observed_samples"`
	Inferred    int64     `json:"inferred_samples" yaml:"inferred_samples"`
	P95Ms       float64   `json:"p95_ms" yaml:"p95_ms"`
}

// ReconstructSignalDelay densifies the sparse signal-delay observations over
// the contiguous domain [min key, max key]. Walking t from max-1 down to min,
// an unobserved millisecond t is assigned delay[t+1] + 1: a message sent one
// millisecond before one with known delay d arrives, in the worst informative
// case, no later than d+1 milliseconds after it. Observed values are never
// overwritten.
func (a *Aggregate) ReconstructSignalDelay() (*SignalDelay, error) {
	if len(a.signalObs) == 0 {
		return nil, ErrNoDepartures
	}
	keys := maps.Keys(a.signalObs)
	slices.Sort(keys)
	tMin, tMax := keys[0], keys[len(keys)-1]
	dense := make([]float64, tMax-tMin+1)
	dense[tMax-tMin] = a.signalObs[tMax]
	for t := tMax - 1; t >= tMin; t-- {
		if v, ok := a.signalObs[t]; ok {
			dense[t-tMin] = v
		} else {
			dense[t-tMin] = dense[t-tMin+1] + 1
		}
	}
	sd := &SignalDelay{
		OriginMinMs: tMin,
		DelaysMs:    dense,
		Observed:    int64(len(a.signalObs)),
		Inferred:    int64(len(dense) - len(a.signalObs)),
		P95Ms:       Percentile(dense, 95),
	}
	glog.Infof("[analysis] signal delay over [%d,%d] ms: %d observed, %d inferred, p95 %g ms",
		tMin, tMax, sd.Observed, sd.Inferred, sd.P95Ms)
	return sd, nil
}
