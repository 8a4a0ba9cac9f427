package plot

import (
	"errors"

	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/analysis"
)

// ErrBinWidthTooLarge means every event fell into one bin; the series would
// be a single point.
var ErrBinWidthTooLarge = errors.New("bin width too large")

// Point is one exported row of the time-binned series. BufferBits is the
// running arrival-minus-departure backlog at the end of the bin, in bits; it
// can be negative when the trace starts mid-drain.
type Point struct {
	TimeSec      float64
	CapacityMbps float64
	IngressMbps  float64
	EgressMbps   float64
	BufferBits   int64
}

// Series materializes the per-bin rate rows from lowest to highest occupied
// bin. Bins with no events of a kind contribute a zero rate, and every bin in
// between occupied ones is emitted so the series has no time gaps.
func Series(agg *analysis.Aggregate) ([]Point, error) {
	lo, hi, ok := agg.BinRange()
	if !ok {
		return nil, analysis.ErrNoEvents
	}
	if lo == hi {
		return nil, ErrBinWidthTooLarge
	}
	binSec := float64(agg.BinWidthMs()) / 1000
	pts := make([]Point, 0, hi-lo+1)
	var backlogBits int64
	for b := lo; b <= hi; b++ {
		capBits, arrBits, depBits := agg.BinBits(b)
		backlogBits += arrBits - depBits
		pts = append(pts, Point{
			TimeSec:      float64(b) * binSec,
			CapacityMbps: float64(capBits) / binSec / 1e6,
			IngressMbps:  float64(arrBits) / binSec / 1e6,
			EgressMbps:   float64(depBits) / binSec / 1e6,
			BufferBits:   backlogBits,
		})
	}
	return pts, nil
}
