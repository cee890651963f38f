package metric

import (
	"fmt"
	"math"

	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/petseg/base"
)

// Decode converts a class score tensor, [K H W] or [B K H W], to an int64
// label map of shape [H W] or [B H W] by per-pixel argmax over the channel
// dim. Ties resolve to the lowest channel index, so decoding is reproducible
// regardless of the backing numeric substrate. NaN or infinite scores are
// rejected with NumericError.
func Decode(scores *ts.Tensor) (*ts.Tensor, error) {
	size := scores.MustSize()
	var b, k, h, w int64
	switch len(size) {
	case 3:
		b, k, h, w = 1, size[0], size[1], size[2]
	case 4:
		b, k, h, w = size[0], size[1], size[2], size[3]
	default:
		return nil, &base.ShapeError{
			Op:   "metric: decode wants [K H W] or [B K H W]",
			Want: []int64{-1, -1, -1},
			Got:  size,
		}
	}

	vals := scores.Float64Values()
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &base.NumericError{
				Op:     "metric: decode",
				Detail: fmt.Sprintf("non-finite score %v at flat index %v", v, i),
			}
		}
	}

	plane := h * w
	labels := make([]int64, b*plane)
	for bi := int64(0); bi < b; bi++ {
		off := bi * k * plane
		for p := int64(0); p < plane; p++ {
			best := int64(0)
			bestVal := vals[off+p]
			for c := int64(1); c < k; c++ {
				if v := vals[off+c*plane+p]; v > bestVal {
					best = c
					bestVal = v
				}
			}
			labels[bi*plane+p] = best
		}
	}

	out := ts.MustOfSlice(labels)
	if len(size) == 3 {
		return out.MustView([]int64{h, w}, true), nil
	}
	return out.MustView([]int64{b, h, w}, true), nil
}
