package metric

import (
	"fmt"
	"reflect"

	ts "github.com/sugarme/gotch/tensor"
	"gonum.org/v1/gonum/stat"

	"github.com/sugarme/petseg/base"
)

// Smooth is the additive constant keeping metric denominators non-zero.
// A class absent from both maps scores IoU = Dice = 1 through it: trivially
// perfect agreement, not an error.
const Smooth = 1e-5

// ClassStat holds the raw overlap counts and derived scores for one class.
type ClassStat struct {
	Class        int64
	Intersection int64
	Union        int64
	PredArea     int64
	TruthArea    int64
	IoU          float64
	Dice         float64
}

// Report is the per-class metric report, ordered by class id 0..K-1.
type Report []ClassStat

// MeanIoU returns the IoU averaged over all classes.
func (r Report) MeanIoU() float64 {
	vals := make([]float64, len(r))
	for i, s := range r {
		vals[i] = s.IoU
	}
	return stat.Mean(vals, nil)
}

// MeanDice returns the Dice score averaged over all classes.
func (r Report) MeanDice() float64 {
	vals := make([]float64, len(r))
	for i, s := range r {
		vals[i] = s.Dice
	}
	return stat.Mean(vals, nil)
}

// Evaluate scores a predicted int64 label map against ground truth of the
// identical shape, [H W] or [B H W], over classes 0..classes-1. For each
// class:
//
//	IoU  = (intersection + Smooth) / (union + Smooth)
//	Dice = (2*intersection + Smooth) / (predArea + truthArea + Smooth)
//
// Both lie in [0, 1]; the smoothing makes division by zero structurally
// impossible. Labels outside [0, classes) are ignored for counting.
func Evaluate(pred, truth *ts.Tensor, classes int64) (Report, error) {
	if classes <= 0 {
		return nil, &base.ConfigError{Field: "classes", Reason: fmt.Sprintf("must be positive, got %v", classes)}
	}
	predSize := pred.MustSize()
	truthSize := truth.MustSize()
	if !reflect.DeepEqual(predSize, truthSize) {
		return nil, &base.ShapeError{Op: "metric: evaluate", Want: truthSize, Got: predSize}
	}

	predVals := pred.Int64Values()
	truthVals := truth.Int64Values()

	inter := make([]int64, classes)
	predArea := make([]int64, classes)
	truthArea := make([]int64, classes)
	for i := range predVals {
		p, t := predVals[i], truthVals[i]
		if p >= 0 && p < classes {
			predArea[p]++
			if p == t {
				inter[p]++
			}
		}
		if t >= 0 && t < classes {
			truthArea[t]++
		}
	}

	report := make(Report, classes)
	for c := int64(0); c < classes; c++ {
		i, pa, ta := inter[c], predArea[c], truthArea[c]
		u := pa + ta - i
		report[c] = ClassStat{
			Class:        c,
			Intersection: i,
			Union:        u,
			PredArea:     pa,
			TruthArea:    ta,
			IoU:          (float64(i) + Smooth) / (float64(u) + Smooth),
			Dice:         (2*float64(i) + Smooth) / (float64(pa+ta) + Smooth),
		}
	}

	return report, nil
}
