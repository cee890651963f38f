package base

import (
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// NewClassifierHead creates the per-pixel classifier: a 1x1 conv mapping cIn
// to classes channels, then softmax across the channel dim so every pixel
// holds a probability distribution over classes.
func NewClassifierHead(p *nn.Path, cIn, classes int64) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(Conv2d(p.Sub("conv"), cIn, classes, 1, 0, 1))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustSoftmax(1, gotch.Float, false)
	}))

	return seq
}
