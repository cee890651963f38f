package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/petseg/base"
)

// Stage is one encoder step: double conv, max-pool downsample, dropout.
type Stage struct {
	conv *base.ConvBlock
	pool int64
	rate float64
}

// NewStage creates a Stage projecting cIn to cOut channels with the given
// pool factor and dropout rate.
func NewStage(p *nn.Path, cIn, cOut, pool int64, rate float64) *Stage {
	return &Stage{
		conv: base.NewConvBlock(p, cIn, cOut, 3),
		pool: pool,
		rate: rate,
	}
}

// Rate returns the configured dropout rate.
func (s *Stage) Rate() float64 {
	return s.rate
}

// ForwardT runs the stage. It returns the full-resolution skip tensor and
// the pooled tensor. The pool factor must evenly divide both spatial dims.
// Dropout applies to the pooled tensor in train mode only.
func (s *Stage) ForwardT(x *ts.Tensor, train bool) (skip, down *ts.Tensor, err error) {
	skip = s.conv.ForwardT(x, train)
	size := skip.MustSize()
	h, w := size[len(size)-2], size[len(size)-1]
	if h%s.pool != 0 || w%s.pool != 0 {
		skip.MustDrop()
		return nil, nil, &base.ShapeError{
			Op:   "encoder: maxpool",
			Want: []int64{h / s.pool * s.pool, w / s.pool * s.pool},
			Got:  []int64{h, w},
		}
	}

	down = skip.MustMaxPool2d([]int64{s.pool, s.pool}, []int64{s.pool, s.pool}, []int64{0, 0}, []int64{1, 1}, false, false)
	if train && s.rate > 0 {
		dropped := ts.MustDropout(down, s.rate, true)
		down.MustDrop()
		down = dropped
	}

	return skip, down, nil
}

// ConvEncoder chains Depth stages with a doubling filter schedule,
// collecting one skip tensor per stage.
type ConvEncoder struct {
	stages [Depth]*Stage
}

// NewConvEncoder creates a ConvEncoder. filters must hold Depth entries;
// the caller validates the schedule before construction.
func NewConvEncoder(p *nn.Path, cIn int64, filters []int64, rate float64) *ConvEncoder {
	var stages [Depth]*Stage
	in := cIn
	for i, f := range filters {
		stages[i] = NewStage(p.Sub(fmt.Sprintf("stage%v", i)), in, f, 2, rate)
		in = f
	}

	return &ConvEncoder{stages}
}

// ForwardT implements Encoder for ConvEncoder struct. The returned skip list
// is ordered shallow to deep; the returned tensor is the deepest pooled one.
// The input tensor stays owned by the caller.
func (e *ConvEncoder) ForwardT(x *ts.Tensor, train bool) (*ts.Tensor, *SkipList, error) {
	var skips SkipList
	cur := x
	for i, s := range e.stages {
		skip, down, err := s.ForwardT(cur, train)
		if cur != x {
			cur.MustDrop()
		}
		if err != nil {
			skips.Drop()
			return nil, nil, err
		}
		skips[i] = skip
		cur = down
	}

	return cur, &skips, nil
}

// Stages exposes the stage chain, shallow to deep.
func (e *ConvEncoder) Stages() []*Stage {
	return e.stages[:]
}
