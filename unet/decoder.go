package unet

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/petseg/base"
	"github.com/sugarme/petseg/encoder"
)

// DecoderStage is one decoder step: learned 2x upsample, skip fusion,
// dropout, double conv back to cOut channels.
type DecoderStage struct {
	up   *nn.ConvTranspose2D
	scse *base.SCSE // nil when attention is off
	conv *base.ConvBlock
	rate float64
}

// NewDecoderStage creates a DecoderStage. cIn is the incoming channel count,
// skip the channel count of the skip tensor it fuses with, cOut the output
// channel count. With attention true an SCSE module runs on the fused tensor.
func NewDecoderStage(p *nn.Path, cIn, skip, cOut int64, rate float64, attention bool) *DecoderStage {
	var scse *base.SCSE
	if attention {
		scse = base.NewSCSE(p.Sub("attn"), cOut+skip)
	}

	return &DecoderStage{
		up:   base.ConvTranspose2d(p.Sub("up"), cIn, cOut, 2, 2),
		scse: scse,
		conv: base.NewConvBlock(p.Sub("conv"), cOut+skip, cOut, 3),
		rate: rate,
	}
}

// Rate returns the configured dropout rate.
func (d *DecoderStage) Rate() float64 {
	return d.rate
}

// ForwardT upsamples x, fuses it with its skip tensor and projects the
// result to the stage's channel count. The upsampled spatial shape must
// equal the skip's exactly; a mismatch aborts before any further stage runs.
func (d *DecoderStage) ForwardT(x, skip *ts.Tensor, train bool) (*ts.Tensor, error) {
	up := d.up.Forward(x)
	upSize := up.MustSize()
	skipSize := skip.MustSize()
	if !sameSpatial(upSize, skipSize) {
		up.MustDrop()
		return nil, &base.ShapeError{
			Op:   "decoder: upsampled tensor does not match skip tensor",
			Want: skipSize,
			Got:  upSize,
		}
	}

	// Channel order is fixed: upsampled channels first, then skip channels.
	// The following conv's parameters are trained against this layout.
	fused := ts.MustCat([]ts.Tensor{*up, *skip}, 1)
	up.MustDrop()

	if train && d.rate > 0 {
		dropped := ts.MustDropout(fused, d.rate, true)
		fused.MustDrop()
		fused = dropped
	}
	if d.scse != nil {
		attended := d.scse.ForwardT(fused, train)
		fused.MustDrop()
		fused = attended
	}

	out := d.conv.ForwardT(fused, train)
	fused.MustDrop()

	return out, nil
}

// sameSpatial reports whether two NCHW sizes agree on every dim except the
// channel one.
func sameSpatial(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if i == len(a)-3 { // channel dim
			continue
		}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Decoder chains encoder.Depth DecoderStages, consuming the skip list deep
// to shallow, then classifies every pixel through the head.
type Decoder struct {
	stages [encoder.Depth]*DecoderStage
	head   *nn.SequentialT
}

// NewDecoder creates a Decoder. cIn is the bottleneck channel count;
// filters is the decoder schedule (mirror of the encoder's, deep to
// shallow), which also gives each stage's skip channel count.
func NewDecoder(p *nn.Path, cIn int64, filters []int64, classes int64, rate float64, attention bool) *Decoder {
	var stages [encoder.Depth]*DecoderStage
	in := cIn
	for i, f := range filters {
		stages[i] = NewDecoderStage(p.Sub(fmt.Sprintf("stage%v", i)), in, f, f, rate, attention)
		in = f
	}
	head := base.NewClassifierHead(p.Sub("head"), filters[len(filters)-1], classes)

	return &Decoder{
		stages: stages,
		head:   head,
	}
}

// ForwardT forwards the bottleneck tensor through all stages, pairing stage
// i with skip entry Depth-1-i, and returns per-pixel class scores. The input
// tensor stays owned by the caller.
func (d *Decoder) ForwardT(x *ts.Tensor, skips *encoder.SkipList, train bool) (*ts.Tensor, error) {
	cur := x
	for i, s := range d.stages {
		out, err := s.ForwardT(cur, skips.At(encoder.Depth-1-i), train)
		if cur != x {
			cur.MustDrop()
		}
		if err != nil {
			return nil, err
		}
		cur = out
	}

	scores := d.head.ForwardT(cur, train)
	cur.MustDrop()

	return scores, nil
}

// Stages exposes the stage chain, deep to shallow.
func (d *Decoder) Stages() []*DecoderStage {
	return d.stages[:]
}
