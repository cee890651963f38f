package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Conv2d creates a Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// ConvTranspose2d creates a ConvTranspose2D module. With ksize == stride it
// upsamples spatial dims by exactly the stride factor.
func ConvTranspose2d(p *nn.Path, cIn, cOut, ksize, stride int64) *nn.ConvTranspose2D {
	config := &nn.ConvTranspose2DConfig{
		Stride:        []int64{stride, stride},
		Padding:       []int64{0, 0},
		OutputPadding: []int64{0, 0},
		Dilation:      []int64{1, 1},
		Groups:        1,
		Bias:          true,
		WsInit:        nn.NewKaimingUniformInit(),
		BsInit:        nn.NewConstInit(0.0),
	}

	return nn.NewConvTranspose2D(p, cIn, cOut, []int64{ksize, ksize}, config)
}

// ConvBlock is two stacked (Conv2D + ReLU) with "same" padding. Spatial dims
// are preserved; the channel count becomes cOut after the first conv.
type ConvBlock struct {
	seq *nn.SequentialT
}

// NewConvBlock creates a ConvBlock projecting cIn to cOut channels.
// ksize must be odd so that padding ksize/2 preserves spatial dims.
func NewConvBlock(p *nn.Path, cIn, cOut, ksize int64) *ConvBlock {
	pad := ksize / 2
	seq := nn.SeqT()
	seq.Add(Conv2d(p.Sub("conv1"), cIn, cOut, ksize, pad, 1))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))
	seq.Add(Conv2d(p.Sub("conv2"), cOut, cOut, ksize, pad, 1))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))

	return &ConvBlock{seq}
}

// ForwardT implements ts.ModuleT for ConvBlock struct.
func (b *ConvBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return b.seq.ForwardT(x, train)
}

// SCSE is concurrent spatial and channel squeeze and excitement module.
// Ref. https://arxiv.org/abs/1808.08127
type SCSE struct {
	cSE *nn.SequentialT
	sSE *nn.SequentialT
}

// ForwardT implements ts.ModuleT for SCSE struct.
func (m *SCSE) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	cse := m.cSE.ForwardT(x, train)
	sse := m.sSE.ForwardT(x, train)
	cmul := x.MustMul(cse, false)
	smul := x.MustMul(sse, false)
	res := cmul.MustAdd(smul, false)

	cse.MustDrop()
	sse.MustDrop()
	cmul.MustDrop()
	smul.MustDrop()

	return res
}

// NewSCSE creates new SCSE.
func NewSCSE(p *nn.Path, cIn int64, reductionOpt ...int64) *SCSE {
	var reduction int64 = 16
	if len(reductionOpt) > 0 {
		reduction = reductionOpt[0]
	}
	squeezed := cIn / reduction
	if squeezed < 1 {
		squeezed = 1
	}

	// Channel squeeze excite
	chanSeq := nn.SeqT()
	chanSeq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustAdaptiveAvgPool2d([]int64{1, 1}, false)
	}))
	chanSeq.Add(Conv2d(p.Sub("sqzconv1"), cIn, squeezed, 1, 0, 1))
	chanSeq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))
	chanSeq.Add(Conv2d(p.Sub("sqzconv2"), squeezed, cIn, 1, 0, 1))
	chanSeq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustSigmoid(false)
	}))

	// Spatial squeeze excite
	spatSeq := nn.SeqT()
	spatSeq.Add(Conv2d(p.Sub("spatconv"), cIn, 1, 1, 0, 1))
	spatSeq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustSigmoid(false)
	}))

	return &SCSE{
		cSE: chanSeq,
		sSE: spatSeq,
	}
}
