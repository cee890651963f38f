package unet

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/petseg/base"
	"github.com/sugarme/petseg/encoder"
)

// Config holds the fixed architectural parameters of a UNet.
type Config struct {
	ImageSize  int64   // input height and width
	InChannels int64   // input channel count
	Classes    int64   // per-pixel class count
	Filters    []int64 // encoder schedule, shallow to deep; must hold encoder.Depth entries
	DropRate   float64 // dropout rate shared by all stages, in [0, 1)
	Attention  bool    // SCSE attention on decoder skip fusion
}

// DefaultConfig returns the pet trimap configuration: 128x128 RGB input,
// 3 classes (pet, background, outline), filters 64..512, dropout 0.3.
func DefaultConfig() *Config {
	return &Config{
		ImageSize:  128,
		InChannels: 3,
		Classes:    3,
		Filters:    []int64{64, 128, 256, 512},
		DropRate:   0.3,
	}
}

func (c *Config) validate() error {
	if c.Classes <= 0 {
		return &base.ConfigError{Field: "Classes", Reason: fmt.Sprintf("must be positive, got %v", c.Classes)}
	}
	if len(c.Filters) != encoder.Depth {
		return &base.ConfigError{Field: "Filters", Reason: fmt.Sprintf("schedule must hold %v entries, got %v", encoder.Depth, len(c.Filters))}
	}
	for i, f := range c.Filters {
		if f <= 0 {
			return &base.ConfigError{Field: "Filters", Reason: fmt.Sprintf("entry %v must be positive, got %v", i, f)}
		}
	}
	if c.InChannels <= 0 {
		return &base.ConfigError{Field: "InChannels", Reason: fmt.Sprintf("must be positive, got %v", c.InChannels)}
	}
	if c.ImageSize <= 0 || c.ImageSize%(1<<encoder.Depth) != 0 {
		return &base.ConfigError{Field: "ImageSize", Reason: fmt.Sprintf("must be a positive multiple of %v, got %v", 1<<encoder.Depth, c.ImageSize)}
	}
	if c.DropRate < 0 || c.DropRate >= 1 {
		return &base.ConfigError{Field: "DropRate", Reason: fmt.Sprintf("must be in [0, 1), got %v", c.DropRate)}
	}
	return nil
}

// UNet wires encoder, center and decoder into one forward mapping from an
// image tensor to a per-pixel class score tensor.
// Ref: https://arxiv.org/abs/1505.04597
type UNet struct {
	cfg     Config
	encoder encoder.Encoder
	center  *base.ConvBlock
	decoder *Decoder
}

// NewUNet assembles a UNet under path p. A nil cfg means DefaultConfig.
// Invalid configurations fail here, before any forward pass.
func NewUNet(p *nn.Path, cfg *Config) (*UNet, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	enc := encoder.NewConvEncoder(p.Sub("encoder"), cfg.InChannels, cfg.Filters, cfg.DropRate)
	deepest := cfg.Filters[len(cfg.Filters)-1]
	center := base.NewConvBlock(p.Sub("center"), deepest, deepest*2, 3)

	decFilters := make([]int64, len(cfg.Filters))
	for i, f := range cfg.Filters {
		decFilters[len(cfg.Filters)-1-i] = f
	}
	dec := NewDecoder(p.Sub("decoder"), deepest*2, decFilters, cfg.Classes, cfg.DropRate, cfg.Attention)

	return &UNet{
		cfg:     *cfg,
		encoder: enc,
		center:  center,
		decoder: dec,
	}, nil
}

// Config returns the configuration the model was assembled with.
func (n *UNet) Config() Config {
	return n.cfg
}

// Decoder returns the decoder stage chain.
func (n *UNet) Decoder() *Decoder {
	return n.decoder
}

// ForwardT maps an image tensor, [C H W] or [B C H W] with values in [0, 1],
// to class scores of the same spatial shape with Classes channels. Every
// pixel of the result sums to 1 across the channel dim. With train false all
// stochastic layers are identities, so the mapping is deterministic given
// the parameters. NaN or infinite scores are surfaced as NumericError.
func (n *UNet) ForwardT(x *ts.Tensor, train bool) (*ts.Tensor, error) {
	if err := n.checkInput(x); err != nil {
		return nil, err
	}

	size := x.MustSize()
	batched := x
	if len(size) == 3 {
		batched = x.MustUnsqueeze(0, false)
	}

	down, skips, err := n.encoder.ForwardT(batched, train)
	if batched != x {
		batched.MustDrop()
	}
	if err != nil {
		return nil, err
	}

	mid := n.center.ForwardT(down, train)
	down.MustDrop()

	scores, err := n.decoder.ForwardT(mid, skips, train)
	mid.MustDrop()
	skips.Drop()
	if err != nil {
		return nil, err
	}

	if len(size) == 3 {
		scores = scores.MustSqueeze1(0, true)
	}

	if err := base.CheckFinite("unet: forward", scores); err != nil {
		scores.MustDrop()
		return nil, err
	}

	return scores, nil
}

// checkInput enforces the input contract fixed at assembly time.
func (n *UNet) checkInput(x *ts.Tensor) error {
	size := x.MustSize()
	if len(size) != 3 && len(size) != 4 {
		return &base.ConfigError{Field: "input", Reason: fmt.Sprintf("want [C H W] or [B C H W], got shape %v", size)}
	}
	c, h, w := size[len(size)-3], size[len(size)-2], size[len(size)-1]
	if c != n.cfg.InChannels || h != n.cfg.ImageSize || w != n.cfg.ImageSize {
		return &base.ConfigError{
			Field:  "input",
			Reason: fmt.Sprintf("want %v channels at %vx%v, got shape %v", n.cfg.InChannels, n.cfg.ImageSize, n.cfg.ImageSize, size),
		}
	}
	return nil
}
