package unet_test

import (
	"errors"
	"math"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/petseg/base"
	"github.com/sugarme/petseg/unet"
)

func TestNewUNetConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  unet.Config
	}{
		{"zero classes", unet.Config{ImageSize: 128, InChannels: 3, Classes: 0, Filters: []int64{64, 128, 256, 512}, DropRate: 0.3}},
		{"negative classes", unet.Config{ImageSize: 128, InChannels: 3, Classes: -1, Filters: []int64{64, 128, 256, 512}, DropRate: 0.3}},
		{"short filter schedule", unet.Config{ImageSize: 128, InChannels: 3, Classes: 3, Filters: []int64{64, 128}, DropRate: 0.3}},
		{"long filter schedule", unet.Config{ImageSize: 128, InChannels: 3, Classes: 3, Filters: []int64{64, 128, 256, 512, 1024}, DropRate: 0.3}},
		{"zero filter entry", unet.Config{ImageSize: 128, InChannels: 3, Classes: 3, Filters: []int64{64, 0, 256, 512}, DropRate: 0.3}},
		{"zero channels", unet.Config{ImageSize: 128, InChannels: 0, Classes: 3, Filters: []int64{64, 128, 256, 512}, DropRate: 0.3}},
		{"indivisible image size", unet.Config{ImageSize: 100, InChannels: 3, Classes: 3, Filters: []int64{64, 128, 256, 512}, DropRate: 0.3}},
		{"drop rate one", unet.Config{ImageSize: 128, InChannels: 3, Classes: 3, Filters: []int64{64, 128, 256, 512}, DropRate: 1.0}},
		{"negative drop rate", unet.Config{ImageSize: 128, InChannels: 3, Classes: 3, Filters: []int64{64, 128, 256, 512}, DropRate: -0.1}},
	}

	vs := nn.NewVarStore(gotch.CPU)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			_, err := unet.NewUNet(vs.Root().Sub(tc.name), &cfg)
			var cfgErr *base.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("got %v, want ConfigError", err)
			}
		})
	}
}

func TestUNetForwardShape(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.NewUNet(vs.Root(), nil)
	if err != nil {
		t.Fatal(err)
	}

	image := ts.MustRand([]int64{2, 3, 128, 128}, gotch.Float, gotch.CPU)
	defer image.MustDrop()

	scores, err := net.ForwardT(image, false)
	if err != nil {
		t.Fatal(err)
	}
	defer scores.MustDrop()

	size := scores.MustSize()
	want := []int64{2, 3, 128, 128}
	if len(size) != len(want) {
		t.Fatalf("scores shape = %v, want %v", size, want)
	}
	for i := range want {
		if size[i] != want[i] {
			t.Fatalf("scores shape = %v, want %v", size, want)
		}
	}
}

// Every pixel of the output must hold a probability distribution over the
// channel dim: non-negative values summing to 1.
func TestUNetForwardSimplex(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.NewUNet(vs.Root(), nil)
	if err != nil {
		t.Fatal(err)
	}

	image := ts.MustRand([]int64{1, 3, 128, 128}, gotch.Float, gotch.CPU)
	defer image.MustDrop()

	scores, err := net.ForwardT(image, false)
	if err != nil {
		t.Fatal(err)
	}
	defer scores.MustDrop()

	vals := scores.Float64Values()
	plane := 128 * 128
	for p := 0; p < plane; p++ {
		sum := 0.0
		for c := 0; c < 3; c++ {
			v := vals[c*plane+p]
			if v < 0 {
				t.Fatalf("pixel %v channel %v: negative score %v", p, c, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Fatalf("pixel %v: channel sum = %v, want 1", p, sum)
		}
	}
}

func TestUNetForwardUnbatched(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.NewUNet(vs.Root(), nil)
	if err != nil {
		t.Fatal(err)
	}

	image := ts.MustRand([]int64{3, 128, 128}, gotch.Float, gotch.CPU)
	defer image.MustDrop()

	scores, err := net.ForwardT(image, false)
	if err != nil {
		t.Fatal(err)
	}
	defer scores.MustDrop()

	size := scores.MustSize()
	if len(size) != 3 || size[0] != 3 || size[1] != 128 || size[2] != 128 {
		t.Fatalf("scores shape = %v, want [3 128 128]", size)
	}
}

func TestUNetInputContract(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.NewUNet(vs.Root(), nil)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		shape []int64
	}{
		{"wrong channels", []int64{1, 4, 128, 128}},
		{"wrong resolution", []int64{1, 3, 96, 96}},
		{"wrong rank", []int64{128, 128}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			image := ts.MustRand(tc.shape, gotch.Float, gotch.CPU)
			defer image.MustDrop()

			_, err := net.ForwardT(image, false)
			var cfgErr *base.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("got %v, want ConfigError", err)
			}
		})
	}
}

// Inference mode must be deterministic: two passes over the same input with
// train false produce identical scores.
func TestUNetInferenceDeterministic(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.NewUNet(vs.Root(), nil)
	if err != nil {
		t.Fatal(err)
	}

	image := ts.MustRand([]int64{1, 3, 128, 128}, gotch.Float, gotch.CPU)
	defer image.MustDrop()

	first, err := net.ForwardT(image, false)
	if err != nil {
		t.Fatal(err)
	}
	defer first.MustDrop()
	second, err := net.ForwardT(image, false)
	if err != nil {
		t.Fatal(err)
	}
	defer second.MustDrop()

	a := first.Float64Values()
	b := second.Float64Values()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("flat index %v: %v != %v", i, a[i], b[i])
		}
	}
}

// The one configured dropout rate must reach every decoder stage unchanged.
// The encoder-side counterpart lives in the encoder package tests.
func TestUNetDropRateThreading(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	cfg := unet.DefaultConfig()
	cfg.DropRate = 0.25
	net, err := unet.NewUNet(vs.Root(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	for i, s := range net.Decoder().Stages() {
		if s.Rate() != cfg.DropRate {
			t.Errorf("decoder stage %v: rate %v, want %v", i, s.Rate(), cfg.DropRate)
		}
	}
}
