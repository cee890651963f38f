package unet_test

import (
	"errors"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/petseg/base"
	"github.com/sugarme/petseg/unet"
)

func TestDecoderStageForward(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	stage := unet.NewDecoderStage(vs.Root().Sub("stage"), 64, 32, 32, 0.3, false)

	x := ts.MustRand([]int64{1, 64, 8, 8}, gotch.Float, gotch.CPU)
	skip := ts.MustRand([]int64{1, 32, 16, 16}, gotch.Float, gotch.CPU)
	defer x.MustDrop()
	defer skip.MustDrop()

	out, err := stage.ForwardT(x, skip, false)
	if err != nil {
		t.Fatal(err)
	}
	defer out.MustDrop()

	size := out.MustSize()
	if len(size) != 4 || size[0] != 1 || size[1] != 32 || size[2] != 16 || size[3] != 16 {
		t.Fatalf("output shape = %v, want [1 32 16 16]", size)
	}
}

// A skip tensor whose spatial shape differs from the upsampled tensor must
// abort the stage before the conv runs.
func TestDecoderStageSkipMismatch(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	stage := unet.NewDecoderStage(vs.Root().Sub("stage"), 64, 32, 32, 0.3, false)

	x := ts.MustRand([]int64{1, 64, 8, 8}, gotch.Float, gotch.CPU)
	skip := ts.MustRand([]int64{1, 32, 32, 32}, gotch.Float, gotch.CPU)
	defer x.MustDrop()
	defer skip.MustDrop()

	_, err := stage.ForwardT(x, skip, false)
	var shapeErr *base.ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("got %v, want ShapeError", err)
	}
}

func TestDecoderStageAttention(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	stage := unet.NewDecoderStage(vs.Root().Sub("stage"), 64, 32, 32, 0.3, true)

	x := ts.MustRand([]int64{1, 64, 8, 8}, gotch.Float, gotch.CPU)
	skip := ts.MustRand([]int64{1, 32, 16, 16}, gotch.Float, gotch.CPU)
	defer x.MustDrop()
	defer skip.MustDrop()

	out, err := stage.ForwardT(x, skip, false)
	if err != nil {
		t.Fatal(err)
	}
	defer out.MustDrop()

	size := out.MustSize()
	if len(size) != 4 || size[1] != 32 {
		t.Fatalf("output shape = %v, want 32 channels", size)
	}
}
