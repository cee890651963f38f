package base_test

import (
	"errors"
	"math"
	"testing"

	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/petseg/base"
)

func TestCheckFiniteClean(t *testing.T) {
	x := ts.MustOfSlice([]float64{0.1, 0.2, 0.7, 1.0})
	defer x.MustDrop()

	if err := base.CheckFinite("test", x); err != nil {
		t.Fatalf("finite tensor rejected: %v", err)
	}
}

func TestCheckFiniteNonFinite(t *testing.T) {
	cases := []struct {
		name string
		bad  float64
	}{
		{"NaN", math.NaN()},
		{"positive Inf", math.Inf(1)},
		{"negative Inf", math.Inf(-1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			x := ts.MustOfSlice([]float64{0.5, tc.bad, 0.5})
			defer x.MustDrop()

			err := base.CheckFinite("test", x)
			var numErr *base.NumericError
			if !errors.As(err, &numErr) {
				t.Fatalf("got %v, want NumericError", err)
			}
		})
	}
}
