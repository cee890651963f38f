package encoder

import (
	ts "github.com/sugarme/gotch/tensor"
)

// Depth is the number of downsampling stages an encoder runs and therefore
// the number of skip tensors a matching decoder consumes.
const Depth = 4

// SkipList holds one full-resolution feature tensor per encoder stage,
// indexed by depth: entry 0 is the shallowest (highest resolution), entry
// Depth-1 the deepest. Its fixed length ties encoder and decoder depth
// together at compile time.
type SkipList [Depth]*ts.Tensor

// At returns the skip tensor at depth i.
func (s *SkipList) At(i int) *ts.Tensor {
	return s[i]
}

// Drop frees all held tensors. Safe on partially filled lists.
func (s *SkipList) Drop() {
	for i, t := range s {
		if t != nil {
			t.MustDrop()
			s[i] = nil
		}
	}
}

// Encoder maps an image tensor to its deepest downsampled representation
// plus the skip list, shallow to deep.
type Encoder interface {
	ForwardT(x *ts.Tensor, train bool) (*ts.Tensor, *SkipList, error)
}
