package pooling

import (
	"errors"
	"math"
	"testing"
)

func TestMeanPool(t *testing.T) {
	t.Run("WeightedAverage", func(t *testing.T) {
		// Batch of 1, 3 tokens, 2 dims; last token is padding.
		hidden := HiddenStates{
			Data:   []float32{1, 2, 3, 4, 100, 100},
			Batch:  1,
			Seq:    3,
			Hidden: 2,
		}
		mask := AttentionMask{
			Data:  []int64{1, 1, 0},
			Batch: 1,
			Seq:   3,
		}

		out, err := MeanPool(hidden, mask)
		if err != nil {
			t.Fatalf("MeanPool failed: %v", err)
		}
		want := []float32{2, 3} // (1+3)/2, (2+4)/2
		for i, w := range want {
			if diff := math.Abs(float64(out[i] - w)); diff > 1e-6 {
				t.Errorf("out[%d] = %f, want %f", i, out[i], w)
			}
		}
	})

	t.Run("MultiBatch", func(t *testing.T) {
		hidden := HiddenStates{
			Data: []float32{
				// sample 0: tokens [1,1], [3,3]
				1, 1, 3, 3,
				// sample 1: tokens [5,7], [9,9] (padded)
				5, 7, 9, 9,
			},
			Batch:  2,
			Seq:    2,
			Hidden: 2,
		}
		mask := AttentionMask{Data: []int64{1, 1, 1, 0}, Batch: 2, Seq: 2}

		out, err := MeanPool(hidden, mask)
		if err != nil {
			t.Fatalf("MeanPool failed: %v", err)
		}
		want := []float32{2, 2, 5, 7}
		for i, w := range want {
			if diff := math.Abs(float64(out[i] - w)); diff > 1e-6 {
				t.Errorf("out[%d] = %f, want %f", i, out[i], w)
			}
		}
	})

	t.Run("AllZeroMaskRow", func(t *testing.T) {
		hidden := HiddenStates{
			Data:   []float32{1, 2, 3, 4},
			Batch:  1,
			Seq:    2,
			Hidden: 2,
		}
		mask := AttentionMask{Data: []int64{0, 0}, Batch: 1, Seq: 2}

		out, err := MeanPool(hidden, mask)
		if err != nil {
			t.Fatalf("all-zero mask must not error: %v", err)
		}
		for i, v := range out {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Errorf("out[%d] = %f, want finite", i, v)
			}
			if v != 0 {
				t.Errorf("out[%d] = %f, want 0 for all-padding row", i, v)
			}
		}
	})

	t.Run("OutputShape", func(t *testing.T) {
		for _, dims := range [][3]int{{1, 1, 1}, {2, 5, 8}, {4, 128, 384}, {3, 16, 768}} {
			b, s, h := dims[0], dims[1], dims[2]
			hidden := HiddenStates{
				Data:   make([]float32, b*s*h),
				Batch:  b,
				Seq:    s,
				Hidden: h,
			}
			mask := AttentionMask{Data: make([]int64, b*s), Batch: b, Seq: s}
			for i := range mask.Data {
				mask.Data[i] = 1
			}

			out, err := MeanPool(hidden, mask)
			if err != nil {
				t.Fatalf("MeanPool(%v) failed: %v", dims, err)
			}
			if len(out) != b*h {
				t.Errorf("output length = %d, want %d for dims %v", len(out), b*h, dims)
			}
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		hidden := HiddenStates{
			Data:   []float32{0.5, -1.25, 2.75, 0.125, 3.5, -0.5},
			Batch:  1,
			Seq:    3,
			Hidden: 2,
		}
		mask := AttentionMask{Data: []int64{1, 1, 1}, Batch: 1, Seq: 3}

		first, err := MeanPool(hidden, mask)
		if err != nil {
			t.Fatalf("MeanPool failed: %v", err)
		}
		second, err := MeanPool(hidden, mask)
		if err != nil {
			t.Fatalf("MeanPool failed: %v", err)
		}
		for i := range first {
			if first[i] != second[i] {
				t.Errorf("out[%d] differs between identical calls: %f vs %f", i, first[i], second[i])
			}
		}
	})
}

func TestMeanPoolShapeMismatch(t *testing.T) {
	goodHidden := HiddenStates{Data: make([]float32, 2*3*4), Batch: 2, Seq: 3, Hidden: 4}
	goodMask := AttentionMask{Data: make([]int64, 2*3), Batch: 2, Seq: 3}

	tests := []struct {
		name   string
		hidden HiddenStates
		mask   AttentionMask
	}{
		{
			name:   "BatchDisagreement",
			hidden: goodHidden,
			mask:   AttentionMask{Data: make([]int64, 1*3), Batch: 1, Seq: 3},
		},
		{
			name:   "SeqDisagreement",
			hidden: goodHidden,
			mask:   AttentionMask{Data: make([]int64, 2*5), Batch: 2, Seq: 5},
		},
		{
			name:   "HiddenDataTooShort",
			hidden: HiddenStates{Data: make([]float32, 5), Batch: 2, Seq: 3, Hidden: 4},
			mask:   goodMask,
		},
		{
			name:   "MaskDataTooShort",
			hidden: goodHidden,
			mask:   AttentionMask{Data: make([]int64, 2), Batch: 2, Seq: 3},
		},
		{
			name:   "ZeroBatch",
			hidden: HiddenStates{Data: nil, Batch: 0, Seq: 3, Hidden: 4},
			mask:   goodMask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MeanPool(tt.hidden, tt.mask)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("error = %v, want ErrShapeMismatch", err)
			}
		})
	}
}
