package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
)

// ErrShapeMismatch indicates inputs that disagree with the head's
// dimensions.
var ErrShapeMismatch = errors.New("classifier: shape mismatch")

// LinearHead is the classification head's parameter bundle: a weight
// matrix W of shape (classes, hidden) in row-major order, a bias vector b
// of shape (classes), and their accumulated gradients. The bundle is
// mutated only by the optimizer; callers must serialize training steps.
type LinearHead struct {
	W []float32 `json:"w"`
	B []float32 `json:"b"`

	GradW []float32 `json:"-"`
	GradB []float32 `json:"-"`

	Classes int `json:"classes"`
	Hidden  int `json:"hidden"`
}

// NewLinearHead creates a head with weights drawn uniformly from
// [-1/sqrt(hidden), 1/sqrt(hidden)] and zero bias. The seed makes
// initialization reproducible.
func NewLinearHead(classes, hidden int, seed int64) (*LinearHead, error) {
	if classes < 2 || hidden < 1 {
		return nil, fmt.Errorf("%w: invalid head dims (%d classes, %d hidden)", ErrShapeMismatch, classes, hidden)
	}

	rng := rand.New(rand.NewSource(seed))
	bound := 1.0 / math.Sqrt(float64(hidden))

	h := &LinearHead{
		W:       make([]float32, classes*hidden),
		B:       make([]float32, classes),
		GradW:   make([]float32, classes*hidden),
		GradB:   make([]float32, classes),
		Classes: classes,
		Hidden:  hidden,
	}
	for i := range h.W {
		h.W[i] = float32((rng.Float64()*2 - 1) * bound)
	}
	return h, nil
}

// Forward projects pooled sentence embeddings, flat (batch, hidden), into
// logits, flat (batch, classes): logits = S·Wᵀ + b.
func (h *LinearHead) Forward(pooled []float32, batch int) ([]float32, error) {
	if batch < 1 || len(pooled) != batch*h.Hidden {
		return nil, fmt.Errorf("%w: pooled length %d does not match (%d, %d)",
			ErrShapeMismatch, len(pooled), batch, h.Hidden)
	}

	logits := make([]float32, batch*h.Classes)
	for b := 0; b < batch; b++ {
		vec := pooled[b*h.Hidden : (b+1)*h.Hidden]
		for c := 0; c < h.Classes; c++ {
			row := h.W[c*h.Hidden : (c+1)*h.Hidden]
			sum := h.B[c]
			for j, w := range row {
				sum += w * vec[j]
			}
			logits[b*h.Classes+c] = sum
		}
	}
	return logits, nil
}

// Accumulate adds the parameter gradients for one batch given the
// upstream logit gradients dLogits, flat (batch, classes), averaging over
// the batch: ∂L/∂W += dLogitsᵀ·S / batch, ∂L/∂b += mean(dLogits).
func (h *LinearHead) Accumulate(pooled, dLogits []float32, batch int) error {
	if len(pooled) != batch*h.Hidden || len(dLogits) != batch*h.Classes {
		return fmt.Errorf("%w: gradient inputs do not match (%d, %d, %d)",
			ErrShapeMismatch, batch, h.Hidden, h.Classes)
	}

	inv := float32(1.0 / float64(batch))
	for b := 0; b < batch; b++ {
		vec := pooled[b*h.Hidden : (b+1)*h.Hidden]
		for c := 0; c < h.Classes; c++ {
			g := dLogits[b*h.Classes+c] * inv
			h.GradB[c] += g
			row := h.GradW[c*h.Hidden : (c+1)*h.Hidden]
			for j, v := range vec {
				row[j] += g * v
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the parameters (gradients excluded).
func (h *LinearHead) Clone() *LinearHead {
	c := &LinearHead{
		W:       append([]float32(nil), h.W...),
		B:       append([]float32(nil), h.B...),
		GradW:   make([]float32, len(h.GradW)),
		GradB:   make([]float32, len(h.GradB)),
		Classes: h.Classes,
		Hidden:  h.Hidden,
	}
	return c
}

// Save writes the head parameters to a JSON file.
func (h *LinearHead) Save(path string) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("classifier: marshal head: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("classifier: write head: %w", err)
	}
	return nil
}

// LoadHead reads head parameters from a JSON file written by Save.
func LoadHead(path string) (*LinearHead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: read head: %w", err)
	}
	var h LinearHead
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("classifier: parse head: %w", err)
	}
	if h.Classes < 2 || h.Hidden < 1 ||
		len(h.W) != h.Classes*h.Hidden || len(h.B) != h.Classes {
		return nil, fmt.Errorf("%w: head file %s has inconsistent dims", ErrShapeMismatch, path)
	}
	h.GradW = make([]float32, h.Classes*h.Hidden)
	h.GradB = make([]float32, h.Classes)
	return &h, nil
}
