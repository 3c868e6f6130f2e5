package classifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/jkoiv/minivec/internal/embedder"
)

// ErrEncoderFrozen is returned when configuration asks for joint encoder
// fine-tuning, which the inference-only encoder backends cannot do.
var ErrEncoderFrozen = errors.New("classifier: encoder fine-tuning is not supported, set fine_tune_encoder to false")

// Config contains classification head configuration.
type Config struct {
	Enabled         bool     `yaml:"enabled" mapstructure:"enabled"`
	Classes         int      `yaml:"classes" mapstructure:"classes"`
	Labels          []string `yaml:"labels" mapstructure:"labels"`
	LearningRate    float64  `yaml:"learning_rate" mapstructure:"learning_rate"`         // 0.01
	Seed            int64    `yaml:"seed" mapstructure:"seed"`                           // 42
	FineTuneEncoder bool     `yaml:"fine_tune_encoder" mapstructure:"fine_tune_encoder"` // must be false
	HeadPath        string   `yaml:"head_path" mapstructure:"head_path"`                 // "./models/head.json"
}

// Prediction is the classification outcome for one text.
type Prediction struct {
	Label         int       `json:"label"`
	LabelText     string    `json:"label_text,omitempty"`
	Probabilities []float32 `json:"probabilities"`
}

// Classifier runs the classification variant of the forward pass: the
// embedder's pooled sentence vectors projected through a LinearHead. The
// encoder stays frozen; training updates only the head.
type Classifier struct {
	cfg    Config
	emb    embedder.Service
	head   *LinearHead
	opt    *SGD
	logger *zap.Logger

	// mu serializes training steps so no two optimizer updates overlap.
	mu sync.Mutex
}

// New creates a Classifier. When cfg.HeadPath names an existing head file
// it is loaded, otherwise a fresh head is initialized from cfg.Seed.
func New(cfg Config, emb embedder.Service, logger *zap.Logger) (*Classifier, error) {
	if cfg.FineTuneEncoder {
		return nil, ErrEncoderFrozen
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.01
	}

	var head *LinearHead
	if cfg.HeadPath != "" {
		loaded, err := LoadHead(cfg.HeadPath)
		switch {
		case err == nil:
			head = loaded
			logger.Info("Loaded classification head",
				zap.String("path", cfg.HeadPath),
				zap.Int("classes", head.Classes),
				zap.Int("hidden", head.Hidden))
		case errors.Is(err, os.ErrNotExist):
			// No head trained yet; initialize fresh below.
			logger.Info("No classification head file, initializing fresh",
				zap.String("path", cfg.HeadPath))
		default:
			return nil, fmt.Errorf("classifier: load head %s: %w", cfg.HeadPath, err)
		}
	}
	if head == nil {
		var err error
		head, err = NewLinearHead(cfg.Classes, emb.Dims(), cfg.Seed)
		if err != nil {
			return nil, err
		}
		logger.Info("Initialized classification head",
			zap.Int("classes", cfg.Classes),
			zap.Int("hidden", emb.Dims()),
			zap.Int64("seed", cfg.Seed))
	}

	if head.Hidden != emb.Dims() {
		return nil, fmt.Errorf("%w: head hidden size %d != embedder dims %d",
			ErrShapeMismatch, head.Hidden, emb.Dims())
	}
	if len(cfg.Labels) > 0 && len(cfg.Labels) != head.Classes {
		return nil, fmt.Errorf("classifier: %d labels for %d classes", len(cfg.Labels), head.Classes)
	}

	return &Classifier{
		cfg:    cfg,
		emb:    emb,
		head:   head,
		opt:    NewSGD(head, float32(cfg.LearningRate)),
		logger: logger,
	}, nil
}

// Head exposes the parameter bundle, e.g. for saving after training.
func (c *Classifier) Head() *LinearHead {
	return c.head
}

// Classes returns the number of output classes.
func (c *Classifier) Classes() int {
	return c.head.Classes
}

// Logits runs the classification forward pass and returns one logit row
// per text.
func (c *Classifier) Logits(ctx context.Context, texts []string) ([][]float32, error) {
	pooled, batch, err := c.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	flat, err := c.head.Forward(pooled, batch)
	if err != nil {
		return nil, err
	}

	rows := make([][]float32, batch)
	for i := 0; i < batch; i++ {
		rows[i] = flat[i*c.head.Classes : (i+1)*c.head.Classes]
	}
	return rows, nil
}

// Predict returns the argmax class and softmax probabilities per text.
func (c *Classifier) Predict(ctx context.Context, texts []string) ([]Prediction, error) {
	pooled, batch, err := c.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	logits, err := c.head.Forward(pooled, batch)
	if err != nil {
		return nil, err
	}
	probs := Softmax(logits, batch, c.head.Classes)

	preds := make([]Prediction, batch)
	for b := 0; b < batch; b++ {
		row := probs[b*c.head.Classes : (b+1)*c.head.Classes]
		best := 0
		for i := 1; i < len(row); i++ {
			if row[i] > row[best] {
				best = i
			}
		}
		pred := Prediction{Label: best, Probabilities: append([]float32(nil), row...)}
		if len(c.cfg.Labels) > 0 {
			pred.LabelText = c.cfg.Labels[best]
		}
		preds[b] = pred
	}
	return preds, nil
}

// TrainStep performs a single gradient-descent iteration on the head:
// forward, cross-entropy loss, backward, optimizer step, gradient reset.
// It returns the batch's mean loss. Steps are serialized internally so
// two updates never interleave.
func (c *Classifier) TrainStep(ctx context.Context, texts []string, labels []int) (float32, error) {
	if len(texts) != len(labels) {
		return 0, fmt.Errorf("%w: %d texts with %d labels", ErrShapeMismatch, len(texts), len(labels))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pooled, batch, err := c.embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	logits, err := c.head.Forward(pooled, batch)
	if err != nil {
		return 0, err
	}

	loss, dLogits, err := CrossEntropy(logits, labels, batch, c.head.Classes)
	if err != nil {
		return 0, err
	}

	if err := c.head.Accumulate(pooled, dLogits, batch); err != nil {
		return 0, err
	}
	c.opt.Step()
	c.opt.ZeroGrad()

	c.logger.Debug("Training step completed",
		zap.Int("batch", batch),
		zap.Float32("loss", loss))

	return loss, nil
}

// embed runs the embedding forward pass and flattens the result into one
// (batch, hidden) slice for the head.
func (c *Classifier) embed(ctx context.Context, texts []string) ([]float32, int, error) {
	result, err := c.emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, 0, err
	}

	batch := len(result.Embeddings)
	pooled := make([]float32, 0, batch*c.head.Hidden)
	for _, vec := range result.Embeddings {
		pooled = append(pooled, vec...)
	}
	return pooled, batch, nil
}
