package classify

import (
	"context"
	"fmt"
	"sync"

	"github.com/jbrukh/bayesian"
	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/budgetter/internal/store"
)

// SampleSource yields already-categorized transactions to learn from.
type SampleSource interface {
	CategorizedTexts(ctx context.Context) ([]store.LabeledText, error)
}

// Bayes is a naive Bayes classifier trained on the user's own categorized
// transactions. It reports NotLoaded until Train has seen at least two
// categories.
type Bayes struct {
	log zerolog.Logger

	mu      sync.RWMutex
	model   *bayesian.Classifier
	classes []bayesian.Class
}

// NewBayes returns an untrained classifier.
func NewBayes(log zerolog.Logger) *Bayes {
	return &Bayes{log: log.With().Str("classifier", "bayes").Logger()}
}

// Train replaces the model with one learned from samples.
func (b *Bayes) Train(samples []store.LabeledText) error {
	seen := map[string]bool{}
	var classes []bayesian.Class
	for _, s := range samples {
		if s.Category == "" || seen[s.Category] {
			continue
		}
		seen[s.Category] = true
		classes = append(classes, bayesian.Class(s.Category))
	}
	// bayesian.NewClassifier panics below two classes.
	if len(classes) < 2 {
		return fmt.Errorf("need at least 2 categories to train, have %d", len(classes))
	}

	model := bayesian.NewClassifier(classes...)
	learned := 0
	for _, s := range samples {
		tokens := Tokenize(s.Name + " " + s.Comment)
		if len(tokens) == 0 || s.Category == "" {
			continue
		}
		model.Learn(tokens, bayesian.Class(s.Category))
		learned++
	}

	b.mu.Lock()
	b.model, b.classes = model, classes
	b.mu.Unlock()

	b.log.Info().Int("samples", learned).Int("categories", len(classes)).Msg("model trained")
	return nil
}

// TrainFrom loads samples from src and trains on them. It is meant to run in
// the background at startup.
func (b *Bayes) TrainFrom(ctx context.Context, src SampleSource) error {
	samples, err := src.CategorizedTexts(ctx)
	if err != nil {
		return fmt.Errorf("load training samples: %w", err)
	}
	return b.Train(samples)
}

// Ready reports whether a model is loaded.
func (b *Bayes) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model != nil
}

// Classify returns the most probable category and its posterior probability.
func (b *Bayes) Classify(ctx context.Context, name, memo string) (Prediction, error) {
	b.mu.RLock()
	model, classes := b.model, b.classes
	b.mu.RUnlock()

	if model == nil {
		return NotLoaded, nil
	}

	tokens := Tokenize(name + " " + memo)
	if len(tokens) == 0 {
		return Prediction{Status: StatusReady}, nil
	}

	scores, best, _ := model.ProbScores(tokens)
	return Prediction{
		Status:     StatusReady,
		Category:   string(classes[best]),
		Confidence: scores[best],
	}, nil
}
