package inference

import (
	"context"
	"fmt"
	"math"
	"time"

	"laborcond/ml"
	"laborcond/registry"
)

// BenefitPrediction is the classifier answer for one benefit.
type BenefitPrediction struct {
	Benefit     string  `json:"benefit"`
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
}

// Eligible reports whether the classifier predicted class 1.
func (p BenefitPrediction) Eligible() bool {
	return p.Label == 1
}

// BenefitInvoker resolves a benefit to its classifier and runs it on one row.
type BenefitInvoker struct {
	registry *registry.Registry
	store    ml.Store
	opts     options
}

// NewBenefitInvoker resolves benefits through reg and loads classifiers from store.
func NewBenefitInvoker(reg *registry.Registry, store ml.Store, opts ...Option) *BenefitInvoker {
	return &BenefitInvoker{registry: reg, store: store, opts: newOptions(opts)}
}

// Benefits lists the benefit names in registry order.
func (b *BenefitInvoker) Benefits() []string {
	return b.registry.BenefitNames()
}

// Classify runs the classifier registered for benefit on v and emits one Event.
func (b *BenefitInvoker) Classify(ctx context.Context, benefit string, v ml.Vector) (BenefitPrediction, error) {
	start := time.Now()
	event := Event{Kind: KindBenefit, Key: UnknownKey}

	prediction, err := b.classify(ctx, benefit, v, &event)
	event.Elapsed = time.Since(start)
	event.Err = err
	event.Label = prediction.Label
	event.Probability = prediction.Probability
	b.opts.emit(ctx, event)

	if err != nil {
		return BenefitPrediction{}, err
	}
	return prediction, nil
}

func (b *BenefitInvoker) classify(ctx context.Context, benefit string, v ml.Vector, event *Event) (BenefitPrediction, error) {
	entry, err := b.registry.Benefit(benefit)
	if err != nil {
		return BenefitPrediction{}, err
	}
	event.Key = entry.Name
	event.Artifact = entry.Artifact

	classifier, err := b.store.Classifier(ctx, entry.Artifact)
	if err != nil {
		return BenefitPrediction{}, fmt.Errorf("load classifier for %s: %w", benefit, err)
	}
	label, err := classifier.Predict(v)
	if err != nil {
		return BenefitPrediction{}, fmt.Errorf("predict %s: %w", benefit, err)
	}
	proba, err := classifier.PredictProba(v)
	if err != nil {
		return BenefitPrediction{}, fmt.Errorf("predict probability %s: %w", benefit, err)
	}
	if math.IsNaN(proba) || proba < 0 || proba > 1 {
		return BenefitPrediction{}, fmt.Errorf("%w: probability %v for %s", ErrInvalidPrediction, proba, benefit)
	}
	if label != 0 && label != 1 {
		return BenefitPrediction{}, fmt.Errorf("%w: label %d for %s", ErrInvalidPrediction, label, benefit)
	}
	return BenefitPrediction{Benefit: entry.Name, Label: label, Probability: proba}, nil
}
