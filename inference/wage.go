package inference

import (
	"context"
	"fmt"
	"math"
	"time"

	"laborcond/ml"
	"laborcond/registry"
)

// WageComparison holds the hourly wage estimates with and without the
// selected disability. Gap is Without minus With.
type WageComparison struct {
	Disability        string  `json:"disability"`
	Label             string  `json:"label"`
	WithDisability    float64 `json:"with_disability"`
	WithoutDisability float64 `json:"without_disability"`
	Gap               float64 `json:"gap"`
}

// Scenario pairs the two vectors fed to a wage regressor.
type Scenario struct {
	With    ml.Vector
	Without ml.Vector
}

// WageComparator runs one regressor on the with/without disability vectors.
type WageComparator struct {
	registry *registry.Registry
	store    ml.Store
	opts     options
}

// NewWageComparator resolves disabilities through reg and loads regressors from store.
func NewWageComparator(reg *registry.Registry, store ml.Store, opts ...Option) *WageComparator {
	return &WageComparator{registry: reg, store: store, opts: newOptions(opts)}
}

// Disabilities lists the supported disabilities in registry order.
func (w *WageComparator) Disabilities() []registry.Disability {
	return w.registry.Disabilities()
}

// Scenarios builds the two wage vectors for a disability key or label.
// Any disability flags already present in baseline are overwritten.
func (w *WageComparator) Scenarios(disability string, baseline ml.Vector) (Scenario, error) {
	entry, err := w.registry.LookupDisability(disability)
	if err != nil {
		return Scenario{}, err
	}
	return scenarios(entry.Key, baseline)
}

func scenarios(key string, baseline ml.Vector) (Scenario, error) {
	with, err := ml.WageVector(baseline, key)
	if err != nil {
		return Scenario{}, err
	}
	without, err := ml.WageVector(baseline, "")
	if err != nil {
		return Scenario{}, err
	}
	return Scenario{With: with, Without: without}, nil
}

// Compare predicts the hourly wage with and without the selected disability and emits one Event.
func (w *WageComparator) Compare(ctx context.Context, disability string, baseline ml.Vector) (WageComparison, error) {
	start := time.Now()
	event := Event{Kind: KindWage, Key: UnknownKey}

	comparison, err := w.compare(ctx, disability, baseline, &event)
	event.Elapsed = time.Since(start)
	event.Err = err
	event.WithDisability = comparison.WithDisability
	event.WithoutDisability = comparison.WithoutDisability
	w.opts.emit(ctx, event)

	if err != nil {
		return WageComparison{}, err
	}
	return comparison, nil
}

func (w *WageComparator) compare(ctx context.Context, disability string, baseline ml.Vector, event *Event) (WageComparison, error) {
	entry, err := w.registry.LookupDisability(disability)
	if err != nil {
		return WageComparison{}, err
	}
	event.Key = entry.Key
	event.Artifact = entry.Artifact

	scenario, err := scenarios(entry.Key, baseline)
	if err != nil {
		return WageComparison{}, err
	}
	regressor, err := w.store.Regressor(ctx, entry.Artifact)
	if err != nil {
		return WageComparison{}, fmt.Errorf("load regressor for %s: %w", entry.Key, err)
	}

	with, err := hourlyWage(regressor, scenario.With)
	if err != nil {
		return WageComparison{}, fmt.Errorf("predict wage with %s: %w", entry.Key, err)
	}
	without, err := hourlyWage(regressor, scenario.Without)
	if err != nil {
		return WageComparison{}, fmt.Errorf("predict wage without %s: %w", entry.Key, err)
	}

	return WageComparison{
		Disability:        entry.Key,
		Label:             entry.Label,
		WithDisability:    with,
		WithoutDisability: without,
		Gap:               without - with,
	}, nil
}

// hourlyWage exponentiates the regressor's log-wage prediction.
func hourlyWage(regressor ml.Regressor, v ml.Vector) (float64, error) {
	logWage, err := regressor.Predict(v)
	if err != nil {
		return 0, err
	}
	wage := math.Exp(logWage)
	if math.IsNaN(wage) || math.IsInf(wage, 0) || wage <= 0 {
		return 0, fmt.Errorf("%w: log wage %v", ErrInvalidPrediction, logWage)
	}
	return wage, nil
}
