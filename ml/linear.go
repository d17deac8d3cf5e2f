package ml

import (
	"errors"
	"fmt"
	"math"
)

// LinearRegression is an ordinary least squares fit over a fixed schema.
type LinearRegression struct {
	ModelName    string    `json:"name"`
	FeatureNames Schema    `json:"features"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func (m *LinearRegression) Kind() string     { return KindLinearRegression }
func (m *LinearRegression) Name() string     { return m.ModelName }
func (m *LinearRegression) Features() Schema { return m.FeatureNames }

func (m *LinearRegression) Predict(v Vector) (float64, error) {
	row, err := m.FeatureNames.Row(v)
	if err != nil {
		return 0, err
	}
	return m.Intercept + dot(m.Coefficients, row), nil
}

func (m *LinearRegression) validate() error {
	return validateLinear(m.FeatureNames, m.Intercept, m.Coefficients)
}

// LogisticRegression maps a linear score through the logistic function.
type LogisticRegression struct {
	ModelName    string    `json:"name"`
	FeatureNames Schema    `json:"features"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	Threshold    float64   `json:"threshold,omitempty"`
}

func (m *LogisticRegression) Kind() string     { return KindLogisticRegression }
func (m *LogisticRegression) Name() string     { return m.ModelName }
func (m *LogisticRegression) Features() Schema { return m.FeatureNames }

func (m *LogisticRegression) PredictProba(v Vector) (float64, error) {
	row, err := m.FeatureNames.Row(v)
	if err != nil {
		return 0, err
	}
	return sigmoid(m.Intercept + dot(m.Coefficients, row)), nil
}

func (m *LogisticRegression) Predict(v Vector) (int, error) {
	proba, err := m.PredictProba(v)
	if err != nil {
		return 0, err
	}
	return labelFor(proba, m.threshold()), nil
}

func (m *LogisticRegression) threshold() float64 {
	if m.Threshold <= 0 || m.Threshold >= 1 {
		return 0.5
	}
	return m.Threshold
}

func (m *LogisticRegression) validate() error {
	return validateLinear(m.FeatureNames, m.Intercept, m.Coefficients)
}

func validateLinear(features Schema, intercept float64, coefficients []float64) error {
	if err := validateSchema(features); err != nil {
		return err
	}
	if len(coefficients) != len(features) {
		return fmt.Errorf("coefficients/features length mismatch: %d != %d", len(coefficients), len(features))
	}
	if !isFinite(intercept) {
		return errors.New("intercept is not finite")
	}
	for i, c := range coefficients {
		if !isFinite(c) {
			return fmt.Errorf("coefficient for %s is not finite", features[i])
		}
	}
	return nil
}

func validateSchema(features Schema) error {
	if len(features) == 0 {
		return errors.New("features is empty")
	}
	seen := make(map[string]struct{}, len(features))
	for _, name := range features {
		if name == "" {
			return errors.New("empty feature name")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate feature %s", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func dot(weights, row []float64) float64 {
	sum := 0.0
	for i := range weights {
		sum += weights[i] * row[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func labelFor(proba, threshold float64) int {
	if proba >= threshold {
		return 1
	}
	return 0
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
