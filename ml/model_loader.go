package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	KindLinearRegression     = "linear_regression"
	KindLogisticRegression   = "logistic_regression"
	KindGradientBoostedTrees = "gradient_boosted_trees"
)

// Artifact is a decoded model file.
type Artifact interface {
	Model
	Kind() string
	validate() error
}

// LoadModel reads and validates the artifact at path. The "kind" field of
// the JSON document selects the model type.
func LoadModel(path string) (Artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifactCorrupt, path, err)
	}
	model, err := DecodeModel(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}

func DecodeModel(payload []byte) (Artifact, error) {
	var envelope struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactCorrupt, err)
	}

	var model Artifact
	switch envelope.Kind {
	case KindLinearRegression:
		model = &LinearRegression{}
	case KindLogisticRegression:
		model = &LogisticRegression{}
	case KindGradientBoostedTrees:
		model = &GradientBoostedTrees{}
	default:
		return nil, fmt.Errorf("%w: unsupported model kind %q", ErrArtifactCorrupt, envelope.Kind)
	}
	if err := json.Unmarshal(payload, model); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactCorrupt, err)
	}
	if err := model.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactCorrupt, err)
	}
	return model, nil
}

// SaveModel writes m as an artifact LoadModel can read back.
func SaveModel(path string, m Artifact) error {
	if err := m.validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return err
	}
	fields["kind"], err = json.Marshal(m.Kind())
	if err != nil {
		return err
	}
	payload, err = json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// AsClassifier narrows an artifact to the classifier capability.
func AsClassifier(a Artifact) (Classifier, error) {
	switch m := a.(type) {
	case *LogisticRegression:
		return m, nil
	case *GradientBoostedTrees:
		if m.Objective == ObjectiveBinaryLogistic {
			return boostedClassifier{m}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (%s) is not a classifier", ErrWrongCapability, a.Name(), a.Kind())
}

// AsRegressor narrows an artifact to the regressor capability.
func AsRegressor(a Artifact) (Regressor, error) {
	switch m := a.(type) {
	case *LinearRegression:
		return m, nil
	case *GradientBoostedTrees:
		if m.Objective == ObjectiveSquaredError {
			return boostedRegressor{m}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (%s) is not a regressor", ErrWrongCapability, a.Name(), a.Kind())
}

// Loader resolves an artifact identifier to a decoded artifact.
type Loader interface {
	Load(ctx context.Context, id string) (Artifact, error)
}

// DirLoader reads artifacts from a directory; identifiers are file names.
type DirLoader struct {
	dir string
}

// NewDirLoader reads artifacts from dir.
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{dir: dir}
}

func (l *DirLoader) Dir() string {
	return l.dir
}

func (l *DirLoader) Load(ctx context.Context, id string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.Path(id)
	if err != nil {
		return nil, err
	}
	return LoadModel(path)
}

// Path resolves id inside the directory, rejecting anything that is not a plain file name.
func (l *DirLoader) Path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidArtifactID, id)
	}
	return filepath.Join(l.dir, id), nil
}

// ModelStore implements Store on top of any Loader.
type ModelStore struct {
	loader Loader
}

// NewModelStore wraps loader with capability checks.
func NewModelStore(loader Loader) *ModelStore {
	return &ModelStore{loader: loader}
}

func (s *ModelStore) Classifier(ctx context.Context, id string) (Classifier, error) {
	a, err := s.loader.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return AsClassifier(a)
}

func (s *ModelStore) Regressor(ctx context.Context, id string) (Regressor, error) {
	a, err := s.loader.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return AsRegressor(a)
}
