package ml

import (
	"context"
	"errors"
)

var (
	ErrArtifactNotFound  = errors.New("model artifact not found")
	ErrArtifactCorrupt   = errors.New("model artifact corrupt")
	ErrInvalidArtifactID = errors.New("invalid model artifact id")
	ErrWrongCapability   = errors.New("model does not provide the requested capability")
	ErrMissingFeature    = errors.New("feature vector missing field")
	ErrUnknownChoice     = errors.New("unknown choice")
	ErrAmbiguousEncoding = errors.New("more than one flag set for category")
	ErrUnknownDisability = errors.New("unknown disability field")
)

// Model is the part shared by every loaded artifact.
type Model interface {
	Name() string
	Features() Schema
}

// Regressor predicts a single scalar for one row.
type Regressor interface {
	Model
	Predict(v Vector) (float64, error)
}

// Classifier predicts a binary label and the probability of class 1 for one row.
type Classifier interface {
	Model
	Predict(v Vector) (int, error)
	PredictProba(v Vector) (float64, error)
}

// Store resolves artifact identifiers to models with the capability the caller needs.
type Store interface {
	Classifier(ctx context.Context, id string) (Classifier, error)
	Regressor(ctx context.Context, id string) (Regressor, error)
}
