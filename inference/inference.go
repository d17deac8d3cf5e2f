// Package inference runs the benefit and wage models for one request.
package inference

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidPrediction marks a model output outside its valid range.
var ErrInvalidPrediction = errors.New("model returned an invalid prediction")

const (
	KindBenefit = "benefit"
	KindWage    = "wage"

	// UnknownKey replaces the caller's key on events whose key did not
	// resolve in the registry.
	UnknownKey = "unknown"
)

// Event describes one finished inference. It carries the selected key and
// the model outputs, never the profile that produced them.
type Event struct {
	ID                string
	Kind              string
	Key               string
	Artifact          string
	Label             int
	Probability       float64
	WithDisability    float64
	WithoutDisability float64
	Elapsed           time.Duration
	Err               error
	At                time.Time
}

// Recorder receives every Event. Failures to record never fail the request.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

type Option func(*options)

type options struct {
	logger    *zap.Logger
	recorders []Recorder
	now       func() time.Time
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorders = append(o.recorders, r)
		}
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) emit(ctx context.Context, e Event) {
	e.ID = uuid.NewString()
	e.At = o.now().UTC()

	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("kind", e.Kind),
		zap.String("key", e.Key),
		zap.String("artifact", e.Artifact),
		zap.Duration("elapsed", e.Elapsed),
	}
	if e.Err != nil {
		o.logger.Error("inference failed", append(fields, zap.Error(e.Err))...)
	} else {
		o.logger.Debug("inference completed", fields...)
	}

	for _, r := range o.recorders {
		if err := r.Record(ctx, e); err != nil {
			o.logger.Warn("failed to record inference", zap.String("event_id", e.ID), zap.Error(err))
		}
	}
}
