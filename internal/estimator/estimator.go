// Package estimator runs a pose model over camera frames.
package estimator

import (
	"context"
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/neuropose/internal/pose"
)

// Estimator kinds accepted by Open.
const (
	KindMoveNet = "movenet"
	KindService = "service"
	KindMock    = "mock"
)

var (
	// ErrUnknownKind is returned by Open for an unrecognized Config.Kind.
	ErrUnknownKind = errors.New("unknown estimator kind")
	// ErrModelNotFound is returned when the model file or service script is missing.
	ErrModelNotFound = errors.New("model not found")
)

// Estimator defines the interface for single-person pose estimation.
type Estimator interface {
	// Estimate returns the keypoints found in frame, in frame pixel
	// coordinates. It returns an empty estimate when nobody is in view.
	Estimate(ctx context.Context, frame *gocv.Mat) (pose.Estimate, error)

	// Close releases any resources held by the estimator.
	Close() error
}

// Config holds configuration options for pose estimation.
type Config struct {
	// Kind selects the implementation: movenet, service or mock.
	Kind string

	// ModelPath is the ONNX model loaded by the movenet estimator.
	ModelPath string

	// ScriptPath is the pose service script run by the service estimator.
	// When empty the usual install locations are searched.
	ScriptPath string

	// InputSize is the square model input resolution (default: 192).
	InputSize int

	// MinScore drops keypoints scored below it. Zero keeps everything.
	MinScore float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Kind:      KindMoveNet,
		ModelPath: "models/movenet_singlepose_lightning.onnx",
		InputSize: 192,
	}
}

// Open creates the estimator selected by config.Kind.
func Open(config Config) (Estimator, error) {
	if config.InputSize <= 0 {
		config.InputSize = DefaultConfig().InputSize
	}

	var (
		est Estimator
		err error
	)
	switch config.Kind {
	case KindMoveNet, "":
		est, err = NewMoveNet(config)
	case KindService:
		est, err = NewService(config)
	case KindMock:
		est = NewMock()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, config.Kind)
	}
	if err != nil {
		return nil, err
	}

	if config.MinScore > 0 {
		est = &filtered{Estimator: est, minScore: config.MinScore}
	}
	return est, nil
}

// filtered drops low-score keypoints from another estimator's output.
type filtered struct {
	Estimator
	minScore float64
}

func (f *filtered) Estimate(ctx context.Context, frame *gocv.Mat) (pose.Estimate, error) {
	est, err := f.Estimator.Estimate(ctx, frame)
	if err != nil {
		return nil, err
	}
	return est.Filter(f.minScore), nil
}
