// Package models loads and applies the trained risk models. Models are
// opaque to callers: they take a feature vector and return a probability.
// Trained parameters live in JSON artifacts on disk so scoring never needs
// the training data.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrModelUnavailable means the artifact file could not be read.
	ErrModelUnavailable = errors.New("model artifact unavailable")

	// ErrCorruptArtifact means the artifact exists but cannot be decoded.
	ErrCorruptArtifact = errors.New("model artifact corrupt")

	// ErrDimensionMismatch means the input vector length does not match the
	// model's feature count.
	ErrDimensionMismatch = errors.New("feature vector dimension mismatch")
)

// Model scores a single feature vector.
type Model interface {
	// PredictProbability returns the positive-class probability in [0, 1].
	PredictProbability(features []float64) (float64, error)

	// FeatureNames returns the expected feature order.
	FeatureNames() []string
}

// artifact is the envelope shared by every model type on disk.
type artifact struct {
	Type         string          `json:"type"`
	FeatureNames []string        `json:"feature_names"`
	Params       json.RawMessage `json:"params"`
}

const (
	typeLogistic      = "logistic"
	typeBoostedStumps = "boosted_stumps"
)

// Load reads a model artifact from disk and constructs the matching model.
func Load(path string) (Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, path, err)
	}

	var env artifact
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArtifact, path, err)
	}

	switch env.Type {
	case typeLogistic:
		return loadLogistic(env)
	case typeBoostedStumps:
		return loadBoostedStumps(env)
	default:
		return nil, fmt.Errorf("%w: unknown model type %q", ErrCorruptArtifact, env.Type)
	}
}

// Save writes a model artifact to disk.
func Save(path string, m Model) error {
	env, err := encode(m)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model artifact: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write model artifact %s: %w", path, err)
	}
	return nil
}

func encode(m Model) (*artifact, error) {
	switch model := m.(type) {
	case *Logistic:
		params, err := json.Marshal(model.params())
		if err != nil {
			return nil, fmt.Errorf("encode logistic params: %w", err)
		}
		return &artifact{Type: typeLogistic, FeatureNames: model.featureNames, Params: params}, nil
	case *BoostedStumps:
		params, err := json.Marshal(model.params())
		if err != nil {
			return nil, fmt.Errorf("encode boosted stumps params: %w", err)
		}
		return &artifact{Type: typeBoostedStumps, FeatureNames: model.featureNames, Params: params}, nil
	default:
		return nil, fmt.Errorf("unsupported model type %T", m)
	}
}
