package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// Logistic is a standardized logistic-regression model. Inputs are centered
// and scaled with the training-set statistics before the linear term.
type Logistic struct {
	featureNames []string
	means        []float64
	scales       []float64
	coefficients []float64
	intercept    float64
}

type logisticParams struct {
	Means        []float64 `json:"means"`
	Scales       []float64 `json:"scales"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

func loadLogistic(env artifact) (*Logistic, error) {
	var p logisticParams
	if err := json.Unmarshal(env.Params, &p); err != nil {
		return nil, fmt.Errorf("%w: logistic params: %v", ErrCorruptArtifact, err)
	}
	n := len(env.FeatureNames)
	if len(p.Means) != n || len(p.Scales) != n || len(p.Coefficients) != n {
		return nil, fmt.Errorf("%w: logistic params have inconsistent dimensions", ErrCorruptArtifact)
	}
	return &Logistic{
		featureNames: env.FeatureNames,
		means:        p.Means,
		scales:       p.Scales,
		coefficients: p.Coefficients,
		intercept:    p.Intercept,
	}, nil
}

func (m *Logistic) params() logisticParams {
	return logisticParams{
		Means:        m.means,
		Scales:       m.scales,
		Coefficients: m.coefficients,
		Intercept:    m.intercept,
	}
}

// FeatureNames returns the expected feature order.
func (m *Logistic) FeatureNames() []string { return m.featureNames }

// PredictProbability applies the model to a single feature vector.
func (m *Logistic) PredictProbability(features []float64) (float64, error) {
	if len(features) != len(m.coefficients) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(features), len(m.coefficients))
	}
	z := m.intercept
	for i, x := range features {
		z += m.coefficients[i] * standardize(x, m.means[i], m.scales[i])
	}
	return sigmoid(z), nil
}

func standardize(x, mean, scale float64) float64 {
	if scale == 0 {
		return 0
	}
	return (x - mean) / scale
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
