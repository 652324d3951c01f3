package models

import (
	"encoding/json"
	"fmt"
)

// BoostedStumps is an additive ensemble of depth-one decision trees fit to
// the logistic loss. The raw margin is the base score plus one contribution
// per stump, passed through a sigmoid.
type BoostedStumps struct {
	featureNames []string
	baseScore    float64
	stumps       []Stump
}

// Stump is a single depth-one tree: one feature, one threshold, two leaves.
type Stump struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
}

type stumpsParams struct {
	BaseScore float64 `json:"base_score"`
	Stumps    []Stump `json:"stumps"`
}

func loadBoostedStumps(env artifact) (*BoostedStumps, error) {
	var p stumpsParams
	if err := json.Unmarshal(env.Params, &p); err != nil {
		return nil, fmt.Errorf("%w: boosted stumps params: %v", ErrCorruptArtifact, err)
	}
	for _, s := range p.Stumps {
		if s.Feature < 0 || s.Feature >= len(env.FeatureNames) {
			return nil, fmt.Errorf("%w: stump references feature %d of %d", ErrCorruptArtifact, s.Feature, len(env.FeatureNames))
		}
	}
	return &BoostedStumps{
		featureNames: env.FeatureNames,
		baseScore:    p.BaseScore,
		stumps:       p.Stumps,
	}, nil
}

func (m *BoostedStumps) params() stumpsParams {
	return stumpsParams{BaseScore: m.baseScore, Stumps: m.stumps}
}

// FeatureNames returns the expected feature order.
func (m *BoostedStumps) FeatureNames() []string { return m.featureNames }

// PredictProbability applies the ensemble to a single feature vector.
func (m *BoostedStumps) PredictProbability(features []float64) (float64, error) {
	if len(features) != len(m.featureNames) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(features), len(m.featureNames))
	}
	margin := m.baseScore
	for _, s := range m.stumps {
		if features[s.Feature] < s.Threshold {
			margin += s.Left
		} else {
			margin += s.Right
		}
	}
	return sigmoid(margin), nil
}
