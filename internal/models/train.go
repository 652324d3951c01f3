package models

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/gackouhamady/bnpp-risk-insights/internal/features"
)

// ErrNotEnoughData means training was asked to fit on too few rows.
var ErrNotEnoughData = errors.New("not enough rows to train")

const minTrainingRows = 5

// DefaultFeatureNames is the feature order of the default-risk model.
var DefaultFeatureNames = []string{"avg_amount", "std_amount", "tx_count_per_day", "avg_delay_days"}

// ChurnFeatureNames is the feature order of the churn-risk model.
var ChurnFeatureNames = []string{"tenure_days", "avg_balance", "total_tx_count", "days_since_last"}

// TrainDefault fits the default-risk logistic model. Labels are proxied from
// spend intensity: the top quintile by average amount is treated as risky.
// Null std and delay features are imputed with column means before fitting.
func TrainDefault(rows []features.DefaultFeatures) (*Logistic, error) {
	if len(rows) < minTrainingRows {
		return nil, fmt.Errorf("%w: got %d, want at least %d", ErrNotEnoughData, len(rows), minTrainingRows)
	}

	imputed := features.ImputeDefaults(rows)
	matrix := make([][]float64, len(imputed))
	avgAmounts := make([]float64, len(imputed))
	for i, row := range imputed {
		vec, err := row.Vector()
		if err != nil {
			return nil, fmt.Errorf("vectorize account %d: %w", row.AccountID, err)
		}
		matrix[i] = vec
		avgAmounts[i] = row.AvgAmount
	}

	labels := topQuintileLabels(avgAmounts)
	return fitLogistic(DefaultFeatureNames, matrix, labels), nil
}

// TrainChurn fits the churn-risk stump ensemble. Labels are proxied from
// inactivity: the top quintile by days since the last transaction is treated
// as churning.
func TrainChurn(rows []features.ChurnFeatures) (*BoostedStumps, error) {
	if len(rows) < minTrainingRows {
		return nil, fmt.Errorf("%w: got %d, want at least %d", ErrNotEnoughData, len(rows), minTrainingRows)
	}

	matrix := make([][]float64, len(rows))
	daysSince := make([]float64, len(rows))
	for i, row := range rows {
		matrix[i] = row.Vector()
		daysSince[i] = row.DaysSinceLast
	}

	labels := topQuintileLabels(daysSince)
	return fitStumps(ChurnFeatureNames, matrix, labels), nil
}

// topQuintileLabels marks the top 20% of values (ties at the cut included)
// as positive.
func topQuintileLabels(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	cutIdx := int(math.Ceil(0.8 * float64(len(sorted))))
	if cutIdx >= len(sorted) {
		cutIdx = len(sorted) - 1
	}
	cut := sorted[cutIdx]

	labels := make([]float64, len(values))
	for i, v := range values {
		if v >= cut {
			labels[i] = 1
		}
	}
	return labels
}

// fitLogistic runs full-batch gradient descent on standardized inputs.
func fitLogistic(names []string, matrix [][]float64, labels []float64) *Logistic {
	nFeat := len(names)
	means := make([]float64, nFeat)
	scales := make([]float64, nFeat)
	for j := 0; j < nFeat; j++ {
		var sum float64
		for _, row := range matrix {
			sum += row[j]
		}
		means[j] = sum / float64(len(matrix))
		var sq float64
		for _, row := range matrix {
			d := row[j] - means[j]
			sq += d * d
		}
		scales[j] = math.Sqrt(sq / float64(len(matrix)))
	}

	scaled := make([][]float64, len(matrix))
	for i, row := range matrix {
		scaled[i] = make([]float64, nFeat)
		for j, x := range row {
			scaled[i][j] = standardize(x, means[j], scales[j])
		}
	}

	const (
		iterations = 500
		rate       = 0.1
	)
	coefs := make([]float64, nFeat)
	var intercept float64
	n := float64(len(scaled))

	for it := 0; it < iterations; it++ {
		grad := make([]float64, nFeat)
		var gradB float64
		for i, row := range scaled {
			z := intercept
			for j, x := range row {
				z += coefs[j] * x
			}
			err := sigmoid(z) - labels[i]
			for j, x := range row {
				grad[j] += err * x
			}
			gradB += err
		}
		for j := range coefs {
			coefs[j] -= rate * grad[j] / n
		}
		intercept -= rate * gradB / n
	}

	return &Logistic{
		featureNames: names,
		means:        means,
		scales:       scales,
		coefficients: coefs,
		intercept:    intercept,
	}
}

// fitStumps runs gradient boosting with depth-one trees on the logistic loss.
func fitStumps(names []string, matrix [][]float64, labels []float64) *BoostedStumps {
	const (
		rounds = 50
		shrink = 0.3
	)

	var positives float64
	for _, y := range labels {
		positives += y
	}
	prior := positives / float64(len(labels))
	if prior <= 0 {
		prior = 1e-3
	}
	if prior >= 1 {
		prior = 1 - 1e-3
	}
	base := math.Log(prior / (1 - prior))

	margins := make([]float64, len(labels))
	for i := range margins {
		margins[i] = base
	}

	var stumps []Stump
	for r := 0; r < rounds; r++ {
		residuals := make([]float64, len(labels))
		for i := range labels {
			residuals[i] = labels[i] - sigmoid(margins[i])
		}

		best, ok := bestStump(matrix, residuals)
		if !ok {
			break
		}
		best.Left *= shrink
		best.Right *= shrink
		stumps = append(stumps, best)

		for i, row := range matrix {
			if row[best.Feature] < best.Threshold {
				margins[i] += best.Left
			} else {
				margins[i] += best.Right
			}
		}
	}

	return &BoostedStumps{featureNames: names, baseScore: base, stumps: stumps}
}

// bestStump searches every feature and candidate threshold for the split
// minimizing squared residual error, with leaf values set to residual means.
func bestStump(matrix [][]float64, residuals []float64) (Stump, bool) {
	var best Stump
	bestErr := math.Inf(1)
	found := false

	for feat := 0; feat < len(matrix[0]); feat++ {
		values := make([]float64, len(matrix))
		for i, row := range matrix {
			values[i] = row[feat]
		}
		for _, threshold := range candidateThresholds(values) {
			var lSum, rSum float64
			var lN, rN int
			for i, v := range values {
				if v < threshold {
					lSum += residuals[i]
					lN++
				} else {
					rSum += residuals[i]
					rN++
				}
			}
			if lN == 0 || rN == 0 {
				continue
			}
			lMean := lSum / float64(lN)
			rMean := rSum / float64(rN)

			var sqErr float64
			for i, v := range values {
				var d float64
				if v < threshold {
					d = residuals[i] - lMean
				} else {
					d = residuals[i] - rMean
				}
				sqErr += d * d
			}
			if sqErr < bestErr {
				bestErr = sqErr
				best = Stump{Feature: feat, Threshold: threshold, Left: lMean, Right: rMean}
				found = true
			}
		}
	}
	return best, found
}

// candidateThresholds returns the midpoints between consecutive distinct
// values.
func candidateThresholds(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var mids []float64
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			mids = append(mids, (sorted[i]+sorted[i-1])/2)
		}
	}
	return mids
}
