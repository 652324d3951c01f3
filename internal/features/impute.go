package features

import "github.com/montanaflynn/stats"

// ImputeDefaults fills null std_amount and avg_delay_days across the whole
// feature matrix with the column mean of the observed values, the same way
// single-transaction accounts are handled before model input. A column with
// no observed values at all imputes to zero. The input slice is not mutated.
func ImputeDefaults(rows []DefaultFeatures) []DefaultFeatures {
	stdMean := columnMean(rows, func(f DefaultFeatures) *float64 { return f.StdAmount })
	delayMean := columnMean(rows, func(f DefaultFeatures) *float64 { return f.AvgDelayDays })

	out := make([]DefaultFeatures, len(rows))
	for i, f := range rows {
		if f.StdAmount == nil {
			v := stdMean
			f.StdAmount = &v
		} else {
			v := *f.StdAmount
			f.StdAmount = &v
		}
		if f.AvgDelayDays == nil {
			v := delayMean
			f.AvgDelayDays = &v
		} else {
			v := *f.AvgDelayDays
			f.AvgDelayDays = &v
		}
		out[i] = f
	}
	return out
}

func columnMean(rows []DefaultFeatures, col func(DefaultFeatures) *float64) float64 {
	var observed []float64
	for _, f := range rows {
		if v := col(f); v != nil {
			observed = append(observed, *v)
		}
	}
	if len(observed) == 0 {
		return 0
	}
	m, err := stats.Mean(observed)
	if err != nil {
		return 0
	}
	return m
}
