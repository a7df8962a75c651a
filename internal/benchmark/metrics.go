package benchmark

import "github.com/leapstack-labs/leapbench/pkg/core"

// ComputeMetrics turns per-result match flags into rates. Each approach is
// rated over the results that carry its outcome; an approach without any
// outcome has nil rates.
func ComputeMetrics(results []*core.Result) core.Metrics {
	var m core.Metrics
	m.BaselineExactMatch, m.BaselineExecMatch = rates(results, core.ApproachBaseline)
	m.EnhancedExactMatch, m.EnhancedExecMatch = rates(results, core.ApproachEnhanced)
	return m
}

func rates(results []*core.Result, a core.Approach) (exact, exec *float64) {
	var n, exactHits, execHits int
	for _, r := range results {
		o := r.Outcome(a)
		if o == nil {
			continue
		}
		n++
		if o.ExactMatch {
			exactHits++
		}
		if o.ExecMatch {
			execHits++
		}
	}
	if n == 0 {
		return nil, nil
	}
	e, x := float64(exactHits)/float64(n), float64(execHits)/float64(n)
	return &e, &x
}
