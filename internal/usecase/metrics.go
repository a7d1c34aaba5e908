package usecase

import "context"

// MetricsSummary represents aggregated processing insights.
type MetricsSummary struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
}

// GetMetricsSummary aggregates processing metrics from persisted logs.
func (uc *LowPolyUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:      aggregation.TotalCount,
		SuccessfulRequests: aggregation.SuccessCount,
		AverageLatencyMs:   aggregation.AverageLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		total := float64(aggregation.TotalCount)
		summary.SuccessRate = float64(aggregation.SuccessCount) / total
		summary.CacheHitRate = float64(aggregation.CacheHitCount) / total
	}

	return summary, nil
}
