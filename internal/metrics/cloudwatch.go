// Package metrics emits cycle telemetry to AWS CloudWatch. Emission is
// best-effort: a metric failure is logged and never surfaces to the caller.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"linkdigest/internal/digest"
)

// Metric names and dimensions.
const (
	metricDigestDispatch   = "DigestDispatch"
	metricCycleLatency     = "DigestCycleLatency"
	metricPreviewFallbacks = "PreviewFallbacks"

	dimResult = "Result"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchMetrics satisfies the cycle's
// metrics contract.
var _ digest.Metrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics publishes cycle metrics to a CloudWatch namespace.
//
// Metrics emitted:
//   - DigestDispatch: Dims {Result} -- on every dispatch outcome
//   - DigestCycleLatency: No dims -- wall time of one full cycle
//   - PreviewFallbacks: No dims -- entries that fell back to a bare preview
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordDispatch emits a DigestDispatch count with the Result dimension
// ("success" or "failure").
func (m *CloudWatchMetrics) RecordDispatch(ctx context.Context, result string) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDigestDispatch),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(dimResult),
						Value: aws.String(result),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record dispatch metric",
			"error", err.Error(),
			"result", result,
		)
	}
}

// RecordCycleLatency emits the wall time of one evaluate-and-send cycle in
// milliseconds.
func (m *CloudWatchMetrics) RecordCycleLatency(ctx context.Context, d time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricCycleLatency),
				Value:      aws.Float64(float64(d.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record cycle latency metric",
			"error", err.Error(),
			"duration_ms", d.Milliseconds(),
		)
	}
}

// RecordPreviewFallbacks emits the number of entries in a cycle whose preview
// fetch failed and degraded to the bare-URL fallback.
func (m *CloudWatchMetrics) RecordPreviewFallbacks(ctx context.Context, count int) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricPreviewFallbacks),
				Value:      aws.Float64(float64(count)),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record preview fallback metric",
			"error", err.Error(),
			"count", count,
		)
	}
}
