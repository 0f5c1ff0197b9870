package dispatch

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"mailroom/internal/types"
)

// Outcome classifies a dispatch attempt for metric dimensions.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Metric and dimension names emitted to CloudWatch.
const (
	metricDispatchOutcome = "DispatchOutcome"
	metricSendLatency     = "SendLatency"
	dimOutcome            = "Outcome"
	dimReason             = "Reason"
)

// Metrics records dispatch outcomes and transport latency. Implementations
// must never fail a dispatch: emission errors are swallowed and logged.
type Metrics interface {
	// RecordOutcome counts one dispatch result. Reason carries the skip
	// reason or failure class and is empty for sent.
	RecordOutcome(ctx context.Context, outcome Outcome, reason string)

	// RecordSendLatency records the duration of one transport call.
	RecordSendLatency(ctx context.Context, d time.Duration)
}

// NoopMetrics discards all measurements. Used in tests and local mode.
type NoopMetrics struct{}

func (NoopMetrics) RecordOutcome(context.Context, Outcome, string) {}
func (NoopMetrics) RecordSendLatency(context.Context, time.Duration) {}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements Metrics by emitting to AWS CloudWatch.
//
// Metrics emitted:
//   - DispatchOutcome: Dims {Outcome, Reason} -- one count per dispatch
//   - SendLatency: no dims -- transport call duration in milliseconds
var _ Metrics = (*CloudWatchMetrics)(nil)

type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordOutcome emits a DispatchOutcome count with Outcome and, when
// non-empty, Reason dimensions.
func (m *CloudWatchMetrics) RecordOutcome(ctx context.Context, outcome Outcome, reason string) {
	dims := []cwtypes.Dimension{
		{
			Name:  aws.String(dimOutcome),
			Value: aws.String(string(outcome)),
		},
	}
	if reason != "" {
		dims = append(dims, cwtypes.Dimension{
			Name:  aws.String(dimReason),
			Value: aws.String(reason),
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDispatchOutcome),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record dispatch outcome metric",
			"error", err.Error(),
			"outcome", string(outcome),
			"reason", reason,
		)
	}
}

// RecordSendLatency emits the transport call duration in milliseconds.
func (m *CloudWatchMetrics) RecordSendLatency(ctx context.Context, d time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricSendLatency),
				Value:      aws.Float64(float64(d.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record send latency metric",
			"error", err.Error(),
			"latency_ms", d.Milliseconds(),
		)
	}
}
