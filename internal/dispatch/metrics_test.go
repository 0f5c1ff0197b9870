package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func dimValue(datum cwtypes.MetricDatum, name string) string {
	for _, d := range datum.Dimensions {
		if *d.Name == name {
			return *d.Value
		}
	}
	return ""
}

func TestCloudWatchMetrics_RecordOutcome(t *testing.T) {
	cw := &mockCloudWatch{}
	m := NewCloudWatchMetrics(cw, "Mailroom", mockLogger{})

	m.RecordOutcome(context.Background(), OutcomeSkipped, "quiet_hours")

	if len(cw.inputs) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.inputs))
	}
	input := cw.inputs[0]
	if *input.Namespace != "Mailroom" {
		t.Errorf("namespace = %q", *input.Namespace)
	}
	datum := input.MetricData[0]
	if *datum.MetricName != "DispatchOutcome" {
		t.Errorf("metric name = %q", *datum.MetricName)
	}
	if *datum.Value != 1 {
		t.Errorf("value = %v", *datum.Value)
	}
	if got := dimValue(datum, "Outcome"); got != "skipped" {
		t.Errorf("Outcome dimension = %q", got)
	}
	if got := dimValue(datum, "Reason"); got != "quiet_hours" {
		t.Errorf("Reason dimension = %q", got)
	}
}

func TestCloudWatchMetrics_RecordOutcome_NoReasonDimensionWhenEmpty(t *testing.T) {
	cw := &mockCloudWatch{}
	m := NewCloudWatchMetrics(cw, "Mailroom", mockLogger{})

	m.RecordOutcome(context.Background(), OutcomeSent, "")

	datum := cw.inputs[0].MetricData[0]
	if len(datum.Dimensions) != 1 {
		t.Errorf("expected only the Outcome dimension, got %d", len(datum.Dimensions))
	}
}

func TestCloudWatchMetrics_RecordSendLatency(t *testing.T) {
	cw := &mockCloudWatch{}
	m := NewCloudWatchMetrics(cw, "Mailroom", mockLogger{})

	m.RecordSendLatency(context.Background(), 250*time.Millisecond)

	datum := cw.inputs[0].MetricData[0]
	if *datum.MetricName != "SendLatency" {
		t.Errorf("metric name = %q", *datum.MetricName)
	}
	if *datum.Value != 250 {
		t.Errorf("value = %v, want 250", *datum.Value)
	}
	if datum.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("unit = %v", datum.Unit)
	}
}

func TestCloudWatchMetrics_EmissionErrorIsSwallowed(t *testing.T) {
	cw := &mockCloudWatch{err: errors.New("throttled")}
	m := NewCloudWatchMetrics(cw, "Mailroom", mockLogger{})

	// Must not panic or propagate.
	m.RecordOutcome(context.Background(), OutcomeFailed, "transport_error")
	m.RecordSendLatency(context.Background(), time.Second)
}
