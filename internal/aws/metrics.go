package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric is a single CloudWatch datum.
type Metric struct {
	Name       string
	Value      float64
	Unit       cwtypes.StandardUnit
	Dimensions map[string]string
	Timestamp  time.Time
}

// MetricsRecorder writes metrics to one CloudWatch namespace.
type MetricsRecorder struct {
	client    CloudWatchAPI
	namespace string
}

// NewMetricsRecorder returns a recorder bound to namespace.
func NewMetricsRecorder(client CloudWatchAPI, namespace string) *MetricsRecorder {
	return &MetricsRecorder{client: client, namespace: namespace}
}

// Record sends all metrics in a single PutMetricData call.
func (m *MetricsRecorder) Record(ctx context.Context, metrics ...Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	data := make([]cwtypes.MetricDatum, 0, len(metrics))
	for _, mt := range metrics {
		datum := cwtypes.MetricDatum{
			MetricName: awsString(mt.Name),
			Value:      &mt.Value,
			Unit:       mt.Unit,
		}
		if datum.Unit == "" {
			datum.Unit = cwtypes.StandardUnitCount
		}
		if !mt.Timestamp.IsZero() {
			ts := mt.Timestamp
			datum.Timestamp = &ts
		}
		for k, v := range mt.Dimensions {
			datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
				Name:  awsString(k),
				Value: awsString(v),
			})
		}
		data = append(data, datum)
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &m.namespace,
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
