package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	MetricHTTPRequests = "HTTPRequests"
	MetricHTTPLatency  = "HTTPLatency"
	MetricHTTP4xx      = "HTTP4xxErrors"
	MetricHTTP5xx      = "HTTP5xxErrors"
)

type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsClient writes custom CloudWatch metrics. A disabled or nil client
// accepts every call and sends nothing.
type MetricsClient struct {
	client    cloudwatchAPI
	namespace string
	enabled   bool
}

func NewMetricsClient(cfg sdkaws.Config, namespace string, enabled bool) *MetricsClient {
	if namespace == "" {
		namespace = "ShopService"
	}
	return &MetricsClient{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: namespace,
		enabled:   enabled,
	}
}

func (m *MetricsClient) IsEnabled() bool {
	return m != nil && m.enabled
}

// RecordRequest sends the request counter, its latency and, for 4xx/5xx, the
// matching error counter in a single PutMetricData call.
func (m *MetricsClient) RecordRequest(ctx context.Context, status int, latency time.Duration, dimensions map[string]string) error {
	now := time.Now()
	data := []types.MetricDatum{
		datum(MetricHTTPRequests, 1, types.StandardUnitCount, dimensions, now),
		datum(MetricHTTPLatency, float64(latency.Milliseconds()), types.StandardUnitMilliseconds, dimensions, now),
	}
	switch {
	case status >= 500:
		data = append(data, datum(MetricHTTP5xx, 1, types.StandardUnitCount, dimensions, now))
	case status >= 400:
		data = append(data, datum(MetricHTTP4xx, 1, types.StandardUnitCount, dimensions, now))
	}
	return m.put(ctx, data)
}

// RecordCount increments a counter metric
func (m *MetricsClient) RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error {
	return m.put(ctx, []types.MetricDatum{datum(metricName, 1, types.StandardUnitCount, dimensions, time.Now())})
}

func (m *MetricsClient) put(ctx context.Context, data []types.MetricDatum) error {
	if !m.IsEnabled() || len(data) == 0 {
		return nil
	}
	if _, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(m.namespace),
		MetricData: data,
	}); err != nil {
		return fmt.Errorf("failed to put metric data: %w", err)
	}
	return nil
}

func datum(name string, value float64, unit types.StandardUnit, dimensions map[string]string, at time.Time) types.MetricDatum {
	keys := make([]string, 0, len(dimensions))
	for k := range dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dims := make([]types.Dimension, 0, len(keys))
	for _, k := range keys {
		dims = append(dims, types.Dimension{Name: sdkaws.String(k), Value: sdkaws.String(dimensions[k])})
	}
	return types.MetricDatum{
		MetricName: sdkaws.String(name),
		Value:      sdkaws.Float64(value),
		Unit:       unit,
		Timestamp:  sdkaws.Time(at),
		Dimensions: dims,
	}
}
