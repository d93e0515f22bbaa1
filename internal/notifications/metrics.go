package notifications

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Channel names a delivery channel in metrics and logs.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Result is the metric dimension for a delivery outcome.
type Result string

const (
	ResultSent    Result = "sent"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
)

const (
	metricDelivery = "NotificationDelivery"
	dimChannel     = "Channel"
	dimResult      = "Result"
	dimTemplate    = "Template"
)

// Metrics records delivery outcomes.
type Metrics interface {
	RecordDelivery(ctx context.Context, channel Channel, template string, result Result)
}

// NoopMetrics discards everything. Used when ENABLE_METRICS is off.
type NoopMetrics struct{}

func (NoopMetrics) RecordDelivery(context.Context, Channel, string, Result) {}

// CloudWatchClient is the PutMetricData subset of *cloudwatch.Client.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits one NotificationDelivery datum per outcome with
// Channel, Template and Result dimensions.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordDelivery never fails the caller; errors are logged.
func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, channel Channel, template string, result Result) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDelivery),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(dimChannel), Value: aws.String(string(channel))},
					{Name: aws.String(dimTemplate), Value: aws.String(template)},
					{Name: aws.String(dimResult), Value: aws.String(string(result))},
				},
			},
		},
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to record notification metric",
			"error", err,
			"channel", channel,
			"result", result,
		)
	}
}

var _ Metrics = (*CloudWatchMetrics)(nil)
