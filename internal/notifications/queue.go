package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"blackhub/internal/types"
)

// SQSSender is the SendMessage subset of *sqs.Client.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSDispatcher publishes notifications to the notification queue. The
// notify-worker Lambda consumes them with QueueConsumer.
type SQSDispatcher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

func NewSQSDispatcher(client SQSSender, queueURL string, logger *slog.Logger) *SQSDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSDispatcher{client: client, queueURL: queueURL, logger: logger}
}

// Dispatch serializes n and sends it to the queue.
func (d *SQSDispatcher) Dispatch(ctx context.Context, n types.Notification) error {
	if n.RequestID == "" {
		n.RequestID = types.GetRequestID(ctx)
	}
	if n.EnqueuedAt.IsZero() {
		n.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notification dispatcher: failed to marshal message: %w", err)
	}

	if _, err := d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
	}); err != nil {
		return fmt.Errorf("notification dispatcher: failed to send message to %s: %w", d.queueURL, err)
	}

	d.logger.InfoContext(ctx, "notification queued",
		"user_id", n.UserID,
		"template", n.Template,
		"request_id", n.RequestID,
	)
	return nil
}

var _ Dispatcher = (*SQSDispatcher)(nil)

// QueueConsumer is the SQS Lambda handler for queued notifications.
type QueueConsumer struct {
	deliverer Deliverer
	logger    *slog.Logger
}

func NewQueueConsumer(d Deliverer, logger *slog.Logger) *QueueConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueConsumer{deliverer: d, logger: logger}
}

// Handle processes a batch and reports failed records so SQS redelivers only
// those. Malformed bodies are acknowledged; retrying them cannot succeed.
func (c *QueueConsumer) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse

	for _, record := range ev.Records {
		var n types.Notification
		if err := json.Unmarshal([]byte(record.Body), &n); err != nil || n.UserID == "" || n.Template == "" {
			c.logger.ErrorContext(ctx, "discarding malformed notification message",
				"message_id", record.MessageId,
				"error", err,
			)
			continue
		}
		if rc, err := strconv.Atoi(record.Attributes["ApproximateReceiveCount"]); err == nil {
			n.Attempt = rc
		}

		msgCtx := types.WithRequestID(ctx, n.RequestID)
		if _, err := c.deliverer.NotifyOnce(msgCtx, n); err != nil {
			c.logger.ErrorContext(msgCtx, "notification delivery failed",
				"message_id", record.MessageId,
				"user_id", n.UserID,
				"template", n.Template,
				"attempt", n.Attempt,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return resp, nil
}
