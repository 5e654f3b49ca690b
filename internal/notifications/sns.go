package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSPublisher is the subset of the SNS client used by SNSSink.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink forwards warnings and errors to an SNS topic.
type SNSSink struct {
	client   SNSPublisher
	topicARN string
}

// NewSNSSink creates a sink publishing to topicARN.
func NewSNSSink(client SNSPublisher, topicARN string) *SNSSink {
	return &SNSSink{client: client, topicARN: topicARN}
}

// Name implements Sink.
func (s *SNSSink) Name() string { return "sns" }

// Deliver publishes n unless it is a plain success or info notice.
func (s *SNSSink) Deliver(ctx context.Context, n *Notification) error {
	if n.Level != LevelWarning && n.Level != LevelError {
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(fmt.Sprintf("aarna %s: %s", n.Level, n.Operation)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"level":     {DataType: aws.String("String"), StringValue: aws.String(string(n.Level))},
			"operation": {DataType: aws.String("String"), StringValue: aws.String(n.Operation)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}
