package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSClient sends raw messages to a queue. It satisfies MessagePublisher
// with the queue URL as target, so order events can go to SQS instead of SNS.
type SQSClient struct {
	client sqsAPI
}

func NewSQSClient(cfg sdkaws.Config) *SQSClient {
	return &SQSClient{client: sqs.NewFromConfig(cfg)}
}

func (s *SQSClient) Publish(ctx context.Context, queueURL string, message []byte) error {
	if queueURL == "" {
		return fmt.Errorf("empty queueURL")
	}
	_, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(queueURL),
		MessageBody: sdkaws.String(string(message)),
	})
	if err != nil {
		return fmt.Errorf("sqs send failed for queue %s: %w", queueURL, err)
	}
	return nil
}
