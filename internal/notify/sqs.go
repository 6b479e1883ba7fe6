package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSGateway publishes notification jobs to an SQS queue.
type SQSGateway struct {
	client   sqsSender
	queueURL string
}

func NewSQSGateway(client sqsSender, queueURL string) *SQSGateway {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &SQSGateway{client: client, queueURL: queueURL}
}

// NewSQSClient loads AWS config for region, honouring an endpoint override
// for LocalStack.
func NewSQSClient(ctx context.Context, region, endpoint string) (*sqs.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("notify: load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (g *SQSGateway) Notify(ctx context.Context, userID uuid.UUID, template string, data map[string]any) error {
	job := newJob(userID, template, data)
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("notify: marshal job: %w", err)
	}

	_, err = g.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(g.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"template": {DataType: aws.String("String"), StringValue: aws.String(template)},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: send SQS message: %w", err)
	}
	return nil
}
