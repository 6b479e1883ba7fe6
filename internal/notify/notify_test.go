package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSGatewayPublishesJob(t *testing.T) {
	fake := &fakeSQS{}
	gw := NewSQSGateway(fake, "https://sqs.local/queue/notifications")
	user := uuid.New()

	err := gw.Notify(context.Background(), user, TemplateWaitlistSlotAvailable, map[string]any{"date": "2026-10-19"})
	require.NoError(t, err)
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "https://sqs.local/queue/notifications", aws.ToString(in.QueueUrl))
	assert.Equal(t, TemplateWaitlistSlotAvailable, aws.ToString(in.MessageAttributes["template"].StringValue))

	var job Job
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &job))
	assert.Equal(t, user, job.UserID)
	assert.Equal(t, "2026-10-19", job.Data["date"])
	assert.NotEqual(t, uuid.Nil, job.ID)
}

func TestSQSGatewayWrapsErrors(t *testing.T) {
	gw := NewSQSGateway(&fakeSQS{err: errors.New("throttled")}, "q")
	err := gw.Notify(context.Background(), uuid.New(), TemplateAppointmentCreated, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestNewSQSGatewayRequiresQueue(t *testing.T) {
	assert.Panics(t, func() { NewSQSGateway(&fakeSQS{}, "") })
}

func TestLogGatewayNeverFails(t *testing.T) {
	assert.NoError(t, NewLogGateway(nil).Notify(context.Background(), uuid.New(), TemplateAppointmentCancelled, nil))
}
