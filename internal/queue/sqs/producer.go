package sqsqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// ControlCommand is the durable control-channel envelope: the scheduler and
// the dashboard both drive the dispatcher through these.
type ControlCommand struct {
	Action      string    `json:"action"`
	BroadcastID string    `json:"broadcastId"`
	RequestID   string    `json:"requestId,omitempty"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
}

type Producer struct {
	SQS      *sqs.Client
	QueueURL string
}

// EnqueueControl publishes one control command. On a FIFO queue the group id
// keeps commands for one broadcast ordered (a pause enqueued after a start is
// observed in that order) and the request id deduplicates scheduler retries.
func (p *Producer) EnqueueControl(ctx context.Context, cmd ControlCommand) error {
	if cmd.EnqueuedAt.IsZero() {
		cmd.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	}
	if isFIFO(p.QueueURL) {
		in.MessageGroupId = str(cmd.BroadcastID)
		if cmd.RequestID != "" {
			in.MessageDeduplicationId = str(cmd.RequestID)
		}
	}
	_, err = p.SQS.SendMessage(ctx, in)
	return err
}

func isFIFO(queueURL string) bool {
	return len(queueURL) > 5 && queueURL[len(queueURL)-5:] == ".fifo"
}

func str(s string) *string { return &s }
