package deadline

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"github.com/Adibmaros/tasks-management/domain"
)

// enqueuer is the subset of *azqueue.QueueClient the alerter needs.
type enqueuer interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueueAlerter forwards expiry alerts to an Azure Storage queue for
// out-of-band delivery (mail, push).
type QueueAlerter struct {
	queue  enqueuer
	locale Locale
}

// AlertMessage is the queued payload.
type AlertMessage struct {
	TaskID   int64     `json:"taskId"`
	UserID   int64     `json:"userId"`
	Name     string    `json:"name"`
	Deadline time.Time `json:"deadline"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
}

// NewQueueAlerter connects to queueName using connStr.
func NewQueueAlerter(connStr, queueName string, locale Locale) (*QueueAlerter, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	qc, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &QueueAlerter{queue: qc, locale: locale}, nil
}

// Alert enqueues one AlertMessage for task.
func (q *QueueAlerter) Alert(ctx context.Context, task domain.Task) error {
	deadline, _ := task.Deadline()
	title, body := AlertText(task, q.locale)
	data, err := sonic.Marshal(AlertMessage{
		TaskID:   task.ID,
		UserID:   task.UserID,
		Name:     task.Name,
		Deadline: deadline,
		Title:    title,
		Body:     body,
	})
	if err != nil {
		return err
	}
	_, err = q.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
