package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Queue struct {
	client    *redis.Client
	queueName string
}

// EnrichMessage 一个待富化的职位
type EnrichMessage struct {
	JobID    string    `json:"job_id"`
	Reason   string    `json:"reason,omitempty"`
	QueuedAt time.Time `json:"queued_at"`
}

// 入队原因
const (
	ReasonCreated  = "created"
	ReasonSweep    = "sweep"
	ReasonReenrich = "reenrich"
)

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Push 将任务加入队列
func (q *Queue) Push(ctx context.Context, msg *EnrichMessage) error {
	if msg.QueuedAt.IsZero() {
		msg.QueuedAt = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Enqueue 按职位 ID 入队
func (q *Queue) Enqueue(ctx context.Context, jobID, reason string) error {
	return q.Push(ctx, &EnrichMessage{JobID: jobID, Reason: reason})
}

// Pop 从队列获取任务（阻塞）
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*EnrichMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时，无任务
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg EnrichMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}
