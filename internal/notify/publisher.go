package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNoListeners is returned when a notification reached no subscribed engine.
var ErrNoListeners = errors.New("no engine is listening on the notify channel")

type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Add(ctx context.Context, id int64, scheduleExpr string) error {
	return p.Publish(ctx, Message{Action: ActionAdd, TransactionID: id, Schedule: scheduleExpr})
}

func (p *Publisher) Cancel(ctx context.Context, id int64) error {
	return p.Publish(ctx, Message{Action: ActionCancel, TransactionID: id})
}

func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	if receivers == 0 {
		return ErrNoListeners
	}
	return nil
}
