package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Handler is the engine surface notifications are dispatched to.
type Handler interface {
	Add(id int64, scheduleExpr string) (bool, error)
	Cancel(ctx context.Context, id int64) error
}

type Listener struct {
	client  *redis.Client
	channel string
	handler Handler
	log     zerolog.Logger
}

func NewListener(client *redis.Client, channel string, handler Handler, log zerolog.Logger) *Listener {
	return &Listener{
		client:  client,
		channel: channel,
		handler: handler,
		log:     log.With().Str("channel", channel).Logger(),
	}
}

// Listen subscribes to the channel and dispatches messages until ctx is done.
// Rejected notifications are logged and never stop the loop.
func (l *Listener) Listen(ctx context.Context) error {
	sub := l.client.Subscribe(ctx, l.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", l.channel, err)
	}
	l.log.Info().Msg("listening for transaction notifications")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription to %s closed", l.channel)
			}
			if err := l.Dispatch(ctx, []byte(msg.Payload)); err != nil {
				l.log.Warn().Err(err).Str("payload", msg.Payload).Msg("notification rejected")
			}
		}
	}
}

// Dispatch decodes one payload and forwards it to the handler.
func (l *Listener) Dispatch(ctx context.Context, payload []byte) error {
	msg, err := Decode(payload)
	if err != nil {
		return err
	}

	switch msg.Action {
	case ActionAdd:
		added, err := l.handler.Add(msg.TransactionID, msg.Schedule)
		if err != nil {
			return fmt.Errorf("add transaction %d: %w", msg.TransactionID, err)
		}
		l.log.Debug().Int64("transaction_id", msg.TransactionID).Bool("added", added).Msg("add notification handled")
	case ActionCancel:
		if err := l.handler.Cancel(ctx, msg.TransactionID); err != nil {
			return fmt.Errorf("cancel transaction %d: %w", msg.TransactionID, err)
		}
		l.log.Debug().Int64("transaction_id", msg.TransactionID).Msg("cancel notification handled")
	}
	return nil
}
