package eventlog

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RezaEskandarii/stepfire/internal/message_broaker"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// BrokerLogger publishes entries to a message broker from a background goroutine.
// When the buffer is full new entries are dropped.
type BrokerLogger struct {
	broker   message_broaker.MessageBroker
	instance string
	log      zerolog.Logger
	entries  chan Entry
	now      func() time.Time

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	done    chan struct{}
}

func NewBrokerLogger(broker message_broaker.MessageBroker, instance string, bufferSize int, log zerolog.Logger) *BrokerLogger {
	if bufferSize < 1 {
		bufferSize = 1
	}
	bl := &BrokerLogger{
		broker:   broker,
		instance: instance,
		log:      log,
		entries:  make(chan Entry, bufferSize),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go bl.publishLoop()
	return bl
}

func (b *BrokerLogger) Log(kind Kind, label string, payload any) {
	entry := Entry{
		ID:       uuid.NewString(),
		Instance: b.instance,
		Kind:     kind,
		Label:    label,
		Payload:  Serialize(payload),
		LoggedAt: b.now().UTC(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	select {
	case b.entries <- entry:
	default:
		b.dropped.Add(1)
		b.log.Warn().Str("label", label).Msg("event log buffer full, entry dropped")
	}
}

// Dropped returns how many entries were discarded because the buffer was full.
func (b *BrokerLogger) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops accepting entries, flushes what is buffered and closes the broker.
func (b *BrokerLogger) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.entries)
	b.mu.Unlock()

	<-b.done
	return b.broker.Close()
}

func (b *BrokerLogger) publishLoop() {
	defer close(b.done)

	for entry := range b.entries {
		body, err := json.Marshal(entry)
		if err != nil {
			b.log.Error().Err(err).Msg("failed to marshal event log entry")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := b.broker.Publish(ctx, body); err != nil {
			b.log.Error().Err(err).Str("label", entry.Label).Msg("failed to publish event log entry")
		}
		cancel()
	}
}
