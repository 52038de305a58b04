package configstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Event is a typed config-change notification.
type Event struct {
	Key   string
	Value string
}

// Handler receives config-change events. Handlers run on the listener
// goroutine and must not block.
type Handler func(Event)

// reconnectDelay paces reconnection attempts after a listen failure.
const reconnectDelay = 5 * time.Second

// Listener subscribes to the config-change channel on a dedicated
// connection. The connection is held for the lifetime of the subscription
// and is never used for other queries; reads and writes go through Store on
// the shared pool.
type Listener struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger

	mu       sync.Mutex
	handlers []Handler
}

// NewListener creates a Listener on the given pool.
func NewListener(pool *pgxpool.Pool, logger zerolog.Logger) *Listener {
	return &Listener{
		pool:   pool,
		logger: logger.With().Str("component", "config-listener").Logger(),
	}
}

// Register adds a handler for future events. Safe to call before or after
// Run.
func (l *Listener) Register(h Handler) {
	l.mu.Lock()
	l.handlers = append(l.handlers, h)
	l.mu.Unlock()
}

// Run listens for config-change notifications until ctx is cancelled,
// reconnecting with a fixed delay after connection failures.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn().Err(err).Dur("retry_in", reconnectDelay).Msg("config listener disconnected")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}
	l.logger.Info().Str("channel", Channel).Msg("subscribed to config changes")

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.dispatch(parseEvent(notification.Payload))
	}
}

func (l *Listener) dispatch(ev Event) {
	l.mu.Lock()
	handlers := make([]Handler, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.Unlock()

	l.logger.Debug().Str("key", ev.Key).Str("value", ev.Value).Msg("config change received")
	for _, h := range handlers {
		h(ev)
	}
}

// parseEvent splits a "key=value" notification payload. A payload without
// "=" is treated as a bare key.
func parseEvent(payload string) Event {
	key, value, found := strings.Cut(payload, "=")
	if !found {
		return Event{Key: payload}
	}
	return Event{Key: key, Value: value}
}
