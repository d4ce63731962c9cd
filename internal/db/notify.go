package db

import (
	"context"
	"database/sql"
	"time"

	"telecare/internal/logger"

	"github.com/lib/pq"
)

// Notifier wraps the LISTEN/NOTIFY mechanism in PostgreSQL. The API server
// notifies on it when rows land (new exchanges, connection changes) so that
// external UIs subscribed to the same channel see changes without polling.
type Notifier struct {
	DB      *sql.DB
	ConnStr string
	Channel string
}

// NewNotifier constructs a Notifier. connStr must be the same DSN the DB was
// opened with; pq.Listener needs its own connection.
func NewNotifier(db *sql.DB, connStr, channel string) *Notifier {
	return &Notifier{DB: db, ConnStr: connStr, Channel: channel}
}

// Notify publishes payload on the channel.
func (n *Notifier) Notify(ctx context.Context, payload string) error {
	_, err := n.DB.ExecContext(ctx, `SELECT pg_notify($1, $2)`, n.Channel, payload)
	return err
}

// Listen yields notification payloads until the context is cancelled.
func (n *Notifier) Listen(ctx context.Context) (<-chan string, error) {
	log := logger.For("db.notifier")
	listener := pq.NewListener(n.ConnStr, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.WithError(err).Warn("listener event")
			}
		})
	if err := listener.Listen(n.Channel); err != nil {
		_ = listener.Close()
		return nil, err
	}
	ch := make(chan string)
	go func() {
		defer func() {
			_ = listener.Close()
			close(ch)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case note, ok := <-listener.Notify:
				if !ok {
					return
				}
				if note == nil {
					// nil is delivered after a reconnect
					continue
				}
				select {
				case ch <- note.Extra:
				case <-ctx.Done():
					return
				}
			case <-time.After(90 * time.Second):
				go func() { _ = listener.Ping() }()
			}
		}
	}()
	return ch, nil
}
