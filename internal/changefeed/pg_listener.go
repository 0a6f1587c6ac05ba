package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// SourcePostgres tags events received over LISTEN/NOTIFY.
const SourcePostgres = "postgres"

const (
	defaultChannel    = "station_snapshots"
	defaultRetryDelay = 5 * time.Second
)

type notificationConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type connector func(ctx context.Context, dsn string) (notificationConn, error)

func pgxConnector(ctx context.Context, dsn string) (notificationConn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// PgListener publishes snapshot notifications from a Postgres channel.
type PgListener struct {
	dsn        string
	channel    string
	hub        *Hub
	logger     zerolog.Logger
	retryDelay time.Duration
	connect    connector
}

// ListenerOption customizes the listener.
type ListenerOption func(*PgListener)

// WithChannel overrides the NOTIFY channel name.
func WithChannel(channel string) ListenerOption {
	return func(l *PgListener) {
		if strings.TrimSpace(channel) != "" {
			l.channel = strings.TrimSpace(channel)
		}
	}
}

// WithRetryDelay sets the reconnect delay.
func WithRetryDelay(delay time.Duration) ListenerOption {
	return func(l *PgListener) {
		if delay > 0 {
			l.retryDelay = delay
		}
	}
}

// WithListenerLogger assigns a logger.
func WithListenerLogger(logger zerolog.Logger) ListenerOption {
	return func(l *PgListener) {
		l.logger = logger
	}
}

// NewPgListener constructs a listener.
func NewPgListener(dsn string, hub *Hub, opts ...ListenerOption) (*PgListener, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("changefeed: empty dsn")
	}
	if hub == nil {
		return nil, errors.New("changefeed: nil hub")
	}
	l := &PgListener{
		dsn:        dsn,
		channel:    defaultChannel,
		hub:        hub,
		logger:     zerolog.Nop(),
		retryDelay: defaultRetryDelay,
		connect:    pgxConnector,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run listens until ctx is cancelled, reconnecting after failures.
func (l *PgListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn().Err(err).Str("channel", l.channel).Dur("retry_in", l.retryDelay).Msg("change feed listener disconnected")
		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (l *PgListener) listen(ctx context.Context) error {
	conn, err := l.connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return err
	}
	l.logger.Info().Str("channel", l.channel).Msg("change feed listening")

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		event, err := decodePayload(notification.Payload)
		if err != nil {
			l.logger.Debug().Err(err).Str("payload", notification.Payload).Msg("change feed payload ignored")
			continue
		}
		l.hub.Publish(event)
	}
}

// decodePayload accepts either a JSON object or a bare station id. A bare id
// holding whitespace or JSON delimiters is rejected.
func decodePayload(payload string) (Event, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Event{}, errors.New("changefeed: empty payload")
	}
	if !strings.HasPrefix(payload, "{") {
		if strings.ContainsAny(payload, "{}[]\",: \t\r\n") {
			return Event{}, errors.New("changefeed: malformed payload")
		}
		return Event{StationID: payload, Source: SourcePostgres}, nil
	}
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, err
	}
	if event.StationID == "" {
		return Event{}, errors.New("changefeed: payload missing station_id")
	}
	event.Source = SourcePostgres
	return event, nil
}
