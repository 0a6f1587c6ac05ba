package notify

import (
	"context"
	"errors"
	"time"

	alertapp "velib-cloud/internal/alerts/application"
)

// Notifier renders alert notifications and sends them through a channel.
type Notifier struct {
	channel        Channel
	template       *Template
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithRequestTimeout bounds a single delivery.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// NewNotifier constructs a notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		template:       template,
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Dispatch implements alertapp.Dispatcher.
func (n *Notifier) Dispatch(ctx context.Context, notification alertapp.Notification) error {
	if n == nil || n.channel == nil {
		return errors.New("alert notifier: nil channel")
	}
	content, err := n.template.Render(buildTemplateData(notification))
	if err != nil {
		return err
	}
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}
	return n.channel.Send(ctx, notification.Alert.NotificationChannel, content)
}

func buildTemplateData(notification alertapp.Notification) TemplateData {
	alert := notification.Alert
	station := notification.StationName
	if station == "" {
		station = alert.StationID
	}
	observedAt := ""
	if !notification.ObservedAt.IsZero() {
		observedAt = notification.ObservedAt.UTC().Format(time.RFC3339)
	}
	return TemplateData{
		Kind:       notification.Kind,
		KindLabel:  kindLabel(notification.Kind),
		Test:       notification.Kind == alertapp.KindTest,
		Station:    station,
		StationID:  alert.StationID,
		AlertID:    alert.ID,
		AlertType:  string(alert.Type),
		TypeLabel:  alert.Type.Label(),
		Value:      notification.Value,
		Threshold:  alert.Threshold,
		Frequency:  string(alert.Frequency),
		ObservedAt: observedAt,
	}
}

func kindLabel(kind string) string {
	switch kind {
	case alertapp.KindTest:
		return "Test"
	default:
		return "Alert"
	}
}
