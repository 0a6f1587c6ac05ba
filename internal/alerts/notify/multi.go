package notify

import (
	"context"
	"errors"

	alertapp "velib-cloud/internal/alerts/application"
)

// MultiDispatcher forwards notifications to several dispatchers and joins
// their failures.
type MultiDispatcher struct {
	dispatchers []alertapp.Dispatcher
}

// NewMultiDispatcher constructs a MultiDispatcher.
func NewMultiDispatcher(dispatchers ...alertapp.Dispatcher) *MultiDispatcher {
	return &MultiDispatcher{dispatchers: dispatchers}
}

// Dispatch forwards to all dispatchers.
func (m *MultiDispatcher) Dispatch(ctx context.Context, notification alertapp.Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, dispatcher := range m.dispatchers {
		if dispatcher == nil {
			continue
		}
		if err := dispatcher.Dispatch(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
