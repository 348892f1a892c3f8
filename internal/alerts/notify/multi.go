package notify

import (
	"context"

	alertapp "watertap/internal/alerts/application"
)

// MultiNotifier dispatches alert events to multiple notifiers.
type MultiNotifier struct {
	notifiers []alertapp.Notifier
}

// NewMultiNotifier constructs a MultiNotifier. Nil entries are skipped.
func NewMultiNotifier(notifiers ...alertapp.Notifier) *MultiNotifier {
	kept := make([]alertapp.Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &MultiNotifier{notifiers: kept}
}

// Len returns the number of wired notifiers.
func (m *MultiNotifier) Len() int {
	if m == nil {
		return 0
	}
	return len(m.notifiers)
}

// Notify forwards events to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, event alertapp.Event) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		notifier.Notify(ctx, event)
	}
}
