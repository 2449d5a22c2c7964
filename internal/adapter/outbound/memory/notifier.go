package memory

import (
	"context"
	"sync"

	"github.com/jitgroups/broker/internal/port/outbound"
)

// Notification is one recorded SendNotification call.
type Notification struct {
	Kind       outbound.NotificationKind
	Recipients []string
	CC         []string
	Subject    string
	Properties map[string]string
}

// Notifier implements outbound.NotificationDispatcher by recording every
// dispatch in memory, for assertions in tests.
type Notifier struct {
	mu   sync.Mutex
	sent []Notification
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

var _ outbound.NotificationDispatcher = (*Notifier)(nil)

// SendNotification implements outbound.NotificationDispatcher.
func (n *Notifier) SendNotification(_ context.Context, kind outbound.NotificationKind, recipients, cc []string, subject string, properties map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{
		Kind:       kind,
		Recipients: append([]string(nil), recipients...),
		CC:         append([]string(nil), cc...),
		Subject:    subject,
		Properties: properties,
	})
	return nil
}

// Sent returns every notification recorded so far.
func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}
