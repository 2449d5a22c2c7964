package outbound

import "context"

// NotificationKind distinguishes the MPA lifecycle events a
// NotificationDispatcher may be asked to announce.
type NotificationKind string

const (
	NotificationMpaRequested NotificationKind = "mpa-requested"
	NotificationMpaApproved  NotificationKind = "mpa-approved"
)

// NotificationDispatcher is the optional collaborator used to notify
// reviewers and requesters of MPA lifecycle events (§6). Implementations
// should treat delivery as best-effort: a dispatch failure never blocks or
// unwinds the activation it was attached to.
type NotificationDispatcher interface {
	SendNotification(ctx context.Context, kind NotificationKind, recipients, cc []string, subject string, properties map[string]string) error
}
