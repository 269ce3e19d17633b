// Package notify defines the outbound notification port. Delivery (email
// templates, SMTP) lives behind it; the engine fires and forgets.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Message names a template and its variables for one recipient.
type Message struct {
	Template string
	UserID   int64
	Vars     map[string]any
}

// Notifier implementations must not block on delivery and must never be
// called while a database transaction or advisory lock is held.
type Notifier interface {
	Notify(ctx context.Context, m Message)
}

// LogNotifier records notifications in the log instead of delivering them.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n *LogNotifier) Notify(_ context.Context, m Message) {
	n.Logger.WithFields(logrus.Fields{
		"template": m.Template,
		"user_id":  m.UserID,
		"vars":     m.Vars,
	}).Info("notification queued")
}
