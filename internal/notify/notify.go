// Package notify delivers user notifications. The core treats delivery as
// fire-and-forget: services publish to a queue and the worker persists the
// notification for the user's inbox.
package notify

import (
	"context"
	"time"
)

// Kind tags what a notification is about.
type Kind string

const (
	KindJustificationSubmitted Kind = "JUSTIFICATION_SUBMITTED"
	KindJustificationApproved  Kind = "JUSTIFICATION_APPROVED"
	KindJustificationRejected  Kind = "JUSTIFICATION_REJECTED"
)

// Notification is one message for one user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Kind      Kind      `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier is the sink services talk to. Implementations must not block the
// calling request on delivery.
type Notifier interface {
	Notify(ctx context.Context, userID int64, title, message string, kind Kind) error
}

// Store persists notifications for the inbox endpoints.
type Store interface {
	Insert(ctx context.Context, n Notification) error
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error)
	// MarkRead reports whether the notification existed and belonged to the
	// user.
	MarkRead(ctx context.Context, id string, userID int64) (bool, error)
}
