package wallet

import "context"

// NotificationStatus labels the outcome carried by a notification.
type NotificationStatus string

const (
	NotificationStatusApproved NotificationStatus = "approved"
	NotificationStatusRejected NotificationStatus = "rejected"
)

// Notification is a message handed to the Notifier. Delivery is
// best-effort from the wallet's perspective: a committed mutation is
// never rolled back because dispatch failed.
type Notification struct {
	Email   Email
	Subject string
	Status  NotificationStatus
	Message string
}

// Notifier delivers confirmation and settlement-result messages.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}
