package store

import "github.com/nhle/carrylink/internal/model"

// Store defines the notification container shared by the sync loop and
// every delivery surface. None of its operations can fail.
type Store interface {
	// Add inserts n at the head unless an entry with the same ID exists.
	// It reports whether n was inserted.
	Add(n model.Notification) bool

	// Set replaces the whole notification set. Duplicate IDs in list are
	// collapsed onto their first occurrence.
	Set(list []model.Notification)

	// Merge replaces the set with list like Set, but an entry that is
	// already read stays read, and entries missing from list are kept
	// ahead of it.
	Merge(list []model.Notification)

	// MarkAsRead marks the entry with id as read. Unknown ids are ignored.
	MarkAsRead(id string)

	// MarkAllAsRead marks every entry as read.
	MarkAllAsRead()

	// Remove deletes the entry with id. Unknown ids are ignored.
	Remove(id string)

	// Clear empties the store.
	Clear()

	// Contains reports whether an entry with id exists.
	Contains(id string) bool

	// Get returns the entry with id.
	Get(id string) (model.Notification, bool)

	// UnreadCount returns the number of entries with Read == false.
	UnreadCount() int

	// Len returns the number of entries.
	Len() int

	// Snapshot returns a copy of all entries, newest first.
	Snapshot() []model.Notification

	// Latest returns a copy of at most n entries from the head.
	Latest(n int) []model.Notification

	// LatestUnread returns the unread entry closest to the head.
	LatestUnread() (model.Notification, bool)

	// Subscribe returns a channel that receives a signal after each
	// change, and a function that cancels the subscription. Signals
	// coalesce: a slow reader sees one pending signal, not a backlog.
	Subscribe() (<-chan struct{}, func())
}
