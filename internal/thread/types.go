// Package thread provides durable conversation thread storage.
//
// A thread is an append-only sequence of messages identified by a
// caller-supplied ID. Threads survive restarts: reopening the store
// against the same database file yields the same threads, messages,
// and titles.
package thread

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an operation references a thread that
// has no durable record.
var ErrNotFound = errors.New("thread not found")

// Summary describes one thread for listing purposes (e.g. a sidebar).
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// TitleState is the persisted title bookkeeping for a thread: the
// current title and the conversational message count at which it was
// last recomputed.
type TitleState struct {
	Title          string
	UpdatedAtCount int
}
