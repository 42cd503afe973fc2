package workflow

import (
	"sync"
	"time"
)

// NoticeKind classifies a user notice.
type NoticeKind string

const (
	NoticeValidation NoticeKind = "validation"
	NoticeNoFile     NoticeKind = "no_file"
	NoticeConversion NoticeKind = "conversion_failed"
)

// Notice is a blocking message shown to the user.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Details string     `json:"details,omitempty"`
	At      time.Time  `json:"at"`
}

// Notifier receives user notices. Implementations must not call back into
// the controller.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

// NoticeQueue buffers notices until they are drained, e.g. into the next
// state snapshot sent to a browser.
type NoticeQueue struct {
	mu      sync.Mutex
	pending []Notice
}

// Notify appends a notice.
func (q *NoticeQueue) Notify(n Notice) {
	q.mu.Lock()
	q.pending = append(q.pending, n)
	q.mu.Unlock()
}

// Drain returns and clears the queued notices.
func (q *NoticeQueue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len returns the number of queued notices.
func (q *NoticeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
