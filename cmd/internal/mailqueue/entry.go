// Package mailqueue appends outbound mail to the queue table consumed by the
// external delivery worker. Nothing here sends mail.
package mailqueue

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Message is the rendered content of a queued email.
type Message struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Entry is one row of the mail queue.
type Entry struct {
	ID        string
	To        []string
	Message   Message
	CreatedAt time.Time
}

// NewEntry builds an Entry with a fresh ULID.
func NewEntry(to []string, msg Message, now time.Time) (Entry, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	recipients := make([]string, 0, len(to))
	for _, addr := range to {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 || strings.TrimSpace(msg.Subject) == "" {
		return Entry{}, ErrInvalidInput
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:        id.String(),
		To:        recipients,
		Message:   msg,
		CreatedAt: now.UTC(),
	}, nil
}
