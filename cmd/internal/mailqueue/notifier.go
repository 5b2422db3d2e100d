package mailqueue

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Notifier queues the invitation email when an invitation is created.
type Notifier struct {
	store   Store
	log     *slog.Logger
	now     func() time.Time
	metrics *Metrics
}

// Option configures the Notifier.
type Option func(*Notifier) error

func WithLogger(log *slog.Logger) Option {
	return func(n *Notifier) error {
		if log != nil {
			n.log = log
		}
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) error {
		if now == nil {
			return ErrInvalidInput
		}
		n.now = now
		return nil
	}
}

func WithMetrics(m *Metrics) Option {
	return func(n *Notifier) error {
		n.metrics = m
		return nil
	}
}

// NewNotifier constructs a Notifier.
func NewNotifier(store Store, opts ...Option) (*Notifier, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	n := &Notifier{
		store: store,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// HandleInvitationCreated appends one invitation email for the created
// record. data is the record as published by the insert trigger. Failures
// are logged and swallowed; the invitation itself is never affected.
func (n *Notifier) HandleInvitationCreated(ctx context.Context, invitationID string, data map[string]any) {
	log := n.log.With("invitation_id", invitationID)
	log.Info("mail.invitation.start")

	inviteeEmail := stringField(data, "inviteeEmail")
	inviterName := stringField(data, "inviterName")
	familyName := stringField(data, "familyName")
	if inviteeEmail == "" || inviterName == "" || familyName == "" {
		log.Error("mail.invitation.invalid", "data", data)
		n.metrics.inc(resultInvalid)
		return
	}

	msg, err := InvitationEmail{
		InviterName: inviterName,
		FamilyName:  familyName,
		Code:        invitationID,
	}.Render()
	if err != nil {
		log.Error("mail.enqueue.fail", "err", err)
		n.metrics.inc(resultFailed)
		return
	}

	entry, err := NewEntry([]string{inviteeEmail}, msg, n.now())
	if err == nil {
		err = n.store.Append(ctx, entry)
	}
	if err != nil {
		log.Error("mail.enqueue.fail", "err", err)
		n.metrics.inc(resultFailed)
		return
	}

	log.Info("mail.enqueue.ok", "mail_id", entry.ID, "to", inviteeEmail)
	n.metrics.inc(resultQueued)
}

func stringField(data map[string]any, key string) string {
	v, ok := data[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
