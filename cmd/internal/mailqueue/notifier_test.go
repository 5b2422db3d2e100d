package mailqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestNotifier(t *testing.T, store Store) (*Notifier, *Metrics) {
	t.Helper()
	return newTestNotifierWithLog(t, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestNotifierWithLog(t *testing.T, store Store, log *slog.Logger) (*Notifier, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	n, err := NewNotifier(store,
		WithLogger(log),
		WithClock(func() time.Time { return testNow }),
		WithMetrics(m),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	return n, m
}

// errorRecords decodes the JSON log lines in buf and returns the ERROR ones.
func errorRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if rec["level"] == "ERROR" {
			out = append(out, rec)
		}
	}
	return out
}

func validRecord() map[string]any {
	return map[string]any{
		"inviteeEmail": "invitee@example.com",
		"inviterName":  "Alex",
		"familyName":   "Smith",
		"familyId":     "fam-1",
		"status":       "pending",
	}
}

func TestNotifier_QueuesOneEntry(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	n, m := newTestNotifier(t, store)

	n.HandleInvitationCreated(context.Background(), "K3X9QZ2A", validRecord())

	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if len(e.To) != 1 || e.To[0] != "invitee@example.com" {
		t.Fatalf("recipients=%v", e.To)
	}
	if e.Message.Subject != "You're invited to join the Smith family on EatSoon!" {
		t.Fatalf("subject=%q", e.Message.Subject)
	}
	for _, want := range []string{"K3X9QZ2A", "<b>Alex</b>", "<b>Smith</b>", "This invitation is valid for 7 days."} {
		if !strings.Contains(e.Message.HTML, want) {
			t.Fatalf("html missing %q:\n%s", want, e.Message.HTML)
		}
	}
	if len(e.ID) != 26 {
		t.Fatalf("expected ULID id, got %q", e.ID)
	}
	if !e.CreatedAt.Equal(testNow) {
		t.Fatalf("created_at=%v", e.CreatedAt)
	}
	if got := testutil.ToFloat64(m.enqueued.WithLabelValues(resultQueued)); got != 1 {
		t.Fatalf("queued counter=%v want 1", got)
	}
}

func TestNotifier_MissingFieldsWriteNothing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"no invitee email", func(d map[string]any) { delete(d, "inviteeEmail") }},
		{"blank inviter", func(d map[string]any) { d["inviterName"] = "  " }},
		{"no family name", func(d map[string]any) { delete(d, "familyName") }},
		{"non-string email", func(d map[string]any) { d["inviteeEmail"] = 42 }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			store := NewMemoryStore()
			n, m := newTestNotifierWithLog(t, store, slog.New(slog.NewJSONHandler(&buf, nil)))

			data := validRecord()
			tc.mutate(data)
			n.HandleInvitationCreated(context.Background(), "K3X9QZ2A", data)

			if got := len(store.Entries()); got != 0 {
				t.Fatalf("expected no entries, got %d", got)
			}
			if got := testutil.ToFloat64(m.enqueued.WithLabelValues(resultInvalid)); got != 1 {
				t.Fatalf("invalid counter=%v want 1", got)
			}
			recs := errorRecords(t, &buf)
			if len(recs) != 1 {
				t.Fatalf("expected one error record, got %d:\n%s", len(recs), buf.String())
			}
			if recs[0]["msg"] != "mail.invitation.invalid" || recs[0]["invitation_id"] != "K3X9QZ2A" {
				t.Fatalf("unexpected error record: %v", recs[0])
			}
		})
	}
}

func TestNotifier_AppendFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	store := NewMemoryStore()
	store.FailWith(errors.New("database unavailable"))
	n, m := newTestNotifierWithLog(t, store, slog.New(slog.NewJSONHandler(&buf, nil)))

	n.HandleInvitationCreated(context.Background(), "K3X9QZ2A", validRecord())

	if got := testutil.ToFloat64(m.enqueued.WithLabelValues(resultFailed)); got != 1 {
		t.Fatalf("failed counter=%v want 1", got)
	}
	recs := errorRecords(t, &buf)
	if len(recs) != 1 {
		t.Fatalf("expected one error record, got %d:\n%s", len(recs), buf.String())
	}
	rec := recs[0]
	if rec["msg"] != "mail.enqueue.fail" || rec["invitation_id"] != "K3X9QZ2A" {
		t.Fatalf("unexpected error record: %v", rec)
	}
	if errMsg, _ := rec["err"].(string); !strings.Contains(errMsg, "database unavailable") {
		t.Fatalf("error detail missing: %v", rec)
	}
}

func TestInvitationEmail_EscapesNames(t *testing.T) {
	t.Parallel()

	msg, err := InvitationEmail{
		InviterName: "<script>alert(1)</script>",
		FamilyName:  "Smith",
		Code:        "ABC123",
	}.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatalf("inviter name not escaped:\n%s", msg.HTML)
	}
}

func TestInvitationEmail_CodeAppearsVerbatim(t *testing.T) {
	t.Parallel()

	// Invite codes are document ids: letters, digits, '-' and '_'.
	codes := []string{
		"K3X9QZ2A",
		"abcdefghijklmnopqrstuvwxyz",
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
		"a1-B2_c3",
	}
	for _, code := range codes {
		msg, err := InvitationEmail{InviterName: "Alex", FamilyName: "Smith", Code: code}.Render()
		if err != nil {
			t.Fatalf("render %q: %v", code, err)
		}
		if !strings.Contains(msg.HTML, code) {
			t.Fatalf("code %q not verbatim in body:\n%s", code, msg.HTML)
		}
	}
}

func TestNewEntry_RejectsEmptyRecipients(t *testing.T) {
	t.Parallel()

	if _, err := NewEntry([]string{" "}, Message{Subject: "s"}, testNow); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := NewEntry([]string{"a@example.com"}, Message{}, testNow); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty subject, got %v", err)
	}
}
