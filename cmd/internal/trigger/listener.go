// Package trigger turns Postgres NOTIFY events from row-insert triggers into
// handler calls. Each row is claimed before its handler runs, so every row is
// handled once across all listeners, and rows inserted while no listener was
// connected are picked up on the next connect.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInvalidInput = errors.New("trigger: invalid input")

const defaultSweepBatch = 100

// HandlerFunc receives the created row's id and its record data.
type HandlerFunc func(ctx context.Context, id string, data map[string]any)

// Claimer hands out created rows. Claim must succeed for at most one caller
// per id; ok is false when the row is gone or someone else already has it.
type Claimer interface {
	Claim(ctx context.Context, id string) (data map[string]any, ok bool, err error)
	Unclaimed(ctx context.Context, after string, limit int) ([]string, error)
}

// Listener holds one dedicated connection LISTENing on a channel.
type Listener struct {
	pool       *pgxpool.Pool
	channel    string
	claims     Claimer
	handle     HandlerFunc
	log        *slog.Logger
	newBackOff func() backoff.BackOff
	sweepBatch int
}

// Option configures the Listener.
type Option func(*Listener) error

func WithLogger(log *slog.Logger) Option {
	return func(l *Listener) error {
		if log != nil {
			l.log = log
		}
		return nil
	}
}

// WithReconnectBackOff sets the delay policy between reconnect attempts.
func WithReconnectBackOff(newBackOff func() backoff.BackOff) Option {
	return func(l *Listener) error {
		if newBackOff == nil {
			return ErrInvalidInput
		}
		l.newBackOff = newBackOff
		return nil
	}
}

// NewListener constructs a Listener for channel.
func NewListener(pool *pgxpool.Pool, channel string, claims Claimer, handle HandlerFunc, opts ...Option) (*Listener, error) {
	channel = strings.TrimSpace(channel)
	if pool == nil || channel == "" || claims == nil || handle == nil {
		return nil, ErrInvalidInput
	}
	l := &Listener{
		pool:    pool,
		channel: channel,
		claims:  claims,
		handle:  handle,
		log:     slog.Default(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			return b
		},
		sweepBatch: defaultSweepBatch,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Run listens until ctx is cancelled, reconnecting when the connection drops.
// It returns nil on cancellation.
func (l *Listener) Run(ctx context.Context) error {
	b := l.newBackOff()
	log := l.log.With("channel", l.channel)

	for {
		err := l.listen(ctx, b.Reset)
		if ctx.Err() != nil {
			log.Info("trigger.listener.stopped")
			return nil
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("trigger: giving up on %s: %w", l.channel, err)
		}
		log.Warn("trigger.listener.reconnect", "err", err, "wait", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			log.Info("trigger.listener.stopped")
			return nil
		case <-t.C:
		}
	}
}

func (l *Listener) listen(ctx context.Context, connected func()) error {
	pc, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	// LISTEN state must not leak back into the pool.
	conn := pc.Hijack()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return err
	}
	connected()
	l.log.Info("trigger.listener.ready", "channel", l.channel)

	// Rows inserted while nobody was listening. LISTEN is already active, so a
	// row seen by both the sweep and a notification is claimed once.
	if err := l.sweep(ctx); err != nil {
		return err
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.dispatch(ctx, n.Payload)
	}
}

// sweep dispatches every row still waiting for a claim.
func (l *Listener) sweep(ctx context.Context) error {
	after := ""
	swept := 0
	for {
		ids, err := l.claims.Unclaimed(ctx, after, l.sweepBatch)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		for _, id := range ids {
			l.dispatch(ctx, id)
		}
		swept += len(ids)
		if len(ids) < l.sweepBatch {
			break
		}
		after = ids[len(ids)-1]
	}
	if swept > 0 {
		l.log.Info("trigger.sweep.done", "channel", l.channel, "rows", swept)
	}
	return nil
}

// dispatch claims id and runs the handler when this listener won the claim.
func (l *Listener) dispatch(ctx context.Context, id string) {
	log := l.log.With("channel", l.channel)
	if strings.TrimSpace(id) == "" {
		log.Error("trigger.payload.invalid", "payload", id)
		return
	}

	data, ok, err := l.claims.Claim(ctx, id)
	if err != nil {
		// Left unclaimed; the next connect sweeps it.
		log.Error("trigger.claim.fail", "id", id, "err", err)
		return
	}
	if !ok {
		log.Debug("trigger.claim.taken", "id", id)
		return
	}
	l.handle(ctx, id, data)
}
