package invitation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"

	"eatsoon/cmd/internal/caller"
	"eatsoon/cmd/internal/fnerr"
)

const (
	defaultMaxAttempts = 5

	// AcceptedMessage is returned to the caller on success.
	AcceptedMessage = "Invitation accepted successfully!"
)

// AcceptInput describes one acceptance call.
type AcceptInput struct {
	// Caller is nil for anonymous requests.
	Caller *caller.Identity
	// InvitationID is the user-supplied invite code.
	InvitationID string
	// IDIsString is false when the request carried a non-string invitationId.
	IDIsString bool
}

// AcceptResult is the success acknowledgment.
type AcceptResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Service validates invitations and applies acceptance atomically.
type Service struct {
	store       Store
	log         *slog.Logger
	now         func() time.Time
	maxAttempts uint
	newBackOff  func() backoff.BackOff
	metrics     *Metrics
	tracer      trace.Tracer
}

// Option configures the Service.
type Option func(*Service) error

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// WithClock overrides the time source used for expiry checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return ErrInvalidInput
		}
		s.now = now
		return nil
	}
}

// WithMaxAttempts bounds how many times a conflicting transaction is tried.
func WithMaxAttempts(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return ErrInvalidInput
		}
		s.maxAttempts = uint(n)
		return nil
	}
}

// WithRetryBackOff sets the delay policy between conflicting attempts.
func WithRetryBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Service) error {
		if newBackOff == nil {
			return ErrInvalidInput
		}
		s.newBackOff = newBackOff
		return nil
	}
}

// WithMetrics attaches acceptance metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{
		store:       store,
		log:         slog.Default(),
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
		newBackOff:  defaultBackOff,
		tracer:      otel.Tracer("eatsoon/invitation"),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return b
}

// Accept redeems an invitation for the caller.
//
// Checks run in a fixed order and each failure has its own kind:
// Unauthenticated, InvalidArgument, FailedPrecondition (no verified email),
// then inside the transaction NotFound, PermissionDenied and
// FailedPrecondition (already responded, expired). Errors that are not
// callable errors come back as Internal.
func (s *Service) Accept(ctx context.Context, in AcceptInput) (AcceptResult, error) {
	ctx, span := s.tracer.Start(ctx, "invitation.Accept")
	defer span.End()

	attempts, err := s.accept(ctx, in)
	s.metrics.observe(err, attempts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, fnerr.Slug(fnerr.KindOf(err)))
		return AcceptResult{}, err
	}
	return AcceptResult{Success: true, Message: AcceptedMessage}, nil
}

func (s *Service) accept(ctx context.Context, in AcceptInput) (int, error) {
	if in.Caller == nil || strings.TrimSpace(in.Caller.UID) == "" {
		return 0, fnerr.Unauthenticated("You must be logged in to accept an invitation.")
	}
	// The id is matched verbatim; a padded code is a different code.
	invitationID := in.InvitationID
	if !in.IDIsString || strings.TrimSpace(invitationID) == "" {
		return 0, fnerr.InvalidArgument("The function must be called with a valid 'invitationId'.")
	}
	email := strings.TrimSpace(in.Caller.Email)
	if email == "" {
		return 0, fnerr.FailedPrecondition("Your account must have a verified email address.")
	}
	uid := in.Caller.UID
	log := s.log.With("invitation_id", invitationID, "uid", uid)
	log.Info("invitation.accept.start")

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := s.store.WithinTx(ctx, func(tx Tx) error {
			return s.acceptTx(ctx, tx, invitationID, *in.Caller, email)
		})
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, ErrConflict) {
			log.Info("invitation.accept.conflict", "attempt", attempts)
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.maxAttempts),
	)
	if err != nil {
		fe := fnerr.Normalize(err)
		if fe.Kind == codes.Internal {
			log.Error("invitation.accept.fail", "attempts", attempts, "err", err)
		} else {
			log.Info("invitation.accept.rejected", "kind", fnerr.Slug(fe.Kind), "reason", fe.Message)
		}
		return attempts, fe
	}

	log.Info("invitation.accept.ok", "attempts", attempts)
	return attempts, nil
}

// acceptTx validates the invitation against the transaction snapshot and
// applies the membership, user, statistics and invitation writes.
func (s *Service) acceptTx(ctx context.Context, tx Tx, invitationID string, who caller.Identity, email string) error {
	now := s.now().UTC()

	inv, err := tx.InvitationForUpdate(ctx, invitationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fnerr.NotFound("This invitation does not exist.")
		}
		return err
	}
	if strings.TrimSpace(inv.InviteeEmail) == "" || strings.TrimSpace(inv.FamilyID) == "" {
		return fnerr.Internal("Invitation data is missing.")
	}
	if normalizeEmail(inv.InviteeEmail) != normalizeEmail(email) {
		return fnerr.PermissionDenied("This invitation is not for you.")
	}
	if inv.Status != StatusPending {
		return fnerr.FailedPrecondition("This invitation has already been responded to.")
	}
	if !inv.ExpiresAt.After(now) {
		return fnerr.FailedPrecondition("This invitation has expired.")
	}

	familyID := inv.FamilyID
	if err := tx.LockFamily(ctx, familyID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fnerr.NotFound("The family for this invitation no longer exists.")
		}
		return err
	}
	if err := tx.LockUser(ctx, who.UID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fnerr.NotFound("Your user profile does not exist.")
		}
		return err
	}

	member := Member{
		DisplayName:  who.DisplayName(),
		Email:        email,
		ProfileImage: who.Picture,
		Role:         RoleMember,
		Status:       MemberStatusActive,
		JoinedAt:     now,
		LastActiveAt: now,
	}
	if err := tx.MergeMember(ctx, familyID, who.UID, member); err != nil {
		return err
	}
	if err := tx.AddUserFamily(ctx, who.UID, familyID); err != nil {
		return err
	}
	if err := tx.IncrementMemberCount(ctx, familyID, 1); err != nil {
		return err
	}
	return tx.MarkAccepted(ctx, inv.ID, now)
}
