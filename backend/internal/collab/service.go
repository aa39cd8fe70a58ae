package collab

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"streamtracker/backend/internal/cache"
)

const (
	// LockTTL bounds how long a dead session can pin a cell.
	LockTTL = 30 * time.Second
	// PresenceTTL bounds how long a dead session stays on the roster.
	PresenceTTL = 5 * time.Minute
)

// Action error codes the session dispatcher pattern-matches on.
const (
	CodeLockConflict      = "LOCK_CONFLICT"
	CodeLockNotHeld       = "LOCK_NOT_HELD"
	CodeInvalidField      = "INVALID_FIELD"
	CodeInvalidValue      = "INVALID_VALUE"
	CodeForbidden         = "FORBIDDEN"
	CodePersistenceFailed = "PERSISTENCE_FAILED"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
)

// ActionError is the failure result of one client action. It is always
// reported to the requesting caller only; it never tears down a session
// and never touches other users' state.
type ActionError struct {
	Code   string
	Holder uint64 // set for LOCK_CONFLICT
	Err    error
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *ActionError) Unwrap() error { return e.Err }

// Actor is the authenticated identity a session acts as.
type Actor struct {
	Member  cache.Member
	CanEdit bool
}

// StreamMutator is the persistence collaborator: a single-column write
// that must not trigger the store's own change-notification hooks. The
// service broadcast is the sole notification path.
type StreamMutator interface {
	UpdateField(ctx context.Context, entityID uint64, column string, value any) error
}

// Service owns the room semantics: presence lifecycle, per-cell locks
// and the broadcasts they produce. One instance is shared by all
// sessions; cross-session state lives entirely in the cache layer.
type Service interface {
	// Join registers presence, announces the user and returns the roster
	// for the caller's private reply.
	Join(ctx context.Context, actor Actor) ([]cache.Member, error)
	// Refresh renews the presence TTL and returns the current roster
	// without announcing anything.
	Refresh(ctx context.Context, actor Actor) ([]cache.Member, error)
	// Leave sweeps the actor's locks (one cell_unlocked each), drops
	// presence and announces the departure. Best effort; failures are
	// logged, the session is going away regardless.
	Leave(ctx context.Context, actor Actor)

	LockCell(ctx context.Context, actor Actor, entityID uint64, field string) *ActionError
	UnlockCell(ctx context.Context, actor Actor, entityID uint64, field string) *ActionError
	UpdateCell(ctx context.Context, actor Actor, entityID uint64, field, value string) *ActionError
}

type service struct {
	locks    cache.LockCache
	presence cache.PresenceCache
	streams  StreamMutator
	gateway  Broadcaster
	logger   *zap.Logger
}

func NewService(locks cache.LockCache, presence cache.PresenceCache, streams StreamMutator, gateway Broadcaster, logger *zap.Logger) Service {
	return &service{
		locks:    locks,
		presence: presence,
		streams:  streams,
		gateway:  gateway,
		logger:   logger,
	}
}

func (s *service) Join(ctx context.Context, actor Actor) ([]cache.Member, error) {
	if err := s.presence.Register(ctx, actor.Member, PresenceTTL); err != nil {
		return nil, err
	}
	roster, err := s.presence.Roster(ctx)
	if err != nil {
		return nil, err
	}
	s.publish(EventUserJoined, actor, 0, "", "")
	return roster, nil
}

func (s *service) Refresh(ctx context.Context, actor Actor) ([]cache.Member, error) {
	if err := s.presence.Register(ctx, actor.Member, PresenceTTL); err != nil {
		return nil, err
	}
	return s.presence.Roster(ctx)
}

func (s *service) Leave(ctx context.Context, actor Actor) {
	released, err := s.locks.ReleaseAll(ctx, actor.Member.ID)
	if err != nil {
		s.logger.Warn("lock sweep failed on leave",
			zap.Uint64("userId", actor.Member.ID), zap.Error(err))
	}
	for _, ref := range released {
		s.publish(EventCellUnlocked, actor, ref.EntityID, ref.Field, "")
	}
	if err := s.presence.Deregister(ctx, actor.Member.ID); err != nil {
		s.logger.Warn("presence deregister failed on leave",
			zap.Uint64("userId", actor.Member.ID), zap.Error(err))
	}
	s.publish(EventUserLeft, actor, 0, "", "")
}

func (s *service) LockCell(ctx context.Context, actor Actor, entityID uint64, field string) *ActionError {
	f, ok := ParseField(field)
	if !ok {
		return &ActionError{Code: CodeInvalidField, Err: fmt.Errorf("field %q is not editable", field)}
	}
	acquired, err := s.locks.Acquire(ctx, entityID, f.String(), actor.Member.ID)
	if err != nil {
		return &ActionError{Code: CodeStoreUnavailable, Err: err}
	}
	if !acquired {
		holder, _, err := s.locks.Holder(ctx, entityID, f.String())
		if err != nil {
			return &ActionError{Code: CodeStoreUnavailable, Err: err}
		}
		return &ActionError{Code: CodeLockConflict, Holder: holder}
	}
	s.publish(EventCellLocked, actor, entityID, f.String(), "")
	return nil
}

func (s *service) UnlockCell(ctx context.Context, actor Actor, entityID uint64, field string) *ActionError {
	f, ok := ParseField(field)
	if !ok {
		return &ActionError{Code: CodeInvalidField, Err: fmt.Errorf("field %q is not editable", field)}
	}
	released, err := s.locks.Release(ctx, entityID, f.String(), actor.Member.ID)
	if err != nil {
		return &ActionError{Code: CodeStoreUnavailable, Err: err}
	}
	// Not the holder: silent no-op, nothing broadcast.
	if !released {
		return nil
	}
	s.publish(EventCellUnlocked, actor, entityID, f.String(), "")
	return nil
}

func (s *service) UpdateCell(ctx context.Context, actor Actor, entityID uint64, field, value string) *ActionError {
	f, ok := ParseField(field)
	if !ok {
		return &ActionError{Code: CodeInvalidField, Err: fmt.Errorf("field %q is not editable", field)}
	}
	if !actor.CanEdit {
		return &ActionError{Code: CodeForbidden, Err: fmt.Errorf("user %d may not modify streams", actor.Member.ID)}
	}
	holder, held, err := s.locks.Holder(ctx, entityID, f.String())
	if err != nil {
		return &ActionError{Code: CodeStoreUnavailable, Err: err}
	}
	if !held || holder != actor.Member.ID {
		return &ActionError{Code: CodeLockNotHeld, Err: fmt.Errorf("cell %d/%s is not locked by user %d", entityID, f, actor.Member.ID)}
	}
	typed, err := f.ParseValue(value)
	if err != nil {
		return &ActionError{Code: CodeInvalidValue, Err: err}
	}
	if err := s.streams.UpdateField(ctx, entityID, f.Column(), typed); err != nil {
		return &ActionError{Code: CodePersistenceFailed, Err: err}
	}
	s.publish(EventCellUpdated, actor, entityID, f.String(), value)

	// Auto-release after a successful write, exactly as an explicit
	// unlock would behave.
	released, err := s.locks.Release(ctx, entityID, f.String(), actor.Member.ID)
	if err != nil {
		s.logger.Warn("auto-unlock failed after update",
			zap.Uint64("entityId", entityID), zap.String("field", f.String()), zap.Error(err))
		return nil
	}
	if released {
		s.publish(EventCellUnlocked, actor, entityID, f.String(), "")
	}
	return nil
}

func (s *service) publish(kind string, actor Actor, entityID uint64, field, value string) {
	s.gateway.Publish(Event{
		Type:     kind,
		EntityID: entityID,
		Field:    field,
		Value:    value,
		User:     actor.Member,
		At:       time.Now().UTC(),
	})
}
